// Package alphavantage implements the Alpha Vantage market data adapter.
//
// Alpha Vantage reports throttling inside HTTP 200 responses ("Note" or
// "Information" fields) rather than with 429, so the adapter inspects every
// body before handing it back.
package alphavantage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public Alpha Vantage endpoint.
const DefaultBaseURL = "https://www.alphavantage.co"

// Adapter serves the quote capability from GLOBAL_QUOTE.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates an Alpha Vantage adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "alphavantage"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}
}

// Capabilities returns the capabilities served by Alpha Vantage.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityQuote}
}

type envelope struct {
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
	ErrorMessage string            `json:"Error Message"`
	GlobalQuote  map[string]string `json:"Global Quote"`
}

// Validate checks the capability and symbol.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, err := a.symbol(capability, params)
	return err
}

func (a *Adapter) symbol(capability string, params providers.Params) (string, error) {
	if capability != providers.CapabilityQuote {
		return "", providers.Unsupported(a.Name(), capability)
	}
	return providers.Symbol(params)
}

// Fetch performs one GLOBAL_QUOTE request.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	symbol, err := a.symbol(capability, params)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {a.Config().APIKey},
	}

	body, err := a.Get(ctx, "/query", query, nil)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected response shape", err)
	}

	switch {
	case env.Note != "":
		return nil, a.Failure(providers.CategoryRateLimit, env.Note)
	case env.Information != "":
		return nil, a.Failure(providers.CategoryRateLimit, env.Information)
	case env.ErrorMessage != "":
		return nil, a.Failure(providers.CategoryClientError, env.ErrorMessage)
	case len(env.GlobalQuote) == 0:
		return nil, a.Malformed(http.StatusOK, "empty quote for "+symbol, nil)
	}

	return body, nil
}
