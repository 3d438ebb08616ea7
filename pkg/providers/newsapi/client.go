// Package newsapi implements the NewsAPI.org adapter for the news capability.
package newsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public NewsAPI endpoint.
const DefaultBaseURL = "https://newsapi.org"

const maxPageSize = 100

// Adapter serves news from /v2/everything.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates a NewsAPI adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "newsapi"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}
}

// Capabilities returns the capabilities served by NewsAPI.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityNews}
}

type envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks the symbol, date range and page size.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, err := a.query(capability, params)
	return err
}

func (a *Adapter) query(capability string, params providers.Params) (url.Values, error) {
	if capability != providers.CapabilityNews {
		return nil, providers.Unsupported(a.Name(), capability)
	}

	symbol, err := providers.Symbol(params)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"q":        {symbol},
		"sortBy":   {"publishedAt"},
		"language": {"en"},
	}
	for _, name := range []string{"from", "to"} {
		d, err := providers.Date(params, name)
		if err != nil {
			return nil, err
		}
		if !d.IsZero() {
			query.Set(name, d.Format(time.DateOnly))
		}
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return nil, &providers.ValidationError{Field: "limit", Message: "expected an integer between 1 and 100"}
		}
		query.Set("pageSize", strconv.Itoa(n))
	}
	return query, nil
}

// Fetch performs one /v2/everything search for the symbol.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	query, err := a.query(capability, params)
	if err != nil {
		return nil, err
	}

	body, err := a.Get(ctx, "/v2/everything", query, map[string]string{"X-Api-Key": a.Config().APIKey})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected response shape", err)
	}
	if env.Status != "ok" {
		category := providers.CategoryMalformed
		switch env.Code {
		case "rateLimited":
			category = providers.CategoryRateLimit
		case "apiKeyInvalid", "apiKeyMissing", "apiKeyDisabled", "apiKeyExhausted":
			category = providers.CategoryAuth
		case "unexpectedError":
			category = providers.CategoryServerError
		}
		return nil, a.Failure(category, env.Code+": "+env.Message)
	}
	return body, nil
}
