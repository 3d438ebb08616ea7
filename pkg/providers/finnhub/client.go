// Package finnhub implements the Finnhub adapter for quotes and company news.
package finnhub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public Finnhub endpoint.
const DefaultBaseURL = "https://finnhub.io/api/v1"

// newsLookback is the window used when the caller gives no "from" date.
const newsLookback = 7 * 24 * time.Hour

// Adapter serves quote and news.
type Adapter struct {
	*providers.HTTPProvider

	// now is overridable for tests.
	now func() time.Time
}

// New creates a Finnhub adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "finnhub"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg), now: time.Now}
}

// Capabilities returns the capabilities served by Finnhub.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityQuote, providers.CapabilityNews}
}

// Validate checks params for capability.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	switch capability {
	case providers.CapabilityQuote:
		_, err := providers.Symbol(params)
		return err
	case providers.CapabilityNews:
		_, err := a.newsQuery(params)
		return err
	default:
		return providers.Unsupported(a.Name(), capability)
	}
}

// Fetch dispatches to the endpoint for capability.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	switch capability {
	case providers.CapabilityQuote:
		return a.quote(ctx, params)
	case providers.CapabilityNews:
		return a.news(ctx, params)
	default:
		return nil, providers.Unsupported(a.Name(), capability)
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"X-Finnhub-Token": a.Config().APIKey}
}

type quoteResponse struct {
	Current   float64 `json:"c"`
	Timestamp int64   `json:"t"`
}

func (a *Adapter) quote(ctx context.Context, params providers.Params) (json.RawMessage, error) {
	symbol, err := providers.Symbol(params)
	if err != nil {
		return nil, err
	}

	body, err := a.Get(ctx, "/quote", url.Values{"symbol": {symbol}}, a.headers())
	if err != nil {
		return nil, err
	}

	// Unknown symbols come back as 200 with every field zeroed.
	var q quoteResponse
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected quote shape", err)
	}
	if q.Current == 0 && q.Timestamp == 0 {
		return nil, a.Malformed(http.StatusOK, "empty quote for "+symbol, nil)
	}
	return body, nil
}

func (a *Adapter) newsQuery(params providers.Params) (url.Values, error) {
	symbol, err := providers.Symbol(params)
	if err != nil {
		return nil, err
	}
	from, err := providers.Date(params, "from")
	if err != nil {
		return nil, err
	}
	to, err := providers.Date(params, "to")
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = a.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-newsLookback)
	}
	if from.After(to) {
		return nil, &providers.ValidationError{Field: "from", Message: "must not be after \"to\""}
	}

	return url.Values{
		"symbol": {symbol},
		"from":   {from.Format(time.DateOnly)},
		"to":     {to.Format(time.DateOnly)},
	}, nil
}

func (a *Adapter) news(ctx context.Context, params providers.Params) (json.RawMessage, error) {
	query, err := a.newsQuery(params)
	if err != nil {
		return nil, err
	}
	body, err := a.Get(ctx, "/company-news", query, a.headers())
	if err != nil {
		return nil, err
	}

	var articles []json.RawMessage
	if err := json.Unmarshal(body, &articles); err != nil {
		return nil, a.Malformed(http.StatusOK, "expected an array of articles", err)
	}
	return body, nil
}
