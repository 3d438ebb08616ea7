// Package fred implements the St. Louis Fed FRED adapter for the
// economic_series capability.
package fred

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public FRED endpoint.
const DefaultBaseURL = "https://api.stlouisfed.org"

var seriesPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// Adapter serves series observations.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates a FRED adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "fred"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}
}

// Capabilities returns the capabilities served by FRED.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityEconomicSeries}
}

// Validate checks series_id and the observation dates.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, err := a.query(capability, params)
	return err
}

func (a *Adapter) query(capability string, params providers.Params) (url.Values, error) {
	if capability != providers.CapabilityEconomicSeries {
		return nil, providers.Unsupported(a.Name(), capability)
	}

	series, err := providers.Required(params, "series_id")
	if err != nil {
		return nil, err
	}
	if !seriesPattern.MatchString(series) {
		return nil, &providers.ValidationError{Field: "series_id", Message: "not a valid FRED series id"}
	}

	query := url.Values{
		"series_id": {series},
		"api_key":   {a.Config().APIKey},
		"file_type": {"json"},
	}
	for _, name := range []string{"observation_start", "observation_end"} {
		d, err := providers.Date(params, name)
		if err != nil {
			return nil, err
		}
		if !d.IsZero() {
			query.Set(name, d.Format(time.DateOnly))
		}
	}
	return query, nil
}

// Fetch retrieves observations for series_id.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	query, err := a.query(capability, params)
	if err != nil {
		return nil, err
	}

	body, err := a.Get(ctx, "/fred/series/observations", query, nil)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Observations []json.RawMessage `json:"observations"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected observations shape", err)
	}
	if doc.Observations == nil {
		return nil, a.Malformed(http.StatusOK, "response has no observations", nil)
	}
	return body, nil
}
