// Package bls implements the Bureau of Labor Statistics public data API
// adapter for the labor_series capability.
//
// The BLS API answers most failures with HTTP 200 and a status other than
// REQUEST_SUCCEEDED; daily quota exhaustion is reported the same way.
package bls

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public BLS endpoint.
const DefaultBaseURL = "https://api.bls.gov"

const statusSucceeded = "REQUEST_SUCCEEDED"

// Adapter serves time series data.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates a BLS adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "bls"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}
}

// Capabilities returns the capabilities served by BLS.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityLaborSeries}
}

type request struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear,omitempty"`
	EndYear         string   `json:"endyear,omitempty"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message []string        `json:"message"`
	Results json.RawMessage `json:"Results"`
}

// Validate checks series_id and the year range.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, err := a.request(capability, params)
	return err
}

func (a *Adapter) request(capability string, params providers.Params) (*request, error) {
	if capability != providers.CapabilityLaborSeries {
		return nil, providers.Unsupported(a.Name(), capability)
	}

	raw, err := providers.Required(params, "series_id")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
			ids = append(ids, id)
		}
	}

	start, err := providers.Year(params, "start_year")
	if err != nil {
		return nil, err
	}
	end, err := providers.Year(params, "end_year")
	if err != nil {
		return nil, err
	}
	if start != 0 && end != 0 && start > end {
		return nil, &providers.ValidationError{Field: "start_year", Message: "must not be after end_year"}
	}

	req := request{SeriesID: ids, RegistrationKey: a.Config().APIKey}
	if start != 0 {
		req.StartYear = strconv.Itoa(start)
	}
	if end != 0 {
		req.EndYear = strconv.Itoa(end)
	}
	return &req, nil
}

// Fetch posts a timeseries query for series_id. Several ids may be given
// separated by commas.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	req, err := a.request(capability, params)
	if err != nil {
		return nil, err
	}

	body, err := a.PostJSON(ctx, "/publicAPI/v2/timeseries/data/", req, nil)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected response shape", err)
	}
	if env.Status != statusSucceeded {
		msg := strings.Join(env.Message, "; ")
		category := providers.CategoryClientError
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "threshold"), strings.Contains(lower, "daily"):
			category = providers.CategoryRateLimit
		case env.Status == "REQUEST_NOT_PROCESSED":
			category = providers.CategoryServerError
		}
		return nil, a.Failure(category, env.Status+": "+msg)
	}
	return body, nil
}
