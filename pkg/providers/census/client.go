// Package census implements the US Census Bureau data API adapter for the
// demographics capability.
package census

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the public Census data endpoint.
const DefaultBaseURL = "https://api.census.gov"

var datasetPattern = regexp.MustCompile(`^[a-z0-9]+(/[a-z0-9]+)*$`)

// Adapter serves dataset queries.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates a Census adapter.
func New(cfg providers.ProviderConfig) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "census"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}
}

// Capabilities returns the capabilities served by the Census API.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityDemographics}
}

// Validate checks year, dataset, get and for.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, _, err := a.build(capability, params)
	return err
}

// build returns the request path and query for params.
func (a *Adapter) build(capability string, params providers.Params) (string, url.Values, error) {
	if capability != providers.CapabilityDemographics {
		return "", nil, providers.Unsupported(a.Name(), capability)
	}

	year, err := providers.Year(params, "year")
	if err != nil {
		return "", nil, err
	}
	if year == 0 {
		return "", nil, &providers.ValidationError{Field: "year", Message: "required parameter is missing"}
	}
	dataset, err := providers.Required(params, "dataset")
	if err != nil {
		return "", nil, err
	}
	if !datasetPattern.MatchString(dataset) {
		return "", nil, &providers.ValidationError{Field: "dataset", Message: "expected a dataset path such as acs/acs5"}
	}
	get, err := providers.Required(params, "get")
	if err != nil {
		return "", nil, err
	}
	geo, err := providers.Required(params, "for")
	if err != nil {
		return "", nil, err
	}

	query := url.Values{"get": {get}, "for": {geo}}
	if in := params.Get("in"); in != "" {
		query.Set("in", in)
	}
	if key := a.Config().APIKey; key != "" {
		query.Set("key", key)
	}
	return "/data/" + strconv.Itoa(year) + "/" + dataset, query, nil
}

// Fetch queries /data/{year}/{dataset}.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	path, query, err := a.build(capability, params)
	if err != nil {
		return nil, err
	}

	body, err := a.Get(ctx, path, query, nil)
	if err != nil {
		return nil, err
	}

	// Results are a header row followed by data rows.
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, a.Malformed(http.StatusOK, "expected a table of rows", err)
	}
	if len(rows) < 1 {
		return nil, a.Malformed(http.StatusOK, "response has no header row", nil)
	}
	return body, nil
}
