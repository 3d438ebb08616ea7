// Package sec implements the SEC EDGAR submissions adapter for the filings
// capability. EDGAR needs no API key but rejects requests without a
// descriptive User-Agent ("Company Name admin@example.com").
package sec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultBaseURL is the EDGAR JSON API endpoint.
const DefaultBaseURL = "https://data.sec.gov"

// Adapter serves filings from /submissions.
type Adapter struct {
	*providers.HTTPProvider
}

// New creates an EDGAR adapter.
func New(cfg providers.ProviderConfig) (*Adapter, error) {
	if cfg.Name == "" {
		cfg.Name = "sec"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "user_agent", Message: "SEC EDGAR requires a User-Agent with contact details"}
	}
	return &Adapter{HTTPProvider: providers.NewHTTPProvider(cfg)}, nil
}

// Capabilities returns the capabilities served by EDGAR.
func (a *Adapter) Capabilities() []string {
	return []string{providers.CapabilityFilings}
}

// Validate checks the capability and CIK.
func (a *Adapter) Validate(capability string, params providers.Params) error {
	_, err := a.cik(capability, params)
	return err
}

func (a *Adapter) cik(capability string, params providers.Params) (string, error) {
	if capability != providers.CapabilityFilings {
		return "", providers.Unsupported(a.Name(), capability)
	}
	return normalizeCIK(params.Get("cik"))
}

// Fetch retrieves the submissions document for a CIK.
func (a *Adapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	cik, err := a.cik(capability, params)
	if err != nil {
		return nil, err
	}

	body, err := a.Get(ctx, "/submissions/CIK"+cik+".json", nil, nil)
	if err != nil {
		return nil, err
	}

	var doc struct {
		CIK     string          `json:"cik"`
		Filings json.RawMessage `json:"filings"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, a.Malformed(http.StatusOK, "unexpected submissions shape", err)
	}
	if len(doc.Filings) == 0 {
		return nil, a.Malformed(http.StatusOK, "submissions document has no filings", nil)
	}
	return body, nil
}

// normalizeCIK left-pads a numeric CIK to the ten digits EDGAR expects.
func normalizeCIK(raw string) (string, error) {
	raw = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "CIK")
	if raw == "" {
		return "", &providers.ValidationError{Field: "cik", Message: "required parameter is missing"}
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 || len(strings.TrimLeft(raw, "0")) > 10 {
		return "", &providers.ValidationError{Field: "cik", Message: "expected a numeric CIK of at most 10 digits"}
	}
	return fmt.Sprintf("%010d", n), nil
}
