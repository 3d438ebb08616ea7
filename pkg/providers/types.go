package providers

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Params are the caller-supplied parameters of a query. Keys are matched
// case-insensitively; values are passed to the upstream unchanged.
type Params map[string]string

// Get returns the trimmed value for key.
func (p Params) Get(key string) string {
	if v, ok := p[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Normalize returns a copy with lower-cased, trimmed keys and trimmed
// values. Empty values are dropped. Keys that collide after folding keep
// an arbitrary value; the gateway rejects such params first.
func (p Params) Normalize() Params {
	out := make(Params, len(p))
	for k, v := range p {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Capability names served by the built-in adapters.
const (
	CapabilityQuote          = "quote"
	CapabilityNews           = "news"
	CapabilityFilings        = "filings"
	CapabilityEconomicSeries = "economic_series"
	CapabilityLaborSeries    = "labor_series"
	CapabilityDemographics   = "demographics"
)

// CapabilitySpec describes the parameters a capability accepts.
type CapabilitySpec struct {
	Name     string
	Required []string
	Optional []string
}

// Validate checks that every required parameter is present and that no
// unknown parameter is supplied.
func (s CapabilitySpec) Validate(params Params) error {
	for _, name := range s.Required {
		if params.Get(name) == "" {
			return missingParam(name)
		}
	}
	if len(s.Required)+len(s.Optional) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(s.Required)+len(s.Optional))
	for _, name := range s.Required {
		allowed[name] = true
	}
	for _, name := range s.Optional {
		allowed[name] = true
	}
	for _, key := range params.Keys() {
		if !allowed[strings.ToLower(key)] {
			return &ValidationError{Field: key, Message: "unknown parameter for capability " + s.Name}
		}
	}
	return nil
}

// BuiltinCapabilities lists the parameter contracts of the capabilities the
// bundled adapters implement.
var BuiltinCapabilities = map[string]CapabilitySpec{
	CapabilityQuote: {
		Name:     CapabilityQuote,
		Required: []string{"symbol"},
	},
	CapabilityNews: {
		Name:     CapabilityNews,
		Required: []string{"symbol"},
		Optional: []string{"from", "to", "limit"},
	},
	CapabilityFilings: {
		Name:     CapabilityFilings,
		Required: []string{"cik"},
	},
	CapabilityEconomicSeries: {
		Name:     CapabilityEconomicSeries,
		Required: []string{"series_id"},
		Optional: []string{"observation_start", "observation_end"},
	},
	CapabilityLaborSeries: {
		Name:     CapabilityLaborSeries,
		Required: []string{"series_id"},
		Optional: []string{"start_year", "end_year"},
	},
	CapabilityDemographics: {
		Name:     CapabilityDemographics,
		Required: []string{"year", "dataset", "get", "for"},
		Optional: []string{"in"},
	},
}

// ProviderConfig contains the settings shared by every HTTP adapter.
type ProviderConfig struct {
	// Name is the provider identifier (e.g., "finnhub", "sec")
	Name string

	// Type selects the adapter implementation
	Type string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the credential sent to the upstream, if it needs one
	APIKey string

	// UserAgent is sent on every request. SEC EDGAR rejects requests
	// without a descriptive one.
	UserAgent string

	// Timeout bounds a single upstream attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// Retry controls backoff between attempts
	Retry RetryPolicy

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Response is a successful upstream payload.
type Response struct {
	// Provider is the adapter that produced the payload.
	Provider string `json:"provider"`

	// Capability is the capability that was served.
	Capability string `json:"capability"`

	// Data is the upstream JSON, returned without interpretation.
	Data json.RawMessage `json:"data"`

	// FetchedAt is when the payload was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Attempts is the number of upstream attempts it took.
	Attempts int `json:"attempts"`
}
