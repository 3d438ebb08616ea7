package providerfactory

import (
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/providers/alphavantage"
	"mercator-hq/conduit/pkg/providers/bls"
	"mercator-hq/conduit/pkg/providers/census"
	"mercator-hq/conduit/pkg/providers/finnhub"
	"mercator-hq/conduit/pkg/providers/fred"
	"mercator-hq/conduit/pkg/providers/newsapi"
	"mercator-hq/conduit/pkg/providers/sec"
)

// Provider types understood by New.
const (
	TypeAlphaVantage = "alphavantage"
	TypeFinnhub      = "finnhub"
	TypeNewsAPI      = "newsapi"
	TypeSEC          = "sec"
	TypeFRED         = "fred"
	TypeBLS          = "bls"
	TypeCensus       = "census"
)

// SupportedTypes lists every adapter type in a stable order.
var SupportedTypes = []string{
	TypeAlphaVantage, TypeFinnhub, TypeNewsAPI, TypeSEC, TypeFRED, TypeBLS, TypeCensus,
}

// New creates the adapter selected by config.Type.
//
// When Type is empty it is taken from the provider name, so a provider
// configured as "finnhub" needs no explicit type. Several providers may
// share a type (e.g., two Finnhub accounts under different names).
//
// Example:
//
//	adapter, err := providerfactory.New(providers.ProviderConfig{
//	    Name:   "finnhub",
//	    APIKey: os.Getenv("FINNHUB_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer adapter.Close()
func New(config providers.ProviderConfig) (providers.Adapter, error) {
	providerType := strings.ToLower(config.Type)
	if providerType == "" {
		providerType = strings.ToLower(config.Name)
		config.Type = providerType
	}

	slog.Debug("creating provider",
		"name", config.Name,
		"type", providerType,
		"base_url", config.BaseURL,
	)

	var (
		adapter providers.Adapter
		err     error
	)

	switch providerType {
	case TypeAlphaVantage:
		adapter = alphavantage.New(config)
	case TypeFinnhub:
		adapter = finnhub.New(config)
	case TypeNewsAPI:
		adapter = newsapi.New(config)
	case TypeSEC:
		adapter, err = sec.New(config)
	case TypeFRED:
		adapter = fred.New(config)
	case TypeBLS:
		adapter = bls.New(config)
	case TypeCensus:
		adapter = census.New(config)
	default:
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: %s)", providerType, strings.Join(SupportedTypes, ", ")),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", config.Name, err)
	}

	slog.Debug("provider created",
		"name", adapter.Name(),
		"type", providerType,
		"capabilities", adapter.Capabilities(),
	)

	return adapter, nil
}
