// Package config provides configuration management for Conduit.
//
// This package handles loading, validating, and reloading configuration
// from YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("conduit.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("conduit.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CONDUIT_SECTION_FIELD.
// For example:
//
//   - CONDUIT_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CONDUIT_PROVIDERS_FINNHUB_API_KEY overrides providers.finnhub.api_key
//   - CONDUIT_CACHE_BACKEND overrides cache.backend
//   - CONDUIT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Provider overrides are read for every provider present in the file.
// Dashes in provider ids become underscores: "fred-backup" reads
// CONDUIT_PROVIDERS_FRED_BACKUP_API_KEY.
//
// # Secret References
//
// Provider api_key and cache.redis.password may hold ${secret:name}
// references. They are resolved by pkg/secrets when the gateway is
// assembled, from files under secrets.dir first and then from
// CONDUIT_SECRET_<NAME> variables; this package leaves them as written.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Reloading
//
// A Watcher reloads the file when it changes and hands the new
// configuration to a ReloadFunc, usually Replace, which updates the
// singleton and notifies Subscribe callbacks. A file that fails validation
// is ignored and the running configuration stays in place.
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	providers:
//	  finnhub:
//	    rate_limit:
//	      capacity: 30
//	      refill_rate_per_sec: 1
//	  alphavantage:
//	    rate_limit:
//	      capacity: 5
//	      refill_rate_per_sec: 0.083
//
//	capabilities:
//	  quote:
//	    chain: [finnhub, alphavantage]
//	    ttl: 15s
//
//	cache:
//	  backend: sqlite
//	  sqlite:
//	    path: data/cache.db
package config
