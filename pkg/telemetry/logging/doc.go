// Package logging provides structured logging with credential redaction.
//
// # Overview
//
// New returns a standard *slog.Logger whose handler:
//   - writes JSON or text records at the configured level
//   - adds request_id, capability and provider from the record's context
//   - adds trace_id and span_id when the context carries an active span
//   - masks upstream credentials in messages, attributes and errors
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "7f9c...")
//	ctx = logging.WithCapability(ctx, "quote")
//	logger.InfoContext(ctx, "query served", "source", "finnhub")
//
// Context fields are only picked up by the *Context logging methods.
//
// # Redaction
//
// Provider credentials are masked wherever they appear:
//
//   - query strings: ?apikey=ABC123 → ?apikey=***
//   - headers: X-Finnhub-Token: abc → X-Finnhub-Token: ***
//   - JSON bodies: "registrationkey":"abc" → "registrationkey":"***"
//   - bearer tokens and URL userinfo
//   - attributes named like credentials (api_key, token, secret) keep only
//     a four character prefix
//
// Errors logged as attributes are rendered to strings and scanned, since
// *url.Error messages include the full request URL.
package logging
