package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRequestID     = attribute.Key("conduit.request_id")
	AttrCapability    = attribute.Key("conduit.capability")
	AttrProvider      = attribute.Key("conduit.provider")
	AttrAttempt       = attribute.Key("conduit.attempt")
	AttrForceFresh    = attribute.Key("conduit.force_fresh")
	AttrSource        = attribute.Key("conduit.source")
	AttrStale         = attribute.Key("conduit.stale")
	AttrCached        = attribute.Key("conduit.cached")
	AttrOutcome       = attribute.Key("conduit.outcome")
	AttrErrorCategory = attribute.Key("conduit.error.category")
)

// QueryAttributes describe a gateway query as it starts.
func QueryAttributes(requestID, capability string, forceFresh bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRequestID.String(requestID),
		AttrCapability.String(capability),
		AttrForceFresh.Bool(forceFresh),
	}
}

// SetResultAttributes records where a query result came from.
func SetResultAttributes(span trace.Span, source string, stale, cached bool) {
	span.SetAttributes(
		AttrSource.String(source),
		AttrStale.Bool(stale),
		AttrCached.Bool(cached),
	)
}

// AttemptAttributes describe one upstream attempt.
func AttemptAttributes(provider, capability string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProvider.String(provider),
		AttrCapability.String(capability),
		AttrAttempt.Int(attempt),
	}
}

// SetErrorCategory records the failure category of an upstream attempt.
func SetErrorCategory(span trace.Span, category string) {
	if category == "" {
		return
	}
	span.SetAttributes(AttrErrorCategory.String(category))
}

// AddCascadeEvent records a provider skipped or failed during a cascade.
func AddCascadeEvent(span trace.Span, provider, reason string) {
	span.AddEvent("cascade.skip", trace.WithAttributes(
		AttrProvider.String(provider),
		attribute.String("reason", reason),
	))
}
