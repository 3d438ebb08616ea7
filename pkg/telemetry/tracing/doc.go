// Package tracing provides OpenTelemetry tracing for the Conduit gateway.
//
// New builds a tracer provider exporting over OTLP gRPC and installs it
// globally together with the W3C trace context propagator. A disabled
// configuration returns a noop tracer, so callers never branch on it.
//
//	tracer, err := tracing.New(ctx, cfg.Telemetry.Tracing, tracing.WithVersion(version))
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	gw := gateway.New(cascade, cache, gcfg, gateway.WithTracer(tracer.Tracer()))
//
// A query produces a gateway.query span with one provider.fetch child per
// upstream attempt. Providers skipped by the cascade appear as
// cascade.skip events on the query span.
//
// Samplers: always, never, ratio and parent_based_ratio.
package tracing
