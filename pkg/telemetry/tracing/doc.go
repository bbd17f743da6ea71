// Package tracing provides OpenTelemetry tracing for the gatekeeper process.
//
// # Overview
//
// New builds a TracerProvider that exports spans over OTLP gRPC. The engine
// and the HTTP middleware create spans from it, so a rate limit check made by
// a request shows up as a child of that request's server span.
//
// When tracing is disabled New returns a no-op provider and the rest of the
// process is unchanged.
//
// # Trace Context Propagation
//
// HTTPMiddleware extracts W3C Trace Context from incoming requests:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// and reports the trace ID of every sampled request in the X-Trace-ID
// response header.
//
// # Sampling Strategies
//
//   - always: Sample all traces
//   - never: Sample no traces
//   - ratio: Sample a fraction of root traces
//
// Every strategy is parent based: a sampled caller keeps the trace sampled.
//
// # Usage
//
//	provider, err := tracing.New(cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(context.Background())
//
//	engine, err := limits.New(limits.Config{
//	    TracerProvider: provider.TracerProvider(),
//	    ...
//	})
package tracing
