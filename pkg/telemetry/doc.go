// Package telemetry groups the observability packages of the gatekeeper
// process.
//
// # Components
//
//   - logging: slog logger construction from configuration
//   - metrics: HTTP request metrics and the Prometheus scrape handler
//   - tracing: OpenTelemetry provider and request span middleware
//   - health: Liveness and readiness endpoints
//
// The limits engine registers its own metrics and spans through the
// Registerer and TracerProvider it is given, so the process wires one
// registry and one tracer provider through every component.
package telemetry
