// Package metrics provides Prometheus instrumentation for the HTTP surface.
//
// # Overview
//
// The limits engine registers its own metrics (policy checks, budget checks,
// reservations, sweeps). This package adds the request-level view of the
// sidecar and serves every registered metric.
//
// # Metrics
//
//   - gatekeeper_http_requests_total: Requests by method, route and status
//   - gatekeeper_http_request_duration_seconds: Request latency by method and route
//   - gatekeeper_http_requests_in_flight: Requests currently being served
//
// Routes are chi route patterns ("/v1/budget/{identity}"), never raw paths,
// so identities do not become label values.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	httpMetrics := metrics.NewHTTPMetrics(reg)
//
//	r := chi.NewRouter()
//	r.Use(httpMetrics.Middleware)
//	r.Handle("/metrics", metrics.Handler(reg))
package metrics
