// Package server runs the gatekeeper sidecar HTTP server.
//
// # Routes
//
//	GET  /health      liveness probe
//	GET  /ready       readiness probe (counter store ping)
//	GET  /metrics     Prometheus metrics (when enabled)
//	     /v1/...      sidecar API, see package handlers
//
// # Middleware Chain
//
// Every route runs behind Recovery, RequestID, Tracing, HTTP metrics and
// Logging. With server.throttle_api enabled the /v1 routes are additionally
// throttled per client address under the "api" policy.
//
// # Lifecycle
//
// Start listens on the configured address and blocks until its context is
// cancelled, then shuts down gracefully within the shutdown timeout:
//
//	srv := server.New(server.Options{Config: cfg.Server, Engine: engine})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
package server
