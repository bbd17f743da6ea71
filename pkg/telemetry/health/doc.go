// Package health serves the gatekeeper liveness and readiness probes.
//
//   - /health answers 200 while the process runs.
//   - /ready runs every registered check (the counter store ping, by default)
//     and answers 503 when any of them fails.
//
// Checks run concurrently, each bounded by the checker timeout:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("store", engine.Ping)
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
package health
