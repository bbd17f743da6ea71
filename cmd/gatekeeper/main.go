// Gatekeeper is a rate limiting and AI token budget service.
//
// It keeps fixed-window counters in a shared store and exposes them over a
// small HTTP API:
//   - Named rate limit policies with optional penalty blocks
//   - Daily AI token budgets per identity
//   - Two-phase token reservations for streaming generations
//
// Usage:
//
//	# Start the sidecar with default configuration
//	gatekeeper run
//
//	# Start with a configuration file (reloaded on change)
//	gatekeeper run --config /etc/gatekeeper/config.yaml
//
//	# Inspect a counter in the configured store
//	gatekeeper counters peek auth:203.0.113.7
//
//	# Remove expired counters now
//	gatekeeper counters sweep
//
//	# List the rate limit policies
//	gatekeeper policies
package main

func main() {
	Execute()
}
