// Package middleware provides HTTP middleware for the gatekeeper API.
//
// # Middleware Chain
//
// The server chains middleware in this order (outermost first):
//
//	Recovery -> RequestID -> Tracing -> Metrics -> Logging -> [Policy] -> handler
//
// Tracing and Metrics live in the telemetry packages.
//
// Policy throttling is optional and only wraps the /v1 routes when
// server.throttle_api is enabled.
//
// # Rate Limit Headers
//
// CreateRateLimitHeaders renders a policy result as response headers:
//
//	X-RateLimit-Limit: 300
//	X-RateLimit-Remaining: 299
//	X-RateLimit-Reset: 1731753060
//	X-RateLimit-Reset-After: 42
//
// Reset is a unix timestamp in seconds. Reset-After is the number of seconds
// until the window (or penalty block) ends.
//
// RateLimitResponse writes the 429 rejection with a Retry-After header of at
// least one second:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 42
//
//	{"error": {"message": "...", "type": "rate_limit_exceeded", "code": "rate_limited"}, "retry_after": 42}
//
// # Fail Closed
//
// When the counter store is unavailable PolicyMiddleware rejects the request
// with 503 Service Unavailable instead of letting it through.
package middleware
