// Package ratelimit implements fixed-window rate limiting on the durable
// counter store.
//
// # Overview
//
// A Policy caps how many actions a subject may perform per window. Each check
// consumes one point from the counter stored under the policy key
// ("<policy>:<identity>"):
//
//	limiter := ratelimit.NewLimiter(counters)
//	result, err := limiter.Check(ctx, "auth:203.0.113.7", ratelimit.Auth)
//	if err != nil {
//	    // store failure: deny
//	}
//	if !result.Success {
//	    // rate limited until result.ResetAt
//	}
//
// # Penalty Blocks
//
// A policy with a Block duration punishes exhaustion: a rejected check pushes
// the window end out to now+Block, so a client hammering a login form stays
// locked out longer than one window. A Block never shortens a window.
//
// # Limitations
//
// Fixed windows permit up to twice the limit across a window boundary
// (limit at the end of one window, limit again at the start of the next).
//
// # Thread Safety
//
// Limiter is stateless apart from the store and is safe for concurrent use.
// Each check is a single atomic counter update.
package ratelimit
