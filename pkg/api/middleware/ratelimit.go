package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"examforge/gatekeeper/pkg/api/types"
	"examforge/gatekeeper/pkg/limits/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit      = "X-RateLimit-Limit"
	HeaderRateLimitRemaining  = "X-RateLimit-Remaining"
	HeaderRateLimitReset      = "X-RateLimit-Reset"
	HeaderRateLimitResetAfter = "X-RateLimit-Reset-After"
	HeaderRetryAfter          = "Retry-After"
)

// PolicyChecker checks an identity against a named policy.
// *limits.Engine implements it.
type PolicyChecker interface {
	CheckPolicy(ctx context.Context, name, id string) (ratelimit.Result, error)
	GetClientIP(r *http.Request) string
}

// CreateRateLimitHeaders returns the X-RateLimit-* headers for result.
func CreateRateLimitHeaders(result ratelimit.Result, limit int64) http.Header {
	return rateLimitHeaders(result, limit, time.Now())
}

func rateLimitHeaders(result ratelimit.Result, limit int64, now time.Time) http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(limit, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(max(result.Remaining, 0), 10))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
	h.Set(HeaderRateLimitResetAfter, strconv.FormatInt(ceilSeconds(result.RetryAfter(now)), 10))
	return h
}

// RateLimitResponse writes a 429 Too Many Requests response. Retry-After is
// the number of whole seconds until resetAt, and at least 1.
func RateLimitResponse(w http.ResponseWriter, resetAt time.Time) {
	rateLimitResponse(w, resetAt, time.Now())
}

func rateLimitResponse(w http.ResponseWriter, resetAt, now time.Time) {
	retryAfter := max(ceilSeconds(resetAt.Sub(now)), 1)

	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	types.WriteError(w, types.NewRateLimitError(
		fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		retryAfter,
	))
}

// CopyHeaders adds every value of src to w's headers.
func CopyHeaders(w http.ResponseWriter, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
}

// PolicyMiddleware returns middleware that throttles requests per client
// address under the named policy. Allowed requests carry the rate limit
// headers; rejected ones get RateLimitResponse. A store failure rejects the
// request with 503.
func PolicyMiddleware(checker PolicyChecker, policyName string) func(http.Handler) http.Handler {
	policy, known := ratelimit.Lookup(policyName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !known {
				types.WriteError(w, types.NewServerError(
					fmt.Sprintf("rate limit policy %q is not configured", policyName),
				))
				return
			}

			id := checker.GetClientIP(r)
			result, err := checker.CheckPolicy(r.Context(), policy.Name, id)
			if err != nil {
				types.WriteError(w, types.FromError(err))
				return
			}

			CopyHeaders(w, CreateRateLimitHeaders(result, policy.Limit))
			if !result.Success {
				RateLimitResponse(w, result.ResetAt)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the identity resolved by PolicyMiddleware.
// Returns empty string if not found.
func GetIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(IdentityKey).(string); ok {
		return id
	}
	return ""
}

// ceilSeconds rounds d up to whole seconds. Negative durations are 0.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
