package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"examforge/gatekeeper/pkg/api/types"
)

// RecoveryMiddleware returns middleware that recovers from panics in HTTP
// handlers and answers 500 Internal Server Error in the standard error
// envelope. It logs the panic with stack trace but does not expose internal
// details to clients. http.ErrAbortHandler is re-raised so net/http can abort
// the connection.
//
// Example usage:
//
//	r.Use(RecoveryMiddleware(logger))
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					// Log the panic with stack trace
					logger.ErrorContext(r.Context(), "panic in handler",
						"error", err,
						"request_id", GetRequestID(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					// Write error response
					types.WriteError(w, types.NewServerError(
						"An internal error occurred. Please try again later.",
					))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
