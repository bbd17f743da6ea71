package types

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"examforge/gatekeeper/pkg/limits"
	"examforge/gatekeeper/pkg/limits/storage"
)

// ErrorResponse is the error envelope returned by the API.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`

	// RetryAfter is the number of seconds a rate limited caller should wait.
	RetryAfter int64 `json:"retry_after,omitempty"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeNotFound indicates a resource was not found (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeConflict indicates the request cannot be satisfied in the current state (409).
	ErrorTypeConflict = "conflict"

	// ErrorTypeRateLimitExceeded indicates too many requests (429).
	ErrorTypeRateLimitExceeded = "rate_limit_exceeded"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeServiceUnavailable indicates the counter store cannot be reached (503).
	ErrorTypeServiceUnavailable = "service_unavailable"
)

// Error code constants for common error scenarios.
const (
	CodeInvalidJSON         = "invalid_json"
	CodeInvalidValue        = "invalid_value"
	CodeUnknownPolicy       = "unknown_policy"
	CodeReservationNotFound = "reservation_not_found"
	CodeInsufficientBudget  = "insufficient_budget"
	CodeRateLimited         = "rate_limited"
	CodeStoreUnavailable    = "store_unavailable"
	CodeInternalError       = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for client errors (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewNotFoundError creates an error response for missing resources (404).
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, "", code)
}

// NewServerError creates an error response for internal server errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// NewServiceUnavailableError creates an error response for store failures (503).
func NewServiceUnavailableError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, "", CodeStoreUnavailable)
}

// NewRateLimitError creates an error response for rejected requests (429).
func NewRateLimitError(message string, retryAfter int64) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorTypeRateLimitExceeded, "", CodeRateLimited)
	resp.RetryAfter = retryAfter
	return resp
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError maps an engine error to an error response.
// Store failures and deadlines become 503 so callers fail closed.
func FromError(err error) *ErrorResponse {
	var verr *limits.ValidationError
	switch {
	case errors.As(err, &verr):
		return NewInvalidRequestError(verr.Error(), verr.Field, CodeInvalidValue)
	case errors.Is(err, limits.ErrUnknownPolicy):
		return NewNotFoundError(err.Error(), CodeUnknownPolicy)
	case storage.ErrUnavailable.Has(err), errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError("rate limit store unavailable")
	default:
		return NewServerError("An internal error occurred. Please try again later.")
	}
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		// Encoding errors are ignored once the header is written
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes resp with the status matching its type.
func WriteError(w http.ResponseWriter, resp *ErrorResponse) {
	WriteJSON(w, resp.Error.HTTPStatusCode(), resp)
}
