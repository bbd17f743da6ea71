package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examforge/gatekeeper/pkg/limits"
	"examforge/gatekeeper/pkg/limits/storage"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantParam  string
	}{
		{
			name:       "validation error",
			err:        &limits.ValidationError{Field: "identity", Message: "cannot be empty", Err: limits.ErrInvalidIdentity},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidValue,
			wantParam:  "identity",
		},
		{
			name:       "unknown policy",
			err:        fmt.Errorf("%w: %q", limits.ErrUnknownPolicy, "nope"),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeUnknownPolicy,
		},
		{
			name:       "store unavailable",
			err:        storage.ErrUnavailable.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeStoreUnavailable,
		},
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("update: %w", context.DeadlineExceeded),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeStoreUnavailable,
		},
		{
			name:       "anything else",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromError(tt.err)
			assert.Equal(t, tt.wantStatus, resp.Error.HTTPStatusCode())
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantParam, resp.Error.Param)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, NewRateLimitError("slow down", 12))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrorTypeRateLimitExceeded, body.Error.Type)
	assert.Equal(t, int64(12), body.RetryAfter)
}
