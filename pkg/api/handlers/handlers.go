package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examforge/gatekeeper/pkg/api/middleware"
	"examforge/gatekeeper/pkg/api/types"
	"examforge/gatekeeper/pkg/limits/budget"
	"examforge/gatekeeper/pkg/limits/ratelimit"
	"examforge/gatekeeper/pkg/limits/reservation"
)

// Engine is the part of *limits.Engine the API serves.
type Engine interface {
	CheckPolicy(ctx context.Context, name, id string) (ratelimit.Result, error)
	GetClientIP(r *http.Request) string
	GetAITokenUsage(ctx context.Context, id string) (budget.Status, error)
	RecordAITokenUsage(ctx context.Context, id string, units int64) (budget.Status, error)
	ReserveAITokens(ctx context.Context, id string, estimatedUnits int64) (reservation.ReserveResult, error)
	CompleteTokenReservation(ctx context.Context, reservationID string, actualUnits int64) (reservation.CompleteResult, error)
	CancelTokenReservation(ctx context.Context, reservationID string) (bool, error)
	Policies() []ratelimit.Policy
}

// Handler serves the sidecar API.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// New creates a handler for engine. A nil logger uses slog.Default().
func New(engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger.With("component", "api"),
	}
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/policies", h.handleListPolicies)
	r.Post("/ratelimit/{policy}", h.handleRateLimit)

	r.Route("/budget/{identity}", func(r chi.Router) {
		r.Get("/", h.handleGetBudget)
		r.Post("/usage", h.handleRecordUsage)
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.handleReserve)
		r.Post("/{id}/complete", h.handleComplete)
		r.Delete("/{id}", h.handleCancel)
	})
}

// Router returns a standalone router with the API mounted under /v1.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", h.Routes)
	return r
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.engine.Policies()
	resp := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, newPolicyResponse(p))
	}
	types.WriteJSON(w, http.StatusOK, map[string]any{"policies": resp})
}

func (h *Handler) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	policy := chi.URLParam(r, "policy")

	var req RateLimitRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if req.Identity == "" {
		req.Identity = h.engine.GetClientIP(r)
	}

	result, err := h.engine.CheckPolicy(r.Context(), policy, req.Identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	middleware.CopyHeaders(w, middleware.CreateRateLimitHeaders(result, result.Limit))
	if !result.Success {
		middleware.RateLimitResponse(w, result.ResetAt)
		return
	}
	types.WriteJSON(w, http.StatusOK, newRateLimitResponse(policy, req.Identity, result))
}

func (h *Handler) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")

	status, err := h.engine.GetAITokenUsage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, newBudgetResponse(id, status))
}

func (h *Handler) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")

	var req UsageRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	status, err := h.engine.RecordAITokenUsage(r.Context(), id, req.Units)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, newBudgetResponse(id, status))
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result, err := h.engine.ReserveAITokens(r.Context(), req.Identity, req.EstimatedUnits)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !result.Success {
		types.WriteJSON(w, http.StatusConflict, result)
		return
	}
	types.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CompleteRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result, err := h.engine.CompleteTokenReservation(r.Context(), id, req.ActualUnits)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !result.Success {
		types.WriteJSON(w, http.StatusNotFound, result)
		return
	}
	types.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.engine.CancelTokenReservation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		types.WriteError(w, types.NewNotFoundError("reservation not found", types.CodeReservationNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into v. An empty body is accepted when
// allowEmpty is set. It writes a 400 and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		types.WriteError(w, types.NewInvalidRequestError("request body too large", "", types.CodeInvalidValue))
		return false
	}
	types.WriteError(w, types.NewInvalidRequestError("invalid JSON body: "+err.Error(), "", types.CodeInvalidJSON))
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := types.FromError(err)
	if resp.Error.HTTPStatusCode() >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	types.WriteError(w, resp)
}
