// ABOUTME: HTTP API handlers for reading, writing and translating user state
// ABOUTME: Builds the chi router and maps store and validation errors to JSON responses

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/2389/attuned-gateway/internal/auth"
	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/infer"
	"github.com/2389/attuned-gateway/internal/state"
	"github.com/2389/attuned-gateway/internal/store"
)

// Error codes returned in the JSON error body.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeStoreError        = "STORE_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInferenceDisabled = "INFERENCE_DISABLED"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
)

// History limits for GET /v1/state/{user_id}/history.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 1000
)

// AnonymousUserID is used for inline translation requests.
const AnonymousUserID = "_anonymous"

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// UpsertStateRequest is the JSON request body for POST /v1/state.
type UpsertStateRequest struct {
	UserID     string             `json:"user_id" validate:"required,max=256"`
	Source     string             `json:"source,omitempty" validate:"omitempty,oneof=self_report inferred mixed"`
	Confidence *float64           `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Axes       map[string]float64 `json:"axes"`
	// Message, when inference is enabled, is analyzed and merged under the
	// explicit axes.
	Message string `json:"message,omitempty" validate:"max=32768"`
}

// TranslateRequest is the JSON request body for POST /v1/translate.
type TranslateRequest struct {
	Axes       map[string]float64 `json:"axes"`
	Source     string             `json:"source,omitempty" validate:"omitempty,oneof=self_report inferred mixed"`
	Confidence *float64           `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// InferRequest is the JSON request body for POST /v1/infer.
type InferRequest struct {
	Message         string `json:"message" validate:"required,max=32768"`
	UserID          string `json:"user_id,omitempty" validate:"max=256"`
	IncludeFeatures bool   `json:"include_features,omitempty"`
}

// StateResponse is the JSON response for GET /v1/state/{user_id}.
type StateResponse struct {
	UserID          string             `json:"user_id"`
	UpdatedAtUnixMs int64              `json:"updated_at_unix_ms"`
	Source          state.Source       `json:"source"`
	Confidence      float64            `json:"confidence"`
	Axes            map[string]float64 `json:"axes"`
}

// HistoryResponse is the JSON response for GET /v1/state/{user_id}/history.
type HistoryResponse struct {
	UserID    string          `json:"user_id"`
	Snapshots []StateResponse `json:"snapshots"`
}

// InferResponse is the JSON response for POST /v1/infer.
type InferResponse struct {
	Estimates infer.Estimates `json:"estimates"`
	Features  *infer.Features `json:"features,omitempty"`
}

// AxesResponse is the JSON response for GET /v1/axes.
type AxesResponse struct {
	Axes []state.Axis `json:"axes"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func stateResponse(s *state.Snapshot) StateResponse {
	return StateResponse{
		UserID:          s.UserID,
		UpdatedAtUnixMs: s.UpdatedAtUnixMs,
		Source:          s.Source,
		Confidence:      s.Confidence,
		Axes:            s.Axes,
	}
}

// Handler returns the full request pipeline. Middleware order matters:
// security headers wrap everything so rejections carry them, and auth runs
// before the limiter so a bad key is never hidden behind a 429.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	if g.config.Server.SecurityHeaders {
		r.Use(withSecurityHeaders)
	}
	r.Use(withRequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.accessLog)
	r.Use(cors(g.config.Server.CORSOrigins))
	if g.config.Server.BodyLimit > 0 {
		r.Use(middleware.RequestSize(g.config.Server.BodyLimit))
	}
	if g.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(g.config.Server.RequestTimeout))
	}
	r.Use(auth.HTTPMiddleware(g.gate, g.logger, g.rejectAuth))
	r.Use(g.rateLimit)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		g.writeError(w, r, http.StatusNotFound, CodeNotFound, "No route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		g.writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/health", g.handleHealth)
	r.Get("/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/state", g.handleUpsertState)
		r.Get("/state/{user_id}", g.handleGetState)
		r.Delete("/state/{user_id}", g.handleDeleteState)
		r.Get("/state/{user_id}/history", g.handleStateHistory)
		r.Get("/context/{user_id}", g.handleGetContext)
		r.Post("/translate", g.handleTranslate)
		r.Post("/infer", g.handleInfer)
		r.Get("/axes", g.handleListAxes)
	})

	return r
}

// handleUpsertState handles POST /v1/state.
func (g *Gateway) handleUpsertState(w http.ResponseWriter, r *http.Request) {
	var req UpsertStateRequest
	if !g.decodeRequest(w, r, &req) {
		return
	}

	src, err := state.ParseSource(req.Source)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	axes := req.Axes
	if g.engine != nil && req.Message != "" {
		estimates := g.inferFor(req.UserID, req.Message)
		axes = mergeInferred(req.Axes, estimates)
		if len(estimates) > 0 && src == state.SourceSelfReport {
			src = state.SourceMixed
		}
	}

	b := state.NewBuilder().UserID(req.UserID).Source(src).Axes(axes)
	if req.Confidence != nil {
		b = b.Confidence(*req.Confidence)
	}
	snap, err := b.Build()
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	err = g.store.UpsertLatest(r.Context(), snap)
	g.observeStore("upsert_latest", err)
	if err != nil {
		g.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mergeInferred overlays explicit axes on top of inferred estimates.
func mergeInferred(explicit map[string]float64, estimates infer.Estimates) map[string]float64 {
	merged := estimates.Axes()
	for k, v := range explicit {
		merged[k] = v
	}
	return merged
}

// handleGetState handles GET /v1/state/{user_id}.
func (g *Gateway) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap, ok := g.loadLatest(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, stateResponse(snap))
}

// handleDeleteState handles DELETE /v1/state/{user_id}. Deleting an unknown
// user succeeds. The user's inference baseline goes too.
func (g *Gateway) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if g.baselines != nil {
		g.baselines.Forget(userID)
	}
	err := g.store.Delete(r.Context(), userID)
	g.observeStore("delete", err)
	if err != nil {
		g.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStateHistory handles GET /v1/state/{user_id}/history?limit=N.
func (g *Gateway) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			g.writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	snaps, err := g.store.GetHistory(r.Context(), userID, limit)
	g.observeStore("get_history", err)
	if err != nil {
		g.writeStoreError(w, r, err)
		return
	}

	resp := HistoryResponse{UserID: userID, Snapshots: make([]StateResponse, 0, len(snaps))}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, stateResponse(s))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleGetContext handles GET /v1/context/{user_id}.
func (g *Gateway) handleGetContext(w http.ResponseWriter, r *http.Request) {
	snap, ok := g.loadLatest(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, g.translator.ToPromptContext(snap))
}

// handleTranslate handles POST /v1/translate.
func (g *Gateway) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if !g.decodeRequest(w, r, &req) {
		return
	}

	src, err := state.ParseSource(req.Source)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	b := state.NewBuilder().UserID(AnonymousUserID).Source(src).Axes(req.Axes)
	if req.Confidence != nil {
		b = b.Confidence(*req.Confidence)
	}
	snap, err := b.Build()
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, g.translator.ToPromptContext(snap))
}

// handleInfer handles POST /v1/infer. Nothing is stored.
func (g *Gateway) handleInfer(w http.ResponseWriter, r *http.Request) {
	if g.engine == nil {
		g.writeError(w, r, http.StatusServiceUnavailable, CodeInferenceDisabled, "Inference is not enabled on this server")
		return
	}

	var req InferRequest
	if !g.decodeRequest(w, r, &req) {
		return
	}

	estimates := g.inferFor(req.UserID, req.Message)
	if estimates == nil {
		estimates = infer.Estimates{}
	}

	resp := InferResponse{Estimates: estimates}
	if req.IncludeFeatures {
		f := infer.ExtractFeatures(req.Message)
		resp.Features = &f
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleListAxes handles GET /v1/axes.
func (g *Gateway) handleListAxes(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, AxesResponse{Axes: state.CanonicalAxes()})
}

// handleHealth reports aggregated component health. Degraded still answers
// 200; only unhealthy answers 503.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	var check health.ComponentHealth
	if c, ok := g.store.(health.Checker); ok {
		check = c.Check(r.Context())
	} else {
		check = health.Timed("store", 0, func() error { return g.store.HealthCheck(r.Context()) })
	}

	status := health.FromChecks([]health.ComponentHealth{check}, time.Since(g.started))
	status.Version = Version

	code := http.StatusOK
	if status.Status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	g.writeJSON(w, code, status)
}

// handleReady returns 200 when the store answers its health check.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.HealthCheck(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		g.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// loadLatest fetches the user's latest snapshot, writing the error response
// itself when there is none.
func (g *Gateway) loadLatest(w http.ResponseWriter, r *http.Request) (*state.Snapshot, bool) {
	userID := chi.URLParam(r, "user_id")
	snap, err := g.store.GetLatest(r.Context(), userID)
	g.observeStore("get_latest", err)
	if err != nil {
		g.writeStoreError(w, r, err)
		return nil, false
	}
	if snap == nil {
		g.writeError(w, r, http.StatusNotFound, CodeUserNotFound, "No state found for user: "+userID)
		return nil, false
	}
	return snap, true
}

// decodeRequest parses and validates a JSON body, writing the error response
// on failure.
func (g *Gateway) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		g.writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders the first failed rule.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("validation error: %s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("validation error: %s failed %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func (g *Gateway) observeStore(op string, err error) {
	if err == nil {
		g.metrics.ObserveStore(op, "")
		return
	}
	kind := store.KindInternal
	var se *store.Error
	if errors.As(err, &se) {
		kind = se.Kind
	}
	g.metrics.ObserveStore(op, kind.String())
}

// writeStoreError maps store failures: validation is the caller's fault,
// everything else is ours.
func (g *Gateway) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if store.IsValidation(err) {
		g.writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	g.logger.Error("store operation failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
	g.writeError(w, r, http.StatusInternalServerError, CodeStoreError, err.Error())
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to encode response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	g.writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}
