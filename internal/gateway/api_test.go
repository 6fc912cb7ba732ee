// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Drives the full chi pipeline through httptest against an in-memory store

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attuned-gateway/internal/config"
	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/infer"
	"github.com/2389/attuned-gateway/internal/state"
	"github.com/2389/attuned-gateway/internal/translate"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a finalized default config with a generous rate limit.
func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.RateLimit.MaxRequests = 10_000
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Finalize())
	return cfg
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *Gateway {
	t.Helper()
	gw, err := New(testConfig(t, mutate), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp.Error
}

func TestUpsertAndGetState(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/state",
		`{"user_id":"u1","source":"self_report","confidence":0.9,"axes":{"warmth":0.8,"formality":0.2}}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, state.SourceSelfReport, got.Source)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"warmth": 0.8, "formality": 0.2}, got.Axes)
	assert.Positive(t, got.UpdatedAtUnixMs)
}

func TestUpsertState_Defaults(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/state", `{"user_id":"u1","axes":{"warmth":0.5}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var got StateResponse
	rec = doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, state.SourceSelfReport, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestUpsertState_Replaces(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	doRequest(t, h, http.MethodPost, "/v1/state", `{"user_id":"u1","axes":{"warmth":0.1,"formality":0.9}}`)
	doRequest(t, h, http.MethodPost, "/v1/state", `{"user_id":"u1","axes":{"warmth":0.6}}`)

	var got StateResponse
	rec := doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]float64{"warmth": 0.6}, got.Axes, "store overwrites, never merges")
}

func TestGetState_NotFound(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/state/nobody", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	e := decodeError(t, rec)
	assert.Equal(t, CodeUserNotFound, e.Code)
	assert.Contains(t, e.Message, "nobody")
	assert.Equal(t, rec.Header().Get(RequestIDHeader), e.RequestID)
}

func TestUpsertState_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"user_id":`, CodeInvalidRequest},
		{"wrong type", `{"user_id":"u1","axes":{"warmth":"high"}}`, CodeInvalidRequest},
		{"empty user", `{"user_id":"","axes":{"warmth":0.5}}`, CodeValidation},
		{"long user", fmt.Sprintf(`{"user_id":%q,"axes":{}}`, strings.Repeat("x", 300)), CodeValidation},
		{"unknown axis", `{"user_id":"u1","axes":{"happiness":0.5}}`, CodeValidation},
		{"axis above range", `{"user_id":"u1","axes":{"warmth":1.5}}`, CodeValidation},
		{"axis below range", `{"user_id":"u1","axes":{"warmth":-0.1}}`, CodeValidation},
		{"bad source", `{"user_id":"u1","source":"guess","axes":{}}`, CodeValidation},
		{"bad confidence", `{"user_id":"u1","confidence":2,"axes":{}}`, CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, nil)
			rec := doRequest(t, gw.Handler(), http.MethodPost, "/v1/state", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)

			snap, err := gw.store.GetLatest(t.Context(), "u1")
			require.NoError(t, err)
			assert.Nil(t, snap, "rejected write must not reach the store")
		})
	}
}

func TestUpsertState_BodyTooLarge(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) { c.Server.BodyLimit = 64 }).Handler()

	body := fmt.Sprintf(`{"user_id":%q,"axes":{"warmth":0.5}}`, strings.Repeat("u", 200))
	rec := doRequest(t, h, http.MethodPost, "/v1/state", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodePayloadTooLarge, decodeError(t, rec).Code)
}

func TestDeleteState(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodDelete, "/v1/state/ghost", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting an unknown user succeeds")

	doRequest(t, h, http.MethodPost, "/v1/state", `{"user_id":"u1","axes":{"warmth":0.5}}`)
	rec = doRequest(t, h, http.MethodDelete, "/v1/state/u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/v1/state/u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStateHistory(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Store.EnableHistory = true
		c.Store.MaxHistoryPerUser = 3
	}).Handler()

	for i := 1; i <= 5; i++ {
		body := fmt.Sprintf(`{"user_id":"u1","axes":{"warmth":0.%d}}`, i)
		require.Equal(t, http.StatusNoContent, doRequest(t, h, http.MethodPost, "/v1/state", body).Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/state/u1/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.UserID)
	require.Len(t, got.Snapshots, 3)
	assert.InDelta(t, 0.5, got.Snapshots[0].Axes["warmth"], 1e-9, "most recent first")
	assert.InDelta(t, 0.4, got.Snapshots[1].Axes["warmth"], 1e-9)
	assert.InDelta(t, 0.3, got.Snapshots[2].Axes["warmth"], 1e-9)

	rec = doRequest(t, h, http.MethodGet, "/v1/state/u1/history?limit=2", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Snapshots, 2)

	for _, bad := range []string{"0", "-1", "abc"} {
		rec = doRequest(t, h, http.MethodGet, "/v1/state/u1/history?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
		assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Code)
	}
}

func TestStateHistory_Disabled(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	doRequest(t, h, http.MethodPost, "/v1/state", `{"user_id":"u1","axes":{"warmth":0.5}}`)
	rec := doRequest(t, h, http.MethodGet, "/v1/state/u1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1","snapshots":[]}`, rec.Body.String())
}

func TestGetContext(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/context/u1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeUserNotFound, decodeError(t, rec).Code)

	doRequest(t, h, http.MethodPost, "/v1/state",
		`{"user_id":"u1","axes":{"cognitive_load":0.9,"verbosity_preference":0.9,"warmth":0.9}}`)

	rec = doRequest(t, h, http.MethodGet, "/v1/context/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pc translate.PromptContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pc))
	assert.Equal(t, translate.VerbosityLow, pc.Verbosity, "cognitive load overrides verbosity preference")
	assert.Contains(t, pc.Flags, "high_cognitive_load")
	assert.Equal(t, "warm-balanced", pc.Tone)
	assert.NotEmpty(t, pc.Guidelines)
}

func TestTranslate(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/translate", `{"axes":{"formality":0.9},"confidence":0.3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pc translate.PromptContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pc))
	assert.Equal(t, "neutral-formal", pc.Tone)
	assert.Equal(t, translate.VerbosityMedium, pc.Verbosity)
	assert.Contains(t, pc.Flags, "low_confidence")

	rec = doRequest(t, h, http.MethodPost, "/v1/translate", `{"axes":{"nope":0.9}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
}

func TestInfer_Disabled(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/infer", `{"message":"hello there friend"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeInferenceDisabled, decodeError(t, rec).Code)
}

func TestInfer(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) { c.Inference.Enabled = true }).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/infer",
		`{"message":"I'm really worried and not sure what to do, please help ASAP!","include_features":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got InferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.Estimates)
	_, ok := got.Estimates.Get("anxiety_level")
	assert.True(t, ok, "negative emotion should produce an anxiety estimate")
	for _, est := range got.Estimates {
		assert.True(t, state.IsKnownAxis(est.Axis), est.Axis)
		assert.GreaterOrEqual(t, est.Value, 0.0)
		assert.LessOrEqual(t, est.Value, 1.0)
		assert.Equal(t, "linguistic", est.Source.Type)
	}
	require.NotNil(t, got.Features)
	assert.Positive(t, got.Features.WordCount)

	rec = doRequest(t, h, http.MethodPost, "/v1/infer", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"estimates":[]}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodPost, "/v1/infer", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
}

func TestUpsertState_MergesInference(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.Inference.Enabled = true })
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/state",
		`{"user_id":"u1","axes":{"anxiety_level":0.1},"message":"I am so worried and scared about this deadline"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	snap, err := gw.store.GetLatest(t.Context(), "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, state.SourceMixed, snap.Source)
	assert.Equal(t, 0.1, snap.Axes["anxiety_level"], "explicit axes win over inferred ones")
	assert.Contains(t, snap.Axes, "verbosity_preference")
}

func TestInfer_UserBaseline(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.Inference.Enabled = true })
	h := gw.Handler()
	require.NotNil(t, gw.baselines)

	for i := range 6 {
		body := fmt.Sprintf(`{"user_id":"u1","message":"Quick status note %d, the rollout is going fine and nothing is blocked."}`, i)
		rec := doRequest(t, h, http.MethodPost, "/v1/infer", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 1, gw.baselines.Len())

	rec := doRequest(t, h, http.MethodPost, "/v1/infer", `{"user_id":"u1","message":"HELP!!! everything is broken NOW, I'm panicking!!!"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got InferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	var sources []string
	for _, est := range got.Estimates {
		sources = append(sources, est.Source.Type)
	}
	assert.Contains(t, sources, infer.SourceDelta, "departure from the user's norm is reported")

	// anonymous requests never touch baselines
	doRequest(t, h, http.MethodPost, "/v1/infer", `{"message":"HELP!!! everything is broken NOW, I'm panicking!!!"}`)
	assert.Equal(t, 1, gw.baselines.Len())

	rec = doRequest(t, h, http.MethodDelete, "/v1/state/u1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, gw.baselines.Len(), "erasure drops the baseline")
}

func TestInfer_BaselinesDisabled(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) {
		c.Inference.Enabled = true
		c.Inference.MaxBaselines = 0
	})
	assert.Nil(t, gw.baselines)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/v1/infer", `{"user_id":"u1","message":"all good on my side today"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpsertState_MessageIgnoredWhenInferenceDisabled(t *testing.T) {
	gw := newTestGateway(t, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/v1/state",
		`{"user_id":"u1","axes":{"warmth":0.4},"message":"I am so worried and scared about this deadline"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	snap, err := gw.store.GetLatest(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, state.SourceSelfReport, snap.Source)
	assert.Equal(t, map[string]float64{"warmth": 0.4}, snap.Axes)
}

func TestListAxes(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got AxesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Axes, len(state.CanonicalAxes()))
	assert.Equal(t, "cognitive_load", got.Axes[0].Name)
}

func TestHealthAndReady(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, health.Healthy, status.Status)
	assert.Equal(t, Version, status.Version)
	require.Len(t, status.Components, 1)
	assert.Equal(t, "memory_store", status.Components[0].Name)

	rec = doRequest(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v2/nothing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodPut, "/v1/state/u1", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, CodeMethodNotAllowed, decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `attuned_http_requests_total{method="GET",route="/v1/state/{user_id}",status="404"} 1`)
	assert.Contains(t, rec.Body.String(), `attuned_store_operations_total{op="get_latest"} 1`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) { c.Metrics.Enabled = false }).Handler()

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
