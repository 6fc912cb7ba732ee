// ABOUTME: Tests for the HTTP API client
// ABOUTME: Runs a real gateway handler behind httptest.Server

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attuned-gateway/internal/config"
	"github.com/2389/attuned-gateway/internal/gateway"
	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/state"
	"github.com/2389/attuned-gateway/internal/translate"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.MaxRequests = 10_000
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Finalize())

	gw, err := gateway.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})
	return srv
}

func TestClient_StateRoundTrip(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Store.EnableHistory = true })
	c := New(srv.URL+"/", "")
	ctx := t.Context()

	conf := 0.8
	err := c.UpsertState(ctx, StateUpdate{
		UserID:     "user-1",
		Source:     "self_report",
		Confidence: &conf,
		Axes:       map[string]float64{"warmth": 0.7, "formality": 0.3},
	})
	require.NoError(t, err)

	got, err := c.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, state.SourceSelfReport, got.Source)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"warmth": 0.7, "formality": 0.3}, got.Axes)
	assert.False(t, got.UpdatedAt().IsZero())

	require.NoError(t, c.UpsertState(ctx, StateUpdate{UserID: "user-1", Axes: map[string]float64{"warmth": 0.2}}))

	hist, err := c.History(ctx, "user-1", 5)
	require.NoError(t, err)
	require.Len(t, hist.Snapshots, 2)
	assert.InDelta(t, 0.2, hist.Snapshots[0].Axes["warmth"], 1e-9, "newest first")

	require.NoError(t, c.DeleteState(ctx, "user-1"))
	_, err = c.GetState(ctx, "user-1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_APIError(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL, "")

	err := c.UpsertState(t.Context(), StateUpdate{UserID: "u1", Axes: map[string]float64{"happiness": 0.5}})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, gateway.CodeValidation, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, err.Error(), gateway.CodeValidation)
	assert.False(t, IsNotFound(err))
}

func TestClient_APIKey(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Auth.APIKeys = []string{"secret"} })

	_, err := New(srv.URL, "").Axes(t.Context())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, gateway.CodeUnauthorized, apiErr.Code)

	axes, err := New(srv.URL, "secret").Axes(t.Context())
	require.NoError(t, err)
	assert.Len(t, axes, len(state.CanonicalAxes()))
}

func TestClient_ContextAndTranslate(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL, "")
	ctx := t.Context()

	require.NoError(t, c.UpsertState(ctx, StateUpdate{UserID: "u1", Axes: map[string]float64{"cognitive_load": 0.9}}))

	pc, err := c.Context(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, translate.VerbosityLow, pc.Verbosity)
	assert.Contains(t, pc.Flags, "high_cognitive_load")

	pc, err = c.Translate(ctx, TranslateInput{Axes: map[string]float64{"formality": 0.9}})
	require.NoError(t, err)
	assert.NotEmpty(t, pc.Tone)
}

func TestClient_Infer(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Inference.Enabled = true })
	c := New(srv.URL, "")

	res, err := c.Infer(t.Context(), InferInput{
		Message:         "I need this fixed ASAP!!! This is urgent and I'm really worried.",
		UserID:          "u1",
		IncludeFeatures: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Features)
	assert.Positive(t, res.Features.WordCount)
	assert.NotEmpty(t, res.Estimates)
}

func TestClient_InferDisabled(t *testing.T) {
	srv := newTestServer(t, nil)

	_, err := New(srv.URL, "").Infer(t.Context(), InferInput{Message: "hello"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, gateway.CodeInferenceDisabled, apiErr.Code)
}

func TestClient_Health(t *testing.T) {
	srv := newTestServer(t, nil)

	st, err := New(srv.URL, "").Health(t.Context())
	require.NoError(t, err)
	assert.Equal(t, health.Healthy, st.Status)
	assert.Equal(t, gateway.Version, st.Version)
}

func TestClient_HealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"status":"unhealthy","uptime_seconds":3,"components":[]}`)
	}))
	defer srv.Close()

	st, err := New(srv.URL, "").Health(t.Context())
	require.Error(t, err)
	require.NotNil(t, st)
	assert.Equal(t, health.Unhealthy, st.Status)
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetState(t.Context(), "u1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "").Axes(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sending request")
}
