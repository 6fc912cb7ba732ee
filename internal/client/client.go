// ABOUTME: HTTP client for the attuned-gateway API
// ABOUTME: Used by the attuned CLI; decodes the gateway's JSON error envelope into APIError

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/infer"
	"github.com/2389/attuned-gateway/internal/state"
	"github.com/2389/attuned-gateway/internal/translate"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// StateUpdate is the body of POST /v1/state.
type StateUpdate struct {
	UserID     string             `json:"user_id"`
	Source     string             `json:"source,omitempty"`
	Confidence *float64           `json:"confidence,omitempty"`
	Axes       map[string]float64 `json:"axes"`
	Message    string             `json:"message,omitempty"`
}

// TranslateInput is the body of POST /v1/translate.
type TranslateInput struct {
	Axes       map[string]float64 `json:"axes"`
	Source     string             `json:"source,omitempty"`
	Confidence *float64           `json:"confidence,omitempty"`
}

// State is a stored snapshot as returned by the API.
type State struct {
	UserID          string             `json:"user_id"`
	UpdatedAtUnixMs int64              `json:"updated_at_unix_ms"`
	Source          state.Source       `json:"source"`
	Confidence      float64            `json:"confidence"`
	Axes            map[string]float64 `json:"axes"`
}

// UpdatedAt converts the wire timestamp.
func (s *State) UpdatedAt() time.Time {
	return time.UnixMilli(s.UpdatedAtUnixMs)
}

// History is the body of GET /v1/state/{user_id}/history.
type History struct {
	UserID    string  `json:"user_id"`
	Snapshots []State `json:"snapshots"`
}

// InferResult is the body of POST /v1/infer.
type InferResult struct {
	Estimates infer.Estimates `json:"estimates"`
	Features  *infer.Features `json:"features,omitempty"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the gateway.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL. An empty apiKey sends no credential.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpsertState writes a user's latest snapshot.
func (c *Client) UpsertState(ctx context.Context, update StateUpdate) error {
	return c.do(ctx, http.MethodPost, "/v1/state", update, nil)
}

// GetState reads a user's latest snapshot. Missing users return an error
// satisfying IsNotFound.
func (c *Client) GetState(ctx context.Context, userID string) (*State, error) {
	var out State
	if err := c.do(ctx, http.MethodGet, "/v1/state/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteState removes a user's state and history.
func (c *Client) DeleteState(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/state/"+url.PathEscape(userID), nil, nil)
}

// History returns up to limit snapshots, most recent first. limit <= 0 uses
// the server default.
func (c *Client) History(ctx context.Context, userID string, limit int) (*History, error) {
	path := "/v1/state/" + url.PathEscape(userID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out History
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Context returns prompt guidance for a user's stored state.
func (c *Client) Context(ctx context.Context, userID string) (*translate.PromptContext, error) {
	var out translate.PromptContext
	if err := c.do(ctx, http.MethodGet, "/v1/context/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Translate returns prompt guidance for inline axes.
func (c *Client) Translate(ctx context.Context, in TranslateInput) (*translate.PromptContext, error) {
	var out translate.PromptContext
	if err := c.do(ctx, http.MethodPost, "/v1/translate", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InferInput is the body of POST /v1/infer. A UserID compares the message
// with that user's baseline on the gateway.
type InferInput struct {
	Message         string `json:"message"`
	UserID          string `json:"user_id,omitempty"`
	IncludeFeatures bool   `json:"include_features,omitempty"`
}

// Infer asks the gateway to estimate axes from a message.
func (c *Client) Infer(ctx context.Context, in InferInput) (*InferResult, error) {
	var out InferResult
	if err := c.do(ctx, http.MethodPost, "/v1/infer", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Axes lists the canonical axes.
func (c *Client) Axes(ctx context.Context) ([]state.Axis, error) {
	var out struct {
		Axes []state.Axis `json:"axes"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/axes", nil, &out); err != nil {
		return nil, err
	}
	return out.Axes, nil
}

// Health returns the aggregated health. An unhealthy server answers 503 with
// a status body, which is returned alongside the error.
func (c *Client) Health(ctx context.Context) (*health.Status, error) {
	var out health.Status
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && out.Status != "" {
		return &out, err
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp, data)
		// health reports a body alongside 503
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable && apiErr.Code == "" {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}

	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		if envelope.Error.RequestID != "" {
			apiErr.RequestID = envelope.Error.RequestID
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
