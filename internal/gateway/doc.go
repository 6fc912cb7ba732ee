// Package gateway serves the attuned HTTP API.
//
// # Overview
//
// The gateway is the composition root of attuned-gateway. New builds every
// component from configuration and owns them for the life of the process:
// the state store, the rate limiter, the API key gate, the translator, the
// optional inference engine with its per-user baselines and the Prometheus
// registry. Nothing is a
// package-level singleton; handlers reach shared state through *Gateway.
//
// # Request Pipeline
//
// Middleware runs in this order, outermost first:
//
//  1. security headers (when server.security_headers is set)
//  2. request id (X-Request-ID, generated when absent)
//  3. panic recovery
//  4. access log and request metrics
//  5. CORS (only for configured origins)
//  6. body size limit
//  7. request timeout
//  8. API key gate
//  9. rate limiter
//
// Security headers come first so 401 and 429 responses carry them. The gate
// runs before the limiter so an invalid key is reported as 401 rather than
// hidden behind an exhausted budget, and rejected requests never spend it.
//
// # HTTP API
//
//   - POST /v1/state - Upsert a user's latest snapshot
//   - GET /v1/state/{user_id} - Read the latest snapshot
//   - DELETE /v1/state/{user_id} - Remove state and history (idempotent)
//   - GET /v1/state/{user_id}/history - Most-recent-first history
//   - GET /v1/context/{user_id} - Prompt guidance for the stored state
//   - POST /v1/translate - Prompt guidance for inline axes
//   - POST /v1/infer - Axis estimates from free text
//   - GET /v1/axes - Canonical axis registry
//   - GET /health - Aggregated component health
//   - GET /ready - Store readiness
//   - GET /metrics - Prometheus exposition
//
// Inference on a request that names a user also compares the message with
// that user's running baseline. Deleting a user's state drops the baseline.
//
// Errors use one JSON shape:
//
//	{"error": {"code": "USER_NOT_FOUND", "message": "...", "request_id": "..."}}
//
// # Lifecycle
//
// Run listens on server.http_addr and runs the HTTP server and the limiter
// janitor under an errgroup. Canceling the context triggers a graceful
// shutdown with a 5 second budget, after which the store and any shared
// redis client are closed.
package gateway
