// Package client is a small HTTP client for the attuned-gateway API.
//
// It covers every /v1 route plus /health. Requests carry the configured API
// key as a Bearer token. Non-2xx responses come back as *APIError, with the
// code and request id lifted from the gateway's error envelope when present:
//
//	c := client.New("http://127.0.0.1:8080", os.Getenv("ATTUNED_API_KEY"))
//	st, err := c.GetState(ctx, "u1")
//	if client.IsNotFound(err) {
//		// no state yet
//	}
package client
