// Package auth gates HTTP requests on a static set of API keys.
//
// # Gate
//
// A Gate holds BLAKE2b-256 digests of the configured keys, never the keys
// themselves. Check returns one of four outcomes:
//
//   - Admitted: public path, auth disabled, or a configured key
//   - Missing: no credential header
//   - Malformed: header present without the expected prefix
//   - InvalidKey: well-formed credential that matches no key
//
// A gate with no keys is disabled and admits every request.
//
// # Middleware
//
// HTTPMiddleware applies a Gate to an http.Handler. Response rendering is
// left to the caller through RejectFunc so the gateway controls the error
// body. Admitted requests carry an Identity whose KeyID is a short digest
// safe for logs.
package auth
