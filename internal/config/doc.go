// Package config handles configuration loading for attuned-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion. Every field has a default,
// so an empty file, or no file at all, gives a working single-node server.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ATTUNED_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/attuned/gateway.yaml
//  3. ~/.config/attuned/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  api_keys: ["${ATTUNED_API_KEY}"]
//
// Unset variables expand to the empty string. Empty API keys are dropped, so
// the example above disables auth when ATTUNED_API_KEY is unset.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  request_timeout: "30s"
//	rate_limit:
//	  window: "60s"
//	  cleanup_interval: "60s"
//	inference:
//	  baseline_ttl: "24h"
//
// # Backends
//
// store.backend selects memory, sqlite, redis or qdrant. rate_limit.backend
// selects memory or redis; the redis limiter shares store.redis connection
// settings.
package config
