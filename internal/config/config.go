// ABOUTME: Configuration loading and parsing for attuned-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete attuned-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Inference InferenceConfig `yaml:"inference" toml:"inference"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds listener and request handling settings
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	RequestTimeout  time.Duration `yaml:"-" toml:"-"`
	BodyLimit       int64         `yaml:"body_limit" toml:"body_limit"`
	CORSOrigins     []string      `yaml:"cors_origins" toml:"cors_origins"`
	SecurityHeaders bool          `yaml:"security_headers" toml:"security_headers"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// AuthConfig holds API key settings. No keys means auth is disabled.
type AuthConfig struct {
	APIKeys     []string `yaml:"api_keys" toml:"api_keys"`
	HeaderName  string   `yaml:"header_name" toml:"header_name"`
	Prefix      string   `yaml:"prefix" toml:"prefix"` // "" means the header holds the bare key
	PublicPaths []string `yaml:"public_paths" toml:"public_paths"`
}

// RateLimitConfig holds fixed-window limiter settings. The redis backend
// shares the connection settings of store.redis.
type RateLimitConfig struct {
	MaxRequests       uint32        `yaml:"max_requests" toml:"max_requests"`
	Unlimited         bool          `yaml:"unlimited" toml:"unlimited"`
	Window            time.Duration `yaml:"-" toml:"-"`
	KeyStrategy       string        `yaml:"key_strategy" toml:"key_strategy"`
	Backend           string        `yaml:"backend" toml:"backend"`
	CleanupInterval   time.Duration `yaml:"-" toml:"-"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers" toml:"trust_proxy_headers"`

	WindowRaw          string `yaml:"window" toml:"window"`
	CleanupIntervalRaw string `yaml:"cleanup_interval" toml:"cleanup_interval"`
}

// StoreConfig selects and configures the state store backend
type StoreConfig struct {
	Backend           string       `yaml:"backend" toml:"backend"`
	EnableHistory     bool         `yaml:"enable_history" toml:"enable_history"`
	MaxHistoryPerUser int          `yaml:"max_history_per_user" toml:"max_history_per_user"`
	Shards            int          `yaml:"shards" toml:"shards"`
	SQLite            SQLiteConfig `yaml:"sqlite" toml:"sqlite"`
	Redis             RedisConfig  `yaml:"redis" toml:"redis"`
	Qdrant            QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// SQLiteConfig holds the database file location
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// QdrantConfig holds Qdrant connection settings
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	UseTLS     bool   `yaml:"use_tls" toml:"use_tls"`
	Collection string `yaml:"collection" toml:"collection"`
}

// InferenceConfig toggles and tunes the heuristic inference engine. Per-user
// baselines are kept in memory, at most MaxBaselines of them, each dropped
// after BaselineTTL without a message.
type InferenceConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	MaxConfidence float64       `yaml:"max_confidence" toml:"max_confidence"`
	MinWords      int           `yaml:"min_words" toml:"min_words"`
	MaxBaselines  int           `yaml:"max_baselines" toml:"max_baselines"`
	BaselineTTL   time.Duration `yaml:"-" toml:"-"`

	BaselineTTLRaw string `yaml:"baseline_ttl" toml:"baseline_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:          "127.0.0.1:8080",
			RequestTimeoutRaw: "30s",
			BodyLimit:         1 << 20,
			SecurityHeaders:   true,
		},
		Auth: AuthConfig{
			HeaderName:  "Authorization",
			Prefix:      "Bearer ",
			PublicPaths: []string{"/health", "/ready"},
		},
		RateLimit: RateLimitConfig{
			MaxRequests:        100,
			WindowRaw:          "60s",
			KeyStrategy:        "ip",
			Backend:            "memory",
			CleanupIntervalRaw: "60s",
		},
		Store: StoreConfig{
			Backend:           "memory",
			MaxHistoryPerUser: 100,
			Shards:            64,
			SQLite:            SQLiteConfig{Path: "attuned.db"},
			Redis:             RedisConfig{Addr: "localhost:6379", KeyPrefix: "attuned"},
			Qdrant:            QdrantConfig{Host: "localhost", Port: 6334, Collection: "attuned_state"},
		},
		Inference: InferenceConfig{
			MaxConfidence:  0.7,
			MinWords:       3,
			MaxBaselines:   10_000,
			BaselineTTLRaw: "24h",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw config content over the defaults.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize parses durations, drops empty API keys and validates. Load and
// Parse call it; callers building a Config by hand should too.
func (c *Config) Finalize() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	// "${ATTUNED_API_KEY}" with the variable unset expands to ""
	keys := c.Auth.APIKeys[:0]
	for _, k := range c.Auth.APIKeys {
		if k != "" {
			keys = append(keys, k)
		}
	}
	c.Auth.APIKeys = keys

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Server.BodyLimit <= 0 {
		return fmt.Errorf("server.body_limit must be positive")
	}

	if c.Auth.HeaderName == "" {
		return fmt.Errorf("auth.header_name is required")
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	switch c.RateLimit.KeyStrategy {
	case "ip", "api_key":
	default:
		return fmt.Errorf("rate_limit.key_strategy must be ip or api_key, got %q", c.RateLimit.KeyStrategy)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case "redis":
	case "qdrant":
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("store.qdrant.host is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, redis, qdrant; got %q", c.Store.Backend)
	}
	if (c.Store.Backend == "redis" || c.RateLimit.Backend == "redis") && c.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required when redis is used")
	}
	if c.Store.MaxHistoryPerUser < 0 {
		return fmt.Errorf("store.max_history_per_user must not be negative")
	}

	if c.Inference.MaxConfidence < 0 || c.Inference.MaxConfidence > 1 {
		return fmt.Errorf("inference.max_confidence must be within [0, 1]")
	}
	if c.Inference.Enabled && c.Inference.MaxBaselines < 0 {
		return fmt.Errorf("inference.max_baselines must not be negative")
	}
	if c.Inference.Enabled && c.Inference.MaxBaselines > 0 && c.Inference.BaselineTTL <= 0 {
		return fmt.Errorf("inference.baseline_ttl must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error; got %q", c.Logging.Level)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// PublicPaths returns the auth-exempt paths, adding the metrics path when
// metrics are served.
func (c *Config) PublicPaths() []string {
	paths := append([]string(nil), c.Auth.PublicPaths...)
	if c.Metrics.Enabled {
		for _, p := range paths {
			if p == c.Metrics.Path {
				return paths
			}
		}
		paths = append(paths, c.Metrics.Path)
	}
	return paths
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.RequestTimeoutRaw != "" {
		cfg.Server.RequestTimeout, err = time.ParseDuration(cfg.Server.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Server.RequestTimeoutRaw, err)
		}
	}

	if cfg.RateLimit.WindowRaw != "" {
		cfg.RateLimit.Window, err = time.ParseDuration(cfg.RateLimit.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing window %q: %w", cfg.RateLimit.WindowRaw, err)
		}
	}

	if cfg.RateLimit.CleanupIntervalRaw != "" {
		cfg.RateLimit.CleanupInterval, err = time.ParseDuration(cfg.RateLimit.CleanupIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing cleanup_interval %q: %w", cfg.RateLimit.CleanupIntervalRaw, err)
		}
	}

	if cfg.Inference.BaselineTTLRaw != "" {
		cfg.Inference.BaselineTTL, err = time.ParseDuration(cfg.Inference.BaselineTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing baseline_ttl %q: %w", cfg.Inference.BaselineTTLRaw, err)
		}
	}

	return nil
}
