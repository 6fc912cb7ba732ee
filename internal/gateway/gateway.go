// ABOUTME: Gateway orchestrator that wires the state store, auth gate and rate limiter
// ABOUTME: Owns the HTTP server lifecycle and background workers under one errgroup

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/2389/attuned-gateway/internal/auth"
	"github.com/2389/attuned-gateway/internal/config"
	"github.com/2389/attuned-gateway/internal/infer"
	"github.com/2389/attuned-gateway/internal/metrics"
	"github.com/2389/attuned-gateway/internal/ratelimit"
	"github.com/2389/attuned-gateway/internal/store"
	"github.com/2389/attuned-gateway/internal/translate"
)

// Version is reported by /health. The server binary overrides it at startup.
var Version = "dev"

// Gateway serves the attuned HTTP API.
type Gateway struct {
	config     *config.Config
	store      store.StateStore
	limiter    *ratelimit.Limiter
	gate       *auth.Gate
	translator translate.Translator
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger

	// engine is nil when inference is disabled; baselines is also nil when
	// inference.max_baselines is 0
	engine    infer.Engine
	baselines *infer.BaselineCache

	// redis is shared by the redis store and the redis limiter; nil when
	// neither is configured
	redis redis.UniversalClient

	started time.Time
}

// usesRedis reports whether any component needs the shared redis client.
func usesRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == store.BackendRedis || cfg.RateLimit.Backend == ratelimit.BackendRedis
}

func newRedisClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// initStore creates the configured state store backend.
func initStore(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient) (store.StateStore, error) {
	history := store.HistoryOptions{
		Enabled:    cfg.Store.EnableHistory,
		MaxPerUser: cfg.Store.MaxHistoryPerUser,
	}

	switch cfg.Store.Backend {
	case store.BackendMemory:
		return store.NewMemoryStore(store.MemoryConfig{History: history, Shards: cfg.Store.Shards}), nil

	case store.BackendSQLite:
		dbPath := cfg.Store.SQLite.Path
		if envPath := os.Getenv("ATTUNED_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		s, err := store.NewSQLiteStore(dbPath, history)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return s, nil

	case store.BackendRedis:
		return store.NewRedisStore(rdb, store.RedisConfig{
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
			History:   history,
		}), nil

	case store.BackendQdrant:
		q := cfg.Store.Qdrant
		s, err := store.NewQdrantStore(ctx, store.QdrantConfig{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     q.APIKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
			History:    history,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing qdrant store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// initLimiter creates the rate limiter and its counter backend.
func initLimiter(cfg *config.Config, rdb redis.UniversalClient) *ratelimit.Limiter {
	rl := cfg.RateLimit
	limCfg := ratelimit.Config{
		MaxRequests:       rl.MaxRequests,
		Window:            rl.Window,
		KeyStrategy:       ratelimit.KeyStrategy(rl.KeyStrategy),
		TrustProxyHeaders: rl.TrustProxyHeaders,
		KeyHeader:         cfg.Auth.HeaderName,
		KeyPrefix:         cfg.Auth.Prefix,
		Backend:           rl.Backend,
		CleanupInterval:   rl.CleanupInterval,
	}
	if rl.Unlimited {
		unlimited := ratelimit.Unlimited()
		limCfg.MaxRequests = unlimited.MaxRequests
	}

	var counter ratelimit.Counter
	if rl.Backend == ratelimit.BackendRedis {
		counter = ratelimit.NewRedisCounter(rdb, cfg.Store.Redis.KeyPrefix)
	}
	return ratelimit.New(limCfg, counter)
}

// New creates a new Gateway instance with the given configuration.
// cfg must already be finalized.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rdb redis.UniversalClient
	if usesRedis(cfg) {
		rdb = newRedisClient(cfg.Store.Redis)
	}

	s, err := initStore(context.Background(), cfg, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	gw := &Gateway{
		config:  cfg,
		store:   s,
		limiter: initLimiter(cfg, rdb),
		gate: auth.NewGate(auth.Config{
			APIKeys:     cfg.Auth.APIKeys,
			HeaderName:  cfg.Auth.HeaderName,
			Prefix:      cfg.Auth.Prefix,
			PublicPaths: cfg.PublicPaths(),
		}),
		translator: translate.NewRuleTranslator(),
		metrics:    metrics.New(),
		logger:     logger.With("component", "gateway"),
		redis:      rdb,
		started:    time.Now(),
	}

	if cfg.Inference.Enabled {
		gw.engine = infer.NewHeuristicEngine(infer.Config{
			MaxConfidence: cfg.Inference.MaxConfidence,
			MinWords:      cfg.Inference.MinWords,
		})
		if cfg.Inference.MaxBaselines > 0 {
			gw.baselines = infer.NewBaselineCache(cfg.Inference.BaselineTTL, cfg.Inference.MaxBaselines)
		}
	}

	if !gw.gate.Enabled() {
		gw.logger.Warn("auth disabled - no api_keys configured")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// inferFor runs inference, against the user's baseline when one is kept.
func (g *Gateway) inferFor(userID, message string) infer.Estimates {
	var estimates infer.Estimates
	if g.baselines != nil && userID != "" {
		estimates = g.engine.InferWithBaseline(message, g.baselines.Get(userID))
	} else {
		estimates = g.engine.Infer(message)
	}
	g.metrics.ObserveInference(len(estimates))
	return estimates
}

// Run starts the HTTP server and the limiter janitor and blocks until ctx
// is canceled or a worker fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"store", g.config.Store.Backend,
		"rate_limit_backend", g.config.RateLimit.Backend,
		"inference", g.engine != nil,
	)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		return g.limiter.Run(gctx)
	})

	grp.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return grp.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())
	if g.baselines != nil {
		g.baselines.Close()
	}
	if g.redis != nil && g.config.Store.Backend != store.BackendRedis {
		// The redis store closes the shared client itself.
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}

	return errors.Join(errs...)
}
