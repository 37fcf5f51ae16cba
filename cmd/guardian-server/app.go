package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"treeguardian/adapters/jsonfile"
	mem "treeguardian/adapters/memory"
	redisAdapter "treeguardian/adapters/redis"
	sqlxAdapter "treeguardian/adapters/sqlx"
	"treeguardian/analytics"
	"treeguardian/api/httpapi"
	"treeguardian/classifier"
	"treeguardian/config"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/guardian"
	"treeguardian/integrations/webhook"
	"treeguardian/leaderboard"
	"treeguardian/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Hub        *realtime.Hub
	Metrics    *analytics.Metrics
	Aggregator *analytics.AggregationEngine
	Service    *engine.ProgressionService
	Handler    http.Handler
	Server     *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("GUARDIAN_CONFIG_FILE"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	cfg.LoadSecretsFromEnv(ctx, config.NewEnvironmentSecretStore())
	// secrets may have filled the DSN or keys that validation inspects
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics() *analytics.Metrics {
	return analytics.NewMetrics()
}

func provideAggregator(cfg *config.Config, metrics *analytics.Metrics, logger *slog.Logger) *analytics.AggregationEngine {
	if !cfg.Analytics.Enabled {
		return nil
	}
	return analytics.NewAggregationEngine(metrics, cfg.Analytics.Interval, logger.With("component", "analytics"))
}

// provideStorage opens the configured adapter. The cleanup closes any
// connection the adapter holds.
func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("closing storage", "adapter", cfg.Storage.Adapter, "error", err)
			}
		}
	}
	return store, cleanup, nil
}

// provideBoard keeps the leaderboard next to the snapshots when they live
// in Redis so that several server instances share one ranking.
func provideBoard(storage engine.Storage, logger *slog.Logger) leaderboard.Board {
	if rs, ok := storage.(*redisAdapter.Store); ok {
		return redisAdapter.NewBoard(rs.Client(), redisAdapter.DefaultLeaderboardKey, logger)
	}
	return leaderboard.NewSkipList()
}

func provideClassifier(cfg *config.Config, logger *slog.Logger) (*classifier.Client, error) {
	if !cfg.Classifier.Enabled {
		return nil, nil
	}
	return classifier.New(cfg.Classifier.BaseURL,
		classifier.WithTimeout(cfg.Classifier.Timeout),
		classifier.WithLogger(logger.With("component", "classifier")),
	)
}

func provideService(cfg *config.Config, logger *slog.Logger, hub *realtime.Hub, metrics *analytics.Metrics, storage engine.Storage, board leaderboard.Board) (*engine.ProgressionService, func(), error) {
	opts := []guardian.Option{
		guardian.WithStorage(storage),
		guardian.WithRules(cfg.Game.Rules()),
		guardian.WithRealtime(hub),
		guardian.WithLeaderboard(board),
		guardian.WithDispatchMode(engine.DispatchAsync),
		guardian.WithLogger(logger),
		guardian.WithHooks(metrics),
	}
	if len(cfg.Webhooks.Endpoints) > 0 {
		types := make([]core.EventType, 0, len(cfg.Webhooks.EventTypes))
		for _, t := range cfg.Webhooks.EventTypes {
			types = append(types, core.EventType(t))
		}
		sink := webhook.New(cfg.Webhooks.Endpoints,
			webhook.WithTimeout(cfg.Webhooks.Timeout),
			webhook.WithEventTypes(types...),
			webhook.WithLogger(logger.With("component", "webhook")),
		)
		opts = append(opts, guardian.WithHooks(sink))
	}
	svc, err := guardian.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func provideHandler(cfg *config.Config, logger *slog.Logger, svc *engine.ProgressionService, hub *realtime.Hub, metrics *analytics.Metrics, agg *analytics.AggregationEngine, remote *classifier.Client) http.Handler {
	checks := map[string]func(context.Context) error{}
	if remote != nil {
		checks["classifier"] = remote.Ping
	}
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Metrics:          metrics,
		Aggregator:       agg,
		Checks:           checks,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	attrs := []slog.Attr{slog.String("service", "treeguardian"), slog.String("environment", string(cfg.Environment))}
	for k, v := range cfg.Logging.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	logger := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// setupStorage creates the storage adapter named by the configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
