// Package guardian assembles a ready-to-use progression service.
package guardian

import (
	"context"
	"log/slog"
	"time"

	mem "treeguardian/adapters/memory"
	"treeguardian/analytics"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/leaderboard"
	"treeguardian/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	rules   core.Rules
	hub     *realtime.Hub
	board   leaderboard.Board
	logger  *slog.Logger
	clock   func() time.Time
	hooks   []analytics.Hook
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithRules replaces the scoring constants and achievement catalog.
func WithRules(r core.Rules) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard overrides the in-process skiplist board.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

func WithClock(now func() time.Time) Option { return func(c *config) { c.clock = now } }

// WithHooks subscribes analytics hooks (or any event consumer) to every event.
func WithHooks(h ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, h...) }
}

// New builds a configured ProgressionService. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: core.DefaultRules
//   - leaderboard: skiplist
//   - dispatch: async
//
// Invalid rules are reported instead of silently replaced.
func New(opts ...Option) (*engine.ProgressionService, error) {
	cfg := &config{mode: engine.DispatchAsync, rules: core.DefaultRules()}
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.board == nil {
		cfg.board = leaderboard.NewSkipList()
	}
	var busOpts []engine.BusOption
	svcOpts := []engine.Option{engine.WithLeaderboard(cfg.board)}
	if cfg.logger != nil {
		busOpts = append(busOpts, engine.WithBusLogger(cfg.logger))
		svcOpts = append(svcOpts, engine.WithLogger(cfg.logger))
	}
	bus := engine.NewEventBus(cfg.mode, busOpts...)
	if cfg.clock != nil {
		svcOpts = append(svcOpts, engine.WithClock(cfg.clock))
	}
	svc := engine.NewProgressionService(cfg.storage, bus, cfg.rules, svcOpts...)
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	for _, h := range cfg.hooks {
		bus.SubscribeAll(h.OnEvent)
	}
	if err := svc.WarmLeaderboard(context.Background()); err != nil {
		return nil, err
	}
	return svc, nil
}
