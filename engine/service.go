package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"treeguardian/core"
	"treeguardian/leaderboard"
)

// ProgressionService wires storage, the event bus and the progression rules
// into a cohesive API. Mutations for one player are serialized: each call
// loads the snapshot, applies a pure rule, saves, then publishes.
type ProgressionService struct {
	storage Storage
	bus     *EventBus
	rules   core.Rules
	board   leaderboard.Board
	logger  *slog.Logger
	now     func() time.Time

	locks sync.Map // map[core.PlayerID]*sync.Mutex
}

// Option tunes a ProgressionService.
type Option func(*ProgressionService)

// WithLogger sets the logger (defaults to slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(p *ProgressionService) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *ProgressionService) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLeaderboard keeps board in sync with every player's points.
func WithLeaderboard(b leaderboard.Board) Option {
	return func(p *ProgressionService) { p.board = b }
}

func NewProgressionService(storage Storage, bus *EventBus, rules core.Rules, opts ...Option) *ProgressionService {
	if storage == nil || bus == nil {
		panic("NewProgressionService requires non-nil storage and bus")
	}
	p := &ProgressionService{
		storage: storage,
		bus:     bus,
		rules:   rules,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Rules exposes the scoring constants and catalog in use.
func (p *ProgressionService) Rules() core.Rules { return p.rules }

// Subscribe convenience method.
func (p *ProgressionService) Subscribe(typ core.EventType, handler Handler) func() {
	return p.bus.Subscribe(typ, handler)
}

func (p *ProgressionService) Publish(ctx context.Context, ev core.Event) {
	p.bus.Publish(ctx, ev)
}

// StartSession runs the day check. A zero today means the service clock's
// current date.
func (p *ProgressionService) StartSession(ctx context.Context, player core.PlayerID, today core.Date) (core.RolloverResult, error) {
	var res core.RolloverResult
	err := p.mutate(ctx, player, func(st core.State, now time.Time) (core.State, []core.Event, error) {
		if today.IsZero() {
			today = core.DateOf(now)
		}
		next, r, err := p.rules.RolloverDay(st, today, now)
		res = r
		return next, r.Events, err
	})
	return res, err
}

// RecordIdentification applies an identification result to the player.
func (p *ProgressionService) RecordIdentification(ctx context.Context, player core.PlayerID, in core.Identification) (core.IdentificationResult, error) {
	if err := in.Validate(); err != nil {
		return core.IdentificationResult{}, err
	}
	var res core.IdentificationResult
	err := p.mutate(ctx, player, func(st core.State, now time.Time) (core.State, []core.Event, error) {
		next, r, err := p.rules.RecordIdentification(st, in, now)
		res = r
		return next, r.Events, err
	})
	return res, err
}

// RecordDiagnosis sets the health of a collected species.
func (p *ProgressionService) RecordDiagnosis(ctx context.Context, player core.PlayerID, in core.Diagnosis) (core.DiagnosisResult, error) {
	var res core.DiagnosisResult
	err := p.mutate(ctx, player, func(st core.State, now time.Time) (core.State, []core.Event, error) {
		next, r, err := p.rules.RecordDiagnosis(st, in, now)
		res = r
		return next, r.Events, err
	})
	return res, err
}

// EvaluateAchievements re-checks the catalog for a player, e.g. after the
// catalog gained entries.
func (p *ProgressionService) EvaluateAchievements(ctx context.Context, player core.PlayerID) ([]core.AchievementDefinition, error) {
	var unlocked []core.AchievementDefinition
	err := p.mutate(ctx, player, func(st core.State, now time.Time) (core.State, []core.Event, error) {
		next, defs, evs, err := p.rules.EvaluateAchievements(st, now)
		unlocked = defs
		return next, evs, err
	})
	return unlocked, err
}

// GetState returns the player's document; unknown players get the default.
func (p *ProgressionService) GetState(ctx context.Context, player core.PlayerID) (core.State, error) {
	normalized, err := core.NormalizePlayerID(player)
	if err != nil {
		return core.State{}, err
	}
	return p.load(ctx, normalized)
}

// Leaderboard returns the top n players, or nil without a board.
func (p *ProgressionService) Leaderboard(n int) []leaderboard.Entry {
	if p.board == nil {
		return nil
	}
	return p.board.TopN(n)
}

// Rank returns the player's leaderboard entry. ok is false without a board
// or when the player has never scored.
func (p *ProgressionService) Rank(player core.PlayerID) (leaderboard.Entry, bool) {
	normalized, err := core.NormalizePlayerID(player)
	if err != nil || p.board == nil {
		return leaderboard.Entry{}, false
	}
	return p.board.Get(normalized)
}

// WarmLeaderboard seeds the board from every stored player when the storage
// can enumerate them.
func (p *ProgressionService) WarmLeaderboard(ctx context.Context) error {
	lister, ok := p.storage.(Lister)
	if p.board == nil || !ok {
		return nil
	}
	players, err := lister.Players(ctx)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	for _, player := range players {
		st, err := p.load(ctx, player)
		if err != nil {
			return err
		}
		p.board.Update(player, st.User.Points)
	}
	p.logger.Info("leaderboard warmed", "players", len(players))
	return nil
}

func (p *ProgressionService) Close() { p.bus.Close() }

func (p *ProgressionService) lock(player core.PlayerID) *sync.Mutex {
	v, _ := p.locks.LoadOrStore(player, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// load decodes the stored snapshot. A missing snapshot is a fresh player; a
// corrupt one is logged and replaced by the default state.
func (p *ProgressionService) load(ctx context.Context, player core.PlayerID) (core.State, error) {
	raw, err := p.storage.LoadSnapshot(ctx, player)
	if errors.Is(err, core.ErrStateNotFound) {
		return p.rules.NewState(player), nil
	}
	if err != nil {
		return core.State{}, fmt.Errorf("load state: %w", err)
	}
	st, err := p.rules.DecodeSnapshot(player, raw)
	if err != nil {
		p.logger.Warn("discarding corrupt snapshot", "player", player, "error", err)
	}
	return st, nil
}

func (p *ProgressionService) mutate(ctx context.Context, player core.PlayerID, fn func(core.State, time.Time) (core.State, []core.Event, error)) error {
	normalized, err := core.NormalizePlayerID(player)
	if err != nil {
		return err
	}
	mu := p.lock(normalized)
	mu.Lock()
	defer mu.Unlock()

	st, err := p.load(ctx, normalized)
	if err != nil {
		return err
	}
	next, events, err := fn(st, p.now())
	if err != nil {
		return err
	}
	snapshot, err := core.EncodeSnapshot(next)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := p.storage.SaveSnapshot(ctx, normalized, snapshot); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if p.board != nil {
		p.board.Update(normalized, next.User.Points)
	}
	// stamped in place so the caller's result carries the published IDs
	for i := range events {
		events[i].ID = uuid.NewString()
		p.bus.Publish(ctx, events[i])
	}
	p.logger.Debug("state updated", "player", normalized, "events", len(events), "points", next.User.Points)
	return nil
}
