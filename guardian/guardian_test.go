package guardian

import (
	"context"
	"testing"
	"time"

	mem "treeguardian/adapters/memory"
	"treeguardian/analytics"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	metrics := analytics.NewMetrics()
	clock := func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	svc, err := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
		WithHooks(metrics),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, ch := hub.Subscribe(8, "alice")
	res, err := svc.RecordIdentification(context.Background(), "alice", core.Identification{Species: "Birch", Confidence: 77})
	if err != nil || !res.IsNewDiscovery {
		t.Fatalf("identify res=%+v err=%v", res, err)
	}

	// realtime bridge should receive the first event
	ev := <-ch
	if ev.PlayerID != "alice" || ev.Type != core.EventSpeciesIdentified {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if got := metrics.Day("2024-05-01").Identifications; got != 1 {
		t.Fatalf("expected analytics hook to count 1 identification, got %d", got)
	}
	if top := svc.Leaderboard(1); len(top) != 1 || top[0].Player != "alice" {
		t.Fatalf("unexpected leaderboard: %+v", top)
	}
}

func TestInMemoryDefault(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()
	if _, err := svc.RecordIdentification(context.Background(), "bob", core.Identification{Species: "Oak", Confidence: 50}); err != nil {
		t.Fatalf("default identify: %v", err)
	}
	state, err := svc.GetState(context.Background(), "bob")
	if err != nil {
		t.Fatalf("default get state: %v", err)
	}
	if len(state.Collection) != 1 {
		t.Fatalf("expected 1 species, got %d", len(state.Collection))
	}
}

func TestWarmsLeaderboardFromStorage(t *testing.T) {
	store := mem.New()
	seed, err := New(WithStorage(store), WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.RecordIdentification(context.Background(), "carol", core.Identification{Species: "Oak", Confidence: 50}); err != nil {
		t.Fatal(err)
	}

	svc, err := New(WithStorage(store), WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	if top := svc.Leaderboard(1); len(top) != 1 || top[0].Player != "carol" {
		t.Fatalf("expected warmed leaderboard, got %+v", top)
	}
}

func TestInvalidRules(t *testing.T) {
	r := core.DefaultRules()
	r.ExperiencePerLevel = 0
	if _, err := New(WithRules(r)); err == nil {
		t.Fatal("expected invalid rules to be rejected")
	}
}
