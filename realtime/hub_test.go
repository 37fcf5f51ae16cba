package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"treeguardian/core"
)

var at = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1, "")

	ev := core.NewSpeciesIdentified("bob", at, "Oak", 30, 30)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.PlayerID != "bob" || received.Type != core.EventSpeciesIdentified {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestHubPlayerFilterAndDrops(t *testing.T) {
	h := NewHub()
	_, alice := h.Subscribe(1, "alice")

	h.Broadcast(context.Background(), core.NewLevelUp("bob", at, 2, 100, 300))
	h.Broadcast(context.Background(), core.NewLevelUp("alice", at, 2, 100, 300))
	h.Broadcast(context.Background(), core.NewLevelUp("alice", at, 3, 100, 400))

	got := <-alice
	if got.PlayerID != "alice" || got.Level != 2 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	def, _ := core.LookupAchievement(core.Catalog, "first_tree")
	ev := core.NewAchievementUnlocked("alice", at, def, 50, 80)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Achievement != "first_tree" {
		t.Fatalf("unexpected achievement: %s", out.Achievement)
	}
}
