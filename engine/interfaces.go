package engine

import (
	"context"

	"treeguardian/core"
)

// Storage persists one opaque state snapshot per player. LoadSnapshot returns
// core.ErrStateNotFound when the player has never been saved.
type Storage interface {
	LoadSnapshot(ctx context.Context, player core.PlayerID) ([]byte, error)
	SaveSnapshot(ctx context.Context, player core.PlayerID, snapshot []byte) error
}

// Lister is implemented by storages that can enumerate saved players.
type Lister interface {
	Players(ctx context.Context) ([]core.PlayerID, error)
}
