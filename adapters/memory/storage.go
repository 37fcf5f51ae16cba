package memory

import (
	"context"
	"sort"
	"sync"

	"treeguardian/core"
)

// Store is a concurrent in-memory Storage implementation holding one
// snapshot per player.
type Store struct {
	mu        sync.RWMutex
	snapshots map[core.PlayerID][]byte
}

func New() *Store { return &Store{snapshots: map[core.PlayerID][]byte{}} }

func (s *Store) LoadSnapshot(_ context.Context, player core.PlayerID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.snapshots[player]
	if !ok {
		return nil, core.ErrStateNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) SaveSnapshot(_ context.Context, player core.PlayerID, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[player] = append([]byte(nil), snapshot...)
	return nil
}

// Players lists stored players in id order.
func (s *Store) Players(_ context.Context) ([]core.PlayerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.PlayerID, 0, len(s.snapshots))
	for p := range s.snapshots {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

var _ interface {
	LoadSnapshot(context.Context, core.PlayerID) ([]byte, error)
	SaveSnapshot(context.Context, core.PlayerID, []byte) error
	Players(context.Context) ([]core.PlayerID, error)
} = (*Store)(nil)
