package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"treeguardian/core"
)

// Store persists every player's snapshot to a single JSON file keyed by
// player id. Suitable for demos and a single-device deployment.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.PlayerID]json.RawMessage
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.PlayerID]json.RawMessage{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	for k, v := range raw {
		s.data[core.PlayerID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) LoadSnapshot(_ context.Context, player core.PlayerID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[player]
	if !ok {
		return nil, core.ErrStateNotFound
	}
	return append([]byte(nil), b...), nil
}

// SaveSnapshot stores the snapshot and rewrites the file. Snapshots that are
// not valid JSON are rejected since the file is a JSON document.
func (s *Store) SaveSnapshot(_ context.Context, player core.PlayerID, snapshot []byte) error {
	if !json.Valid(snapshot) {
		return fmt.Errorf("snapshot for %s is not valid JSON", player)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[player]
	s.data[player] = append(json.RawMessage(nil), snapshot...)
	if err := s.persist(); err != nil {
		if had {
			s.data[player] = prev
		} else {
			delete(s.data, player)
		}
		return err
	}
	return nil
}

func (s *Store) Players(_ context.Context) ([]core.PlayerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PlayerID, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
