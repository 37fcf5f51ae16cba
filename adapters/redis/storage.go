package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"treeguardian/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"GUARDIAN_REDIS_ADDR"`
	Password     string        `json:"password,omitempty"`
	DB           int           `json:"db" env:"GUARDIAN_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"GUARDIAN_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// KeyPrefix namespaces snapshot keys; defaults to core.StorageKey.
	KeyPrefix string `json:"key_prefix" env:"GUARDIAN_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    core.StorageKey,
	}
}

// Store implements engine.Storage on Redis.
// Data structure:
// - {prefix}:{player_id} -> JSON snapshot of the player's state
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := NewClient(config)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: prefixOrDefault(config.KeyPrefix)}, nil
}

// NewClient builds a go-redis client from config without pinging it.
func NewClient(config Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: core.StorageKey}
}

// Client exposes the underlying connection so a leaderboard can share it.
func (s *Store) Client() *redis.Client { return s.client }

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func prefixOrDefault(p string) string {
	if p == "" {
		return core.StorageKey
	}
	return p
}

// stateKey generates the Redis key for a player's snapshot
func (s *Store) stateKey(player core.PlayerID) string {
	return s.prefix + ":" + string(player)
}

func (s *Store) LoadSnapshot(ctx context.Context, player core.PlayerID) ([]byte, error) {
	data, err := s.client.Get(ctx, s.stateKey(player)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return data, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, player core.PlayerID, snapshot []byte) error {
	if err := s.client.Set(ctx, s.stateKey(player), snapshot, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Players walks the keyspace with SCAN so large deployments are not blocked.
func (s *Store) Players(ctx context.Context) ([]core.PlayerID, error) {
	var (
		out    []core.PlayerID
		cursor uint64
	)
	pattern := s.prefix + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan players: %w", err)
		}
		for _, k := range keys {
			out = append(out, core.PlayerID(strings.TrimPrefix(k, s.prefix+":")))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
