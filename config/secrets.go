package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from the process environment.
type EnvironmentSecretStore struct {
	lookup func(string) (string, bool)
}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{lookup: os.LookupEnv}
}

// Get returns the value of key or an error when it is unset or blank.
func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

const (
	SecretRedisPassword = "GUARDIAN_REDIS_PASSWORD"
	SecretSQLDSN        = "GUARDIAN_SQL_DSN"
	SecretAPIKeys       = "GUARDIAN_API_KEYS"
)

// LoadSecretsFromEnv fills credentials that are kept out of config files.
// Missing secrets leave the current values untouched.
func (c *Config) LoadSecretsFromEnv(ctx context.Context, store SecretStore) {
	if v, err := store.Get(ctx, SecretRedisPassword); err == nil {
		c.Storage.Redis.Password = v
	}
	if v, err := store.Get(ctx, SecretSQLDSN); err == nil {
		c.Storage.SQL.DSN = v
	}
	if v, err := store.Get(ctx, SecretAPIKeys); err == nil {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Security.APIKeys = keys
	}
}
