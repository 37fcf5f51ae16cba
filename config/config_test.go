package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treeguardian/adapters/sqlx"
	"treeguardian/core"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "./data/treeguardian.json", cfg.Storage.File.Path)
	assert.Equal(t, core.DefaultRules().BasePoints, cfg.Game.BasePoints)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Setenv("GUARDIAN_SERVER_ADDR", ":7070")
	t.Setenv("GUARDIAN_GAME_MISSION_TARGET", "5")
	t.Setenv("GUARDIAN_WEBHOOK_ENDPOINTS", "https://a.example/hook, https://b.example/hook")
	t.Setenv("GUARDIAN_SERVER_READ_TIMEOUT", "3s")
	t.Setenv("GUARDIAN_REDIS_ADDR", "cache:6379")
	t.Setenv("GUARDIAN_LOG_ATTRIBUTES", "service=guardian,region=eu")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, int64(5), cfg.Game.MissionTarget)
	assert.Equal(t, int64(5), cfg.Game.Rules().MissionTarget)
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, cfg.Webhooks.Endpoints)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, map[string]string{"service": "guardian", "region": "eu"}, cfg.Logging.Attributes)
}

func TestLoadRejectsBadEnvironmentValue(t *testing.T) {
	t.Setenv("GUARDIAN_GAME_BASE_POINTS", "lots")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GUARDIAN_GAME_BASE_POINTS")
}

func TestLoadUsesProfileFromEnvironment(t *testing.T) {
	t.Setenv("GUARDIAN_PROFILE", "staging")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, "file", cfg.Storage.Adapter)
}

func TestLoadFromFile(t *testing.T) {
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"storage": {
			"adapter": "memory"
		},
		"game": {
			"base_points": 15,
			"discovery_bonus": 20,
			"experience_per_identification": 20,
			"experience_per_level": 100,
			"mission_target": 3,
			"mission_bonus": 50,
			"achievement_bonus": 50,
			"level_up_bonus": 100
		}
	}`

	path := filepath.Join(t.TempDir(), "guardian.json")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, int64(15), cfg.Game.Rules().BasePoints)
	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadFromFileRejectsInvalidGame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"game":{"experience_per_level":0}}`), 0o600))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "game config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "invalid environment",
			mutate:      func(c *Config) { c.Environment = "" },
			expectError: "environment cannot be empty",
		},
		{
			name:        "invalid server timeout",
			mutate:      func(c *Config) { c.Server.ReadTimeout = 0 },
			expectError: "read_timeout must be positive",
		},
		{
			name:        "unknown storage adapter",
			mutate:      func(c *Config) { c.Storage.Adapter = "etcd" },
			expectError: "adapter must be one of",
		},
		{
			name: "sql without dsn",
			mutate: func(c *Config) {
				c.Storage.Adapter = "sql"
				c.Storage.SQL = sqlx.Config{Driver: sqlx.DriverMySQL}
			},
			expectError: "dsn cannot be empty",
		},
		{
			name:        "negative award",
			mutate:      func(c *Config) { c.Game.MissionBonus = -1 },
			expectError: "point awards must be non-negative",
		},
		{
			name: "enabled classifier needs url",
			mutate: func(c *Config) {
				c.Classifier.Enabled = true
				c.Classifier.BaseURL = "not a url"
			},
			expectError: "base_url",
		},
		{
			name:        "webhook must be http",
			mutate:      func(c *Config) { c.Webhooks.Endpoints = []string{"ftp://x"} },
			expectError: "endpoints[0]",
		},
		{
			name: "rate limit needs rpm",
			mutate: func(c *Config) {
				c.Security.EnableRateLimit = true
				c.Security.RateLimit.RequestsPerMinute = 0
			},
			expectError: "requests_per_minute",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestSecrets(t *testing.T) {
	store := NewEnvironmentSecretStore()

	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	t.Setenv(testKey, testValue)

	ctx := context.Background()

	value, err := store.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, testValue, value)

	_, err = store.Get(ctx, "NONEXISTENT_KEY")
	assert.Error(t, err)

	defaultValue := "default"
	value = store.GetWithDefault(ctx, "NONEXISTENT_KEY", defaultValue)
	assert.Equal(t, defaultValue, value)

	value = store.GetWithDefault(ctx, testKey, defaultValue)
	assert.Equal(t, testValue, value)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv(SecretRedisPassword, "hunter2")
	t.Setenv(SecretAPIKeys, "k1, ,k2")

	cfg := DefaultConfig()
	dsn := cfg.Storage.SQL.DSN
	cfg.LoadSecretsFromEnv(context.Background(), NewEnvironmentSecretStore())

	assert.Equal(t, "hunter2", cfg.Storage.Redis.Password)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
	assert.Equal(t, dsn, cfg.Storage.SQL.DSN, "unset secrets leave values alone")

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "k1")
	assert.True(t, strings.Contains(out, "[REDACTED]"))
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	txtPath := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("{}"), 0o600))

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{"valid json file", jsonPath, false},
		{"empty path", "", true},
		{"path traversal", "../../../etc/passwd.json", true},
		{"non-json file", txtPath, true},
		{"nonexistent file", filepath.Join(dir, "nonexistent.json"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
