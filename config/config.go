package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"treeguardian/adapters/redis"
	"treeguardian/adapters/sqlx"
	"treeguardian/classifier"
	"treeguardian/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"GUARDIAN_ENV"`
	Profile     string      `json:"profile" env:"GUARDIAN_PROFILE"`

	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Game       GameConfig       `json:"game"`
	Classifier ClassifierConfig `json:"classifier"`
	Webhooks   WebhookConfig    `json:"webhooks"`
	Analytics  AnalyticsConfig  `json:"analytics"`
	Logging    LoggingConfig    `json:"logging"`
	Security   SecurityConfig   `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"GUARDIAN_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"GUARDIAN_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"GUARDIAN_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"GUARDIAN_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"GUARDIAN_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"GUARDIAN_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"GUARDIAN_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"GUARDIAN_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects where player snapshots live.
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"GUARDIAN_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"GUARDIAN_STORAGE_FILE_PATH"`
}

// GameConfig carries the scoring constants. Zero values are rejected by
// Validate rather than silently defaulted.
type GameConfig struct {
	BasePoints                  int64 `json:"base_points" env:"GUARDIAN_GAME_BASE_POINTS"`
	DiscoveryBonus              int64 `json:"discovery_bonus" env:"GUARDIAN_GAME_DISCOVERY_BONUS"`
	ExperiencePerIdentification int64 `json:"experience_per_identification" env:"GUARDIAN_GAME_XP_PER_IDENTIFICATION"`
	ExperiencePerLevel          int64 `json:"experience_per_level" env:"GUARDIAN_GAME_XP_PER_LEVEL"`
	MissionTarget               int64 `json:"mission_target" env:"GUARDIAN_GAME_MISSION_TARGET"`
	MissionBonus                int64 `json:"mission_bonus" env:"GUARDIAN_GAME_MISSION_BONUS"`
	AchievementBonus            int64 `json:"achievement_bonus" env:"GUARDIAN_GAME_ACHIEVEMENT_BONUS"`
	LevelUpBonus                int64 `json:"level_up_bonus" env:"GUARDIAN_GAME_LEVEL_UP_BONUS"`
}

// Rules converts the section into engine rules using the stock catalog.
func (g GameConfig) Rules() core.Rules {
	r := core.DefaultRules()
	r.BasePoints = g.BasePoints
	r.DiscoveryBonus = g.DiscoveryBonus
	r.ExperiencePerIdentification = g.ExperiencePerIdentification
	r.ExperiencePerLevel = g.ExperiencePerLevel
	r.MissionTarget = g.MissionTarget
	r.MissionBonus = g.MissionBonus
	r.AchievementBonus = g.AchievementBonus
	r.LevelUpBonus = g.LevelUpBonus
	return r
}

func gameFromRules(r core.Rules) GameConfig {
	return GameConfig{
		BasePoints:                  r.BasePoints,
		DiscoveryBonus:              r.DiscoveryBonus,
		ExperiencePerIdentification: r.ExperiencePerIdentification,
		ExperiencePerLevel:          r.ExperiencePerLevel,
		MissionTarget:               r.MissionTarget,
		MissionBonus:                r.MissionBonus,
		AchievementBonus:            r.AchievementBonus,
		LevelUpBonus:                r.LevelUpBonus,
	}
}

// ClassifierConfig points at the remote identification service.
type ClassifierConfig struct {
	Enabled bool          `json:"enabled" env:"GUARDIAN_CLASSIFIER_ENABLED"`
	BaseURL string        `json:"base_url" env:"GUARDIAN_CLASSIFIER_URL"`
	Timeout time.Duration `json:"timeout" env:"GUARDIAN_CLASSIFIER_TIMEOUT"`
}

// WebhookConfig lists endpoints that receive every engine event.
type WebhookConfig struct {
	Endpoints  []string      `json:"endpoints,omitempty" env:"GUARDIAN_WEBHOOK_ENDPOINTS"`
	EventTypes []string      `json:"event_types,omitempty" env:"GUARDIAN_WEBHOOK_EVENT_TYPES"`
	Timeout    time.Duration `json:"timeout" env:"GUARDIAN_WEBHOOK_TIMEOUT"`
}

// AnalyticsConfig controls in-process activity counters.
type AnalyticsConfig struct {
	Enabled  bool          `json:"enabled" env:"GUARDIAN_ANALYTICS_ENABLED"`
	Interval time.Duration `json:"interval" env:"GUARDIAN_ANALYTICS_INTERVAL"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"GUARDIAN_LOG_LEVEL"`
	Format     string            `json:"format" env:"GUARDIAN_LOG_FORMAT"`
	Output     string            `json:"output" env:"GUARDIAN_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"GUARDIAN_LOG_ATTRIBUTES"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"GUARDIAN_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"GUARDIAN_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"GUARDIAN_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"GUARDIAN_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Load builds the configuration from defaults (or the profile named by
// GUARDIAN_PROFILE) overlaid with environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if name := os.Getenv("GUARDIAN_PROFILE"); name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return nil, err
		}
		cfg = p
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return errors.New("config file path must not traverse upwards")
		}
	}

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/treeguardian.json",
			},
		},
		Game: gameFromRules(core.DefaultRules()),
		Classifier: ClassifierConfig{
			Enabled: false,
			BaseURL: classifier.DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Webhooks: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	checks := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"storage", c.Storage.Validate},
		{"game", c.Game.Validate},
		{"classifier", c.Classifier.Validate},
		{"webhooks", c.Webhooks.Validate},
		{"analytics", c.Analytics.Validate},
		{"logging", c.Logging.Validate},
		{"security", c.Security.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", check.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		redacted := make([]string, len(cfg.Security.APIKeys))
		for i := range redacted {
			redacted[i] = "[REDACTED]"
		}
		cfg.Security.APIKeys = redacted
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
