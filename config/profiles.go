package config

import (
	"fmt"
	"time"

	"treeguardian/adapters/sqlx"
)

// LoadProfile returns the defaults tuned for a named deployment profile.
// Environment variables are not applied; Load does that on top.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Server.ShutdownTimeout = time.Second
		cfg.Logging.Level = "warn"
		cfg.Analytics.Enabled = false
		cfg.Storage.SQL = sqlx.DefaultConfig(sqlx.DriverSQLite)
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "file"
		cfg.Classifier.Enabled = true
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "redis"
		cfg.Server.CORSOrigin = ""
		cfg.Classifier.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 120
		cfg.Security.RateLimit.BurstSize = 20
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
