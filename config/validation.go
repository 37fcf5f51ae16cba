package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"treeguardian/adapters/sqlx"
)

var (
	storageAdapters = []string{"memory", "redis", "sql", "file"}
	logLevels       = []string{"debug", "info", "warn", "error"}
	logFormats      = []string{"json", "text"}
	logOutputs      = []string{"stdout", "stderr"}
)

// problems collects validation messages for one section.
type problems []string

func (p *problems) addf(format string, args ...any) { *p = append(*p, fmt.Sprintf(format, args...)) }

func (p *problems) positive(name string, d time.Duration) {
	if d <= 0 {
		p.addf("%s must be positive", name)
	}
}

func (p *problems) oneOf(name, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		p.addf("%s must be one of: %s", name, strings.Join(allowed, ", "))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.New(strings.Join(p, "; "))
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var p problems
	if s.Address == "" {
		p.addf("address cannot be empty")
	}
	if s.PathPrefix != "" && !strings.HasPrefix(s.PathPrefix, "/") {
		p.addf("path_prefix must start with /")
	}
	p.positive("read_timeout", s.ReadTimeout)
	p.positive("write_timeout", s.WriteTimeout)
	p.positive("idle_timeout", s.IdleTimeout)
	p.positive("read_header_timeout", s.ReadHeaderTimeout)
	p.positive("shutdown_timeout", s.ShutdownTimeout)
	return p.err()
}

// Validate checks the selected adapter and its own section.
func (s *StorageConfig) Validate() error {
	var p problems
	p.oneOf("adapter", s.Adapter, storageAdapters)

	switch s.Adapter {
	case "file":
		if s.File.Path == "" {
			p.addf("file config: path cannot be empty")
		}
	case "redis":
		if s.Redis.Addr == "" {
			p.addf("redis config: addr cannot be empty")
		}
	case "sql":
		switch s.SQL.Driver {
		case sqlx.DriverPostgres, sqlx.DriverMySQL, sqlx.DriverSQLite:
		default:
			p.addf("sql config: unsupported driver %q", s.SQL.Driver)
		}
		if s.SQL.DSN == "" {
			p.addf("sql config: dsn cannot be empty")
		}
	}
	return p.err()
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var p problems
	p.oneOf("level", l.Level, logLevels)
	p.oneOf("format", l.Format, logFormats)
	p.oneOf("output", l.Output, logOutputs)
	return p.err()
}

// Validate rejects rule constants the engine cannot run with.
func (g GameConfig) Validate() error {
	return g.Rules().Validate()
}

// Validate validates classifier configuration
func (c *ClassifierConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var p problems
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		p.addf("base_url must be an absolute URL when the classifier is enabled")
	}
	p.positive("timeout", c.Timeout)
	return p.err()
}

// Validate validates webhook endpoints
func (w *WebhookConfig) Validate() error {
	var p problems
	for i, endpoint := range w.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.addf("endpoints[%d] must be an http(s) URL", i)
		}
	}
	if len(w.Endpoints) > 0 {
		p.positive("timeout", w.Timeout)
	}
	return p.err()
}

func (a *AnalyticsConfig) Validate() error {
	if a.Enabled && a.Interval <= 0 {
		return errors.New("interval must be positive when analytics are enabled")
	}
	return nil
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var p problems
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			p.addf("rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			p.addf("rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			p.addf("api_keys[%d] is empty", i)
		}
	}
	return p.err()
}
