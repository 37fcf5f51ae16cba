package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"treeguardian/core"
)

// Driver names a supported SQL backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver          Driver        `json:"driver" env:"GUARDIAN_SQL_DRIVER"`
	DSN             string        `json:"dsn,omitempty"`
	MaxOpenConns    int           `json:"max_open_conns" env:"GUARDIAN_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	// AutoMigrate creates the player_states table on startup.
	AutoMigrate bool `json:"auto_migrate" env:"GUARDIAN_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns defaults for driver. SQLite gets an in-memory DSN
// and a single connection since every connection would otherwise see its
// own empty database.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	switch driver {
	case DriverPostgres:
		cfg.DSN = "postgres://localhost:5432/treeguardian?sslmode=disable"
	case DriverMySQL:
		cfg.DSN = "root@tcp(localhost:3306)/treeguardian?parseTime=true"
	case DriverSQLite:
		cfg.DSN = "file::memory:?cache=shared"
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Store implements engine.Storage over a SQL database, one row per player.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

func New(cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) schema() string {
	switch s.driver {
	case DriverMySQL:
		return `CREATE TABLE IF NOT EXISTS player_states (
	player_id VARCHAR(191) NOT NULL PRIMARY KEY,
	snapshot MEDIUMTEXT NOT NULL,
	updated_at DATETIME(6) NOT NULL
)`
	default:
		return `CREATE TABLE IF NOT EXISTS player_states (
	player_id TEXT NOT NULL PRIMARY KEY,
	snapshot TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	}
}

// Migrate creates the schema if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, player core.PlayerID) ([]byte, error) {
	var snapshot string
	q := s.db.Rebind(`SELECT snapshot FROM player_states WHERE player_id = ?`)
	err := s.db.GetContext(ctx, &snapshot, q, string(player))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(snapshot), nil
}

// SaveSnapshot checks for an existing row and updates or inserts inside one
// transaction, which works the same on every supported driver.
func (s *Store) SaveSnapshot(ctx context.Context, player core.PlayerID, snapshot []byte) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	q := tx.Rebind(`SELECT EXISTS(SELECT 1 FROM player_states WHERE player_id = ?)`)
	if err = tx.GetContext(ctx, &exists, q, string(player)); err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	now := time.Now().UTC()
	if exists {
		q = tx.Rebind(`UPDATE player_states SET snapshot = ?, updated_at = ? WHERE player_id = ?`)
		_, err = tx.ExecContext(ctx, q, string(snapshot), now, string(player))
	} else {
		q = tx.Rebind(`INSERT INTO player_states (player_id, snapshot, updated_at) VALUES (?, ?, ?)`)
		_, err = tx.ExecContext(ctx, q, string(player), string(snapshot), now)
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Players(ctx context.Context) ([]core.PlayerID, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT player_id FROM player_states ORDER BY player_id`); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	out := make([]core.PlayerID, len(ids))
	for i, id := range ids {
		out[i] = core.PlayerID(id)
	}
	return out, nil
}
