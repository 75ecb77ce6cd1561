package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
	sqliteBusyTimeout      = 5 * time.Second
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Config selects the storage backend. DatabaseURL wins over Path when both are set.
type Config struct {
	DatabaseURL string
	Path        string
	Location    *time.Location
}

// Store owns the database handle and the single lock that serializes every
// read and write issued by the repositories.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	loc     *time.Location
	mu      sync.Mutex
	logger  *logrus.Entry
}

// Open connects to the configured backend, pings it and applies migrations.
func Open(ctx context.Context, cfg Config, logger *logrus.Entry) (*Store, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	var (
		db  *sqlx.DB
		d   dialect
		err error
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		d = postgresDialect
		db, err = newPostgresConnection(cfg.DatabaseURL)
	} else {
		d = sqliteDialect
		db, err = newSQLiteConnection(cfg.Path)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, dialect: d, loc: loc, logger: logger.WithField("component", "store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	s.logger.WithField("driver", d.driver).Info("Database ready")
	return s, nil
}

func newPostgresConnection(dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func newSQLiteConnection(path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeout.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Location is the zone instants are returned in.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) toUnix(t time.Time) int64 {
	return t.Unix()
}

func (s *Store) fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).In(s.loc)
}
