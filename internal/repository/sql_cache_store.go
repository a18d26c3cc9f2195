package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	applogger "QuantMini/pkg/logger"
)

// sqliteTimeLayout is fixed width so stored timestamps order lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect captures the differences between the SQL engines backing the cache.
type Dialect struct {
	Name   string
	Driver string
	Schema []string
	// timeText stores fetched_at as UTC text instead of a native timestamp.
	timeText bool
	// numbered uses $1, $2 placeholders instead of ?.
	numbered bool
}

// Supported SQL engines.
var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS cache_entries (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				symbol     TEXT NOT NULL,
				kind       TEXT NOT NULL,
				payload    TEXT NOT NULL,
				fetched_at TEXT NOT NULL,
				UNIQUE (symbol, kind)
			)`,
		},
		timeText: true,
	}
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS cache_entries (
				id         BIGSERIAL PRIMARY KEY,
				symbol     TEXT NOT NULL,
				kind       TEXT NOT NULL,
				payload    TEXT NOT NULL,
				fetched_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT cache_entries_symbol_kind_key UNIQUE (symbol, kind)
			)`,
		},
		numbered: true,
	}
)

// DialectByName resolves a configured backend name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect: %s", name)
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Clock returns the current time; injected for tests.
type Clock func() time.Time

// SQLCacheOption configures SQLCacheStore.
type SQLCacheOption func(*SQLCacheStore)

// WithClock overrides the store's time source.
func WithClock(c Clock) SQLCacheOption {
	return func(s *SQLCacheStore) { s.now = c }
}

// SQLCacheStore implements CacheStore on SQLite or Postgres.
type SQLCacheStore struct {
	db      *sql.DB
	dialect Dialect
	now     Clock
	l       *applogger.Logger
}

// NewSQLCacheStore wraps an open database handle.
func NewSQLCacheStore(db *sql.DB, d Dialect, opts ...SQLCacheOption) *SQLCacheStore {
	s := &SQLCacheStore{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQLCacheStore opens the database for d, pings it and ensures the schema.
func OpenSQLCacheStore(ctx context.Context, d Dialect, dsn string, opts ...SQLCacheOption) (*SQLCacheStore, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", d.Name, err)
	}
	if d.timeText {
		// one writer at a time for sqlite
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping: %w", d.Name, err)
	}
	s := NewSQLCacheStore(db, d, opts...)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SetLogger injects a structured logger.
func (s *SQLCacheStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *SQLCacheStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *SQLCacheStore) ReadFresh(ctx context.Context, symbol, kind string, maxAge time.Duration) (*models.CacheEntry, error) {
	q := s.dialect.rebind(`SELECT payload, fetched_at FROM cache_entries WHERE symbol = ? AND kind = ?`)
	row := s.db.QueryRowContext(ctx, q, symbol, kind)

	entry := &models.CacheEntry{Symbol: symbol, Kind: kind}
	var err error
	if s.dialect.timeText {
		var ts string
		if err = row.Scan(&entry.Payload, &ts); err == nil {
			entry.FetchedAt, err = time.Parse(sqliteTimeLayout, ts)
			if err != nil {
				err = fmt.Errorf("parse fetched_at %q: %w", ts, err)
			}
		}
	} else {
		err = row.Scan(&entry.Payload, &entry.FetchedAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrEntryNotFound
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("cache read error",
				applogger.String("dialect", s.dialect.Name),
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	if entry.FetchedAt.Before(s.now().Add(-maxAge)) {
		return nil, domrepo.ErrEntryNotFound
	}
	return entry, nil
}

func (s *SQLCacheStore) Upsert(ctx context.Context, symbol, kind, payload string) error {
	q := s.dialect.rebind(`
		INSERT INTO cache_entries (symbol, kind, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, kind) DO UPDATE
		SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`)
	now := s.now().UTC()
	var fetchedAt interface{} = now
	if s.dialect.timeText {
		fetchedAt = now.Format(sqliteTimeLayout)
	}
	if _, err := s.db.ExecContext(ctx, q, symbol, kind, payload, fetchedAt); err != nil {
		if s.l != nil {
			s.l.Error("cache upsert error",
				applogger.String("dialect", s.dialect.Name),
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLCacheStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
