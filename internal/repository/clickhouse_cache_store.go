package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	pkgch "QuantMini/pkg/clickhouse"
	applogger "QuantMini/pkg/logger"
)

// CHCacheStore implements CacheStore backed by ClickHouse. Uniqueness of
// (symbol, kind) comes from ReplacingMergeTree(fetched_at) and reads use FINAL.
type CHCacheStore struct {
	db       *sql.DB
	database string
	table    string
	now      Clock
	l        *applogger.Logger
}

func NewCHCacheStore(ch *pkgch.Client, database string) *CHCacheStore {
	return newCHCacheStore(ch.DB(), database)
}

func newCHCacheStore(db *sql.DB, database string) *CHCacheStore {
	if database == "" {
		database = "quantmini"
	}
	return &CHCacheStore{
		db:       db,
		database: database,
		table:    database + ".cache_entries",
		now:      time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *CHCacheStore) SetLogger(l *applogger.Logger) { s.l = l }

// SetClock overrides the time source.
func (s *CHCacheStore) SetClock(c Clock) { s.now = c }

// SchemaStatements returns the DDL ensuring database and table.
func (s *CHCacheStore) SchemaStatements() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol     String,
            kind       String,
            payload    String,
            fetched_at DateTime64(9, 'UTC')
        )
        ENGINE = ReplacingMergeTree(fetched_at)
        ORDER BY (symbol, kind)
    `, s.table),
	}
}

func (s *CHCacheStore) Init(ctx context.Context) error {
	for _, stmt := range s.SchemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init clickhouse cache schema: %w", err)
		}
	}
	return nil
}

func (s *CHCacheStore) ReadFresh(ctx context.Context, symbol, kind string, maxAge time.Duration) (*models.CacheEntry, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT payload, fetched_at
        FROM %s FINAL
        WHERE symbol = ? AND kind = ?
        LIMIT 1
    `, s.table)
	entry := &models.CacheEntry{Symbol: symbol, Kind: kind}
	err := s.db.QueryRowContext(ctx, q, symbol, kind).Scan(&entry.Payload, &entry.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrEntryNotFound
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse cache read error",
				applogger.String("table", s.table),
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
	if s.l != nil {
		s.l.Debug("clickhouse cache read ok",
			applogger.String("symbol", symbol),
			applogger.String("kind", kind),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return entry, nil
}

func (s *CHCacheStore) Upsert(ctx context.Context, symbol, kind, payload string) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, kind, payload, fetched_at) VALUES (?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, symbol, kind, payload, s.now().UTC()); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse cache upsert error",
				applogger.String("table", s.table),
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the pkg client owns the pool.
func (s *CHCacheStore) Close() error { return nil }
