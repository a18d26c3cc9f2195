package repository

import (
	"strings"
	"testing"
)

func TestCHCacheStoreSchema(t *testing.T) {
	s := newCHCacheStore(nil, "")
	stmts := s.SchemaStatements()
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "CREATE DATABASE IF NOT EXISTS quantmini") {
		t.Fatalf("unexpected database ddl %q", stmts[0])
	}
	for _, want := range []string{"quantmini.cache_entries", "ReplacingMergeTree(fetched_at)", "ORDER BY (symbol, kind)"} {
		if !strings.Contains(stmts[1], want) {
			t.Fatalf("table ddl missing %q:\n%s", want, stmts[1])
		}
	}
}

func TestCHCacheStoreCustomDatabase(t *testing.T) {
	s := newCHCacheStore(nil, "factors")
	if s.table != "factors.cache_entries" {
		t.Fatalf("unexpected table %q", s.table)
	}
}
