package models

import "time"

// CacheEntry is one persisted computation keyed by (Symbol, Kind).
type CacheEntry struct {
	Symbol    string
	Kind      string
	Payload   string
	FetchedAt time.Time
}

// Age returns how old the entry is relative to now.
func (e CacheEntry) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }

// FactorsComputed is published after a successful recomputation.
type FactorsComputed struct {
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"kind"`
	Mode       string    `json:"mode"`
	Rows       int       `json:"rows"`
	Absent     string    `json:"absent,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}
