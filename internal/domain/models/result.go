package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Mode selects the output shape of a factor computation.
type Mode string

const (
	ModeLatest Mode = "latest"
	ModeSeries Mode = "series"
)

// ParseMode maps a request value to a Mode; empty means series.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSeries:
		return ModeSeries, nil
	case ModeLatest:
		return ModeLatest, nil
	default:
		return "", fmt.Errorf("unknown output mode %q", s)
	}
}

// Data-absence reasons. These travel in the success channel and are cached.
const (
	ReasonNoBars   = "No bars data found"
	ReasonNoQuotes = "No quotes for symbol"
)

// Result is the tagged outcome of a factor computation: exactly one of a
// latest row, a series of rows, or a data-absence reason.
type Result struct {
	Mode   Mode
	Latest FactorRow
	Series []FactorRow
	Absent string
}

// LatestResult wraps a single row.
func LatestResult(row FactorRow) Result { return Result{Mode: ModeLatest, Latest: row} }

// SeriesResult wraps an ordered list of rows.
func SeriesResult(rows []FactorRow) Result { return Result{Mode: ModeSeries, Series: rows} }

// AbsentResult records that no data was available.
func AbsentResult(reason string) Result { return Result{Absent: reason} }

// IsAbsent reports whether the result is a data-absence outcome.
func (r Result) IsAbsent() bool { return r.Absent != "" }

// Rows returns the number of rows carried by the result.
func (r Result) Rows() int {
	switch {
	case r.IsAbsent():
		return 0
	case r.Mode == ModeLatest:
		return 1
	default:
		return len(r.Series)
	}
}

type absentBody struct {
	Error string `json:"error"`
}

// MarshalJSON emits an object (latest), an array (series) or {"error": reason}.
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.IsAbsent():
		return json.Marshal(absentBody{Error: r.Absent})
	case r.Mode == ModeLatest:
		return r.Latest.MarshalJSON()
	case r.Mode == ModeSeries:
		rows := r.Series
		if rows == nil {
			rows = []FactorRow{}
		}
		return json.Marshal(rows)
	default:
		return nil, fmt.Errorf("result has no mode")
	}
}

// UnmarshalJSON dispatches on the JSON shape written by MarshalJSON.
func (r *Result) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty result payload")
	}
	switch b[0] {
	case '[':
		var rows []FactorRow
		if err := json.Unmarshal(b, &rows); err != nil {
			return fmt.Errorf("decode series: %w", err)
		}
		*r = SeriesResult(rows)
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return fmt.Errorf("decode object: %w", err)
		}
		if eb, ok := fields["error"]; ok && len(fields) == 1 {
			var reason string
			if err := json.Unmarshal(eb, &reason); err != nil {
				return fmt.Errorf("decode error reason: %w", err)
			}
			if reason == "" {
				return fmt.Errorf("empty error reason")
			}
			*r = AbsentResult(reason)
			return nil
		}
		var row FactorRow
		if err := row.UnmarshalJSON(b); err != nil {
			return fmt.Errorf("decode latest: %w", err)
		}
		*r = LatestResult(row)
		return nil
	default:
		return fmt.Errorf("unexpected result payload starting with %q", b[0])
	}
}
