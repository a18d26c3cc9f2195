package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/guregu/null/v6"
)

// Column names a factor table column as it appears on the wire.
type Column string

const (
	ColOpen        Column = "open"
	ColHigh        Column = "high"
	ColLow         Column = "low"
	ColClose       Column = "close"
	ColVolume      Column = "volume"
	ColReturnPct1D Column = "return_pct_1d"
	ColLogReturn1D Column = "log_return_1d"
	ColDrawdown    Column = "drawdown"
	ColCumReturn   Column = "cum_return"
	ColSMA5        Column = "sma_5"
	ColEMA12       Column = "ema_12"
	ColSMA20       Column = "sma_20"
	ColVol20       Column = "vol_20"
	ColEMA26       Column = "ema_26"
)

// TimestampKey is the row key carrying the bar time in series output.
const TimestampKey = "t"

// CanonicalColumns is the output order of every column the engine can emit.
var CanonicalColumns = []Column{
	ColOpen, ColHigh, ColLow, ColClose, ColVolume,
	ColReturnPct1D, ColLogReturn1D, ColDrawdown, ColCumReturn,
	ColSMA5, ColEMA12, ColSMA20, ColVol20, ColEMA26,
}

// Cell is one column value; an invalid value serializes as JSON null.
type Cell struct {
	Column Column
	Value  null.Float
}

// FactorRow is one timestamp's worth of factor values in column order.
// Timestamp is only set for rows of a series result.
type FactorRow struct {
	Timestamp string
	Cells     []Cell
}

// Get returns the value of column c and whether the row carries that column.
func (r FactorRow) Get(c Column) (null.Float, bool) {
	for _, cell := range r.Cells {
		if cell.Column == c {
			return cell.Value, true
		}
	}
	return null.Float{}, false
}

// Columns lists the row's columns in order.
func (r FactorRow) Columns() []Column {
	out := make([]Column, len(r.Cells))
	for i, cell := range r.Cells {
		out[i] = cell.Column
	}
	return out
}

// MarshalJSON writes the row as a flat object, "t" first, then columns in order.
func (r FactorRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		return nil
	}
	if r.Timestamp != "" {
		if err := writeKey(TimestampKey); err != nil {
			return nil, err
		}
		tb, err := json.Marshal(r.Timestamp)
		if err != nil {
			return nil, err
		}
		buf.Write(tb)
	}
	for _, cell := range r.Cells {
		if err := writeKey(string(cell.Column)); err != nil {
			return nil, err
		}
		vb, err := cell.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", cell.Column, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a row; known columns come back in canonical order,
// unknown keys after them sorted by name.
func (r *FactorRow) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	row := FactorRow{}
	if tb, ok := raw[TimestampKey]; ok {
		if err := json.Unmarshal(tb, &row.Timestamp); err != nil {
			return fmt.Errorf("row timestamp: %w", err)
		}
		delete(raw, TimestampKey)
	}
	for _, c := range CanonicalColumns {
		vb, ok := raw[string(c)]
		if !ok {
			continue
		}
		var v null.Float
		if err := v.UnmarshalJSON(vb); err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
		row.Cells = append(row.Cells, Cell{Column: c, Value: v})
		delete(raw, string(c))
	}
	rest := make([]string, 0, len(raw))
	for k := range raw {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		var v null.Float
		if err := v.UnmarshalJSON(raw[k]); err != nil {
			return fmt.Errorf("column %s: %w", k, err)
		}
		row.Cells = append(row.Cells, Cell{Column: Column(k), Value: v})
	}
	*r = row
	return nil
}
