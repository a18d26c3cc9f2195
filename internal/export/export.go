package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"QuantMini/internal/domain/models"
	"QuantMini/internal/services/features"

	"github.com/parquet-go/parquet-go"
)

// FactorRecord is the Parquet schema for one series row. Factor columns
// are optional so gated or undefined values round-trip as nulls.
type FactorRecord struct {
	Symbol      string   `parquet:"symbol"`
	Timestamp   int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open        *float64 `parquet:"open,optional"`
	High        *float64 `parquet:"high,optional"`
	Low         *float64 `parquet:"low,optional"`
	Close       *float64 `parquet:"close,optional"`
	Volume      *float64 `parquet:"volume,optional"`
	ReturnPct1D *float64 `parquet:"return_pct_1d,optional"`
	LogReturn1D *float64 `parquet:"log_return_1d,optional"`
	Drawdown    *float64 `parquet:"drawdown,optional"`
	CumReturn   *float64 `parquet:"cum_return,optional"`
	SMA5        *float64 `parquet:"sma_5,optional"`
	EMA12       *float64 `parquet:"ema_12,optional"`
	SMA20       *float64 `parquet:"sma_20,optional"`
	Vol20       *float64 `parquet:"vol_20,optional"`
	EMA26       *float64 `parquet:"ema_26,optional"`
}

func (r *FactorRecord) slot(c models.Column) **float64 {
	switch c {
	case models.ColOpen:
		return &r.Open
	case models.ColHigh:
		return &r.High
	case models.ColLow:
		return &r.Low
	case models.ColClose:
		return &r.Close
	case models.ColVolume:
		return &r.Volume
	case models.ColReturnPct1D:
		return &r.ReturnPct1D
	case models.ColLogReturn1D:
		return &r.LogReturn1D
	case models.ColDrawdown:
		return &r.Drawdown
	case models.ColCumReturn:
		return &r.CumReturn
	case models.ColSMA5:
		return &r.SMA5
	case models.ColEMA12:
		return &r.EMA12
	case models.ColSMA20:
		return &r.SMA20
	case models.ColVol20:
		return &r.Vol20
	case models.ColEMA26:
		return &r.EMA26
	}
	return nil
}

// Records converts series rows into Parquet records.
func Records(symbol string, rows []models.FactorRow) ([]FactorRecord, error) {
	out := make([]FactorRecord, 0, len(rows))
	for i, row := range rows {
		ts, err := time.Parse(features.TimestampLayout, row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("row %d timestamp: %w", i, err)
		}
		rec := FactorRecord{Symbol: symbol, Timestamp: ts.UnixMilli()}
		for _, cell := range row.Cells {
			p := rec.slot(cell.Column)
			if p == nil || !cell.Value.Valid {
				continue
			}
			v := cell.Value.Float64
			*p = &v
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteParquet writes a series result to path.
func WriteParquet(path, symbol string, res models.Result) error {
	if res.IsAbsent() {
		return fmt.Errorf("export %s: %s", symbol, res.Absent)
	}
	if res.Mode != models.ModeSeries {
		return fmt.Errorf("export %s: parquet needs a series result", symbol)
	}
	recs, err := Records(symbol, res.Series)
	if err != nil {
		return fmt.Errorf("export %s: %w", symbol, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export %s: %w", symbol, err)
	}
	return parquet.WriteFile(path, recs)
}

// WriteJSON writes the result exactly as the API returns it.
func WriteJSON(path string, res models.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Write picks the format from the file extension.
func Write(path, symbol string, res models.Result) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return WriteParquet(path, symbol, res)
	case ".json":
		return WriteJSON(path, res)
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}
