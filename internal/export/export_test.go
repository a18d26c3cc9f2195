package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"QuantMini/internal/domain/models"
	"QuantMini/internal/services/features"

	"github.com/parquet-go/parquet-go"
)

func seriesOf(t *testing.T, closes ...float64) models.Result {
	t.Helper()
	start := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	res, err := features.Compute(models.BarSeries{Symbol: "AAPL", Bars: bars}, models.ModeSeries)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return res
}

func TestParquetRoundTripKeepsNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "aapl.parquet")
	if err := Write(path, "AAPL", seriesOf(t, 100, 102, 101)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	recs, err := parquet.ReadFile[FactorRecord](path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].ReturnPct1D != nil || recs[0].CumReturn != nil {
		t.Fatalf("first-row returns should be null")
	}
	if recs[0].SMA5 != nil {
		t.Fatalf("gated column should be null")
	}
	if recs[1].ReturnPct1D == nil || *recs[1].ReturnPct1D < 0.0199 || *recs[1].ReturnPct1D > 0.0201 {
		t.Fatalf("unexpected return %v", recs[1].ReturnPct1D)
	}
	if recs[2].Close == nil || *recs[2].Close != 101 {
		t.Fatalf("unexpected close")
	}
	if recs[0].Timestamp != time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("unexpected timestamp %d", recs[0].Timestamp)
	}
}

func TestWriteJSONMatchesAPI(t *testing.T) {
	res := seriesOf(t, 1, 2)
	path := filepath.Join(t.TempDir(), "aapl.json")
	if err := Write(path, "AAPL", res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(b, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[1]["close"] != 2.0 {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestWriteRejects(t *testing.T) {
	dir := t.TempDir()
	if err := Write(filepath.Join(dir, "x.csv"), "AAPL", seriesOf(t, 1)); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if err := Write(filepath.Join(dir, "x.parquet"), "ZZZZ", models.AbsentResult(models.ReasonNoBars)); err == nil {
		t.Fatalf("expected error for absent result")
	}
}
