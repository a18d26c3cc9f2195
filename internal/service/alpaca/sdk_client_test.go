package alpaca

import (
	"testing"
	"time"

	domrepo "QuantMini/internal/domain/repository"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

func TestToRawBar(t *testing.T) {
	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	raw := toRawBar(marketdata.Bar{
		Timestamp:  ts,
		Open:       1,
		High:       2,
		Low:        0.5,
		Close:      1.5,
		Volume:     100,
		TradeCount: 7,
		VWAP:       1.2,
	})
	if raw.T != "2024-01-02T05:00:00Z" {
		t.Fatalf("t = %q", raw.T)
	}
	if raw.C != 1.5 || raw.V != 100 {
		t.Fatalf("unexpected bar %+v", raw)
	}
	if raw.N == nil || *raw.N != 7 || raw.VW == nil || *raw.VW != 1.2 {
		t.Fatalf("trade count or vwap not mapped")
	}
}

func TestSDKTimeFrame(t *testing.T) {
	for _, tf := range []domrepo.Timeframe{
		domrepo.TF1Min, domrepo.TF5Min, domrepo.TF15Min, domrepo.TF1Hour,
		domrepo.TF1Day, domrepo.TF1Week, domrepo.TF1Month,
	} {
		if _, err := sdkTimeFrame(tf); err != nil {
			t.Fatalf("%s: %v", tf, err)
		}
	}
	got, _ := sdkTimeFrame(domrepo.TF1Day)
	if got != marketdata.OneDay {
		t.Fatalf("1Day should map to OneDay, got %v", got)
	}
	if _, err := sdkTimeFrame("3Day"); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}
