package features

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"QuantMini/internal/domain/models"
)

// Data-absence outcomes of normalization. Callers turn these into
// models.AbsentResult rather than failing the request.
var (
	ErrNoBars   = errors.New(models.ReasonNoBars)
	ErrNoQuotes = errors.New(models.ReasonNoQuotes)
)

// IsDataAbsence reports whether err is one of the data-absence sentinels.
func IsDataAbsence(err error) bool {
	return errors.Is(err, ErrNoBars) || errors.Is(err, ErrNoQuotes)
}

// NormalizeBars turns an upstream bars payload into an ascending, de-duplicated
// series. The requested symbol is used when present, otherwise the
// lexicographically first key of the payload.
func NormalizeBars(payload *models.RawBarsPayload, symbol string) (models.BarSeries, error) {
	if payload == nil || len(payload.Bars) == 0 {
		return models.BarSeries{}, ErrNoBars
	}
	key := symbol
	raw, ok := payload.Bars[key]
	if !ok {
		keys := make([]string, 0, len(payload.Bars))
		for k := range payload.Bars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		key = keys[0]
		raw = payload.Bars[key]
	}
	if len(raw) == 0 {
		return models.BarSeries{Symbol: key}, ErrNoQuotes
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, rb := range raw {
		ts, err := time.Parse(time.RFC3339Nano, rb.T)
		if err != nil {
			return models.BarSeries{}, fmt.Errorf("normalize %s: parse bar timestamp %q: %w", key, rb.T, err)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      rb.O,
			High:      rb.H,
			Low:       rb.L,
			Close:     rb.C,
			Volume:    rb.V,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	// stable sort keeps payload order among equal timestamps, so the later record wins
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return models.BarSeries{Symbol: key, Bars: out}, nil
}
