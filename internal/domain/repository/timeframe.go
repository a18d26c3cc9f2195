package repository

import (
	"fmt"
	"strings"
)

// Timeframe is an upstream bar aggregation period.
type Timeframe string

const (
	TF1Min   Timeframe = "1Min"
	TF5Min   Timeframe = "5Min"
	TF15Min  Timeframe = "15Min"
	TF1Hour  Timeframe = "1Hour"
	TF1Day   Timeframe = "1Day"
	TF1Week  Timeframe = "1Week"
	TF1Month Timeframe = "1Month"
)

var timeframeAliases = map[string]Timeframe{
	"1min": TF1Min, "1m": TF1Min,
	"5min": TF5Min, "5m": TF5Min,
	"15min": TF15Min, "15m": TF15Min,
	"1hour": TF1Hour, "1h": TF1Hour,
	"1day": TF1Day, "1d": TF1Day,
	"1week": TF1Week, "1w": TF1Week,
	"1month": TF1Month, "1mo": TF1Month,
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1Day }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	if tf, ok := timeframeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe is NormalizeTimeframe without the silent fallback: empty
// input gives the default, anything unrecognised is an error.
func ParseTimeframe(s string) (Timeframe, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultTimeframe(), nil
	}
	if tf, ok := timeframeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", s)
}
