package models

import "time"

// RawBar is one upstream bar record in the market-data wire format.
type RawBar struct {
	T  string   `json:"t"`
	O  float64  `json:"o"`
	H  float64  `json:"h"`
	L  float64  `json:"l"`
	C  float64  `json:"c"`
	V  float64  `json:"v"`
	N  *float64 `json:"n,omitempty"`
	VW *float64 `json:"vw,omitempty"`
}

// RawBarsPayload is the upstream multi-symbol bars response: {"bars": {SYM: [...]}}.
type RawBarsPayload struct {
	Bars          map[string][]RawBar `json:"bars"`
	NextPageToken *string             `json:"next_page_token,omitempty"`
}

// Bar represents an OHLCV observation after normalization.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BarSeries is an ascending, de-duplicated run of bars for one symbol.
type BarSeries struct {
	Symbol string
	Bars   []Bar
}

// Len returns the number of bars in the series.
func (s BarSeries) Len() int { return len(s.Bars) }

// Closes returns the close prices in series order.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}
