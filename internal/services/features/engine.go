package features

import (
	"fmt"
	"math"

	"github.com/guregu/null/v6"

	"QuantMini/internal/domain/models"
)

// TimestampLayout is the string form of a series row timestamp.
const TimestampLayout = "2006-01-02 15:04:05-07:00"

// TradingDaysPerYear annualizes vol_20.
const TradingDaysPerYear = 252

// Minimum series length for the gated columns.
const (
	minBarsSMA5  = 5
	minBarsEMA12 = 12
	minBarsSMA20 = 20
	minBarsEMA26 = 26
)

// Frame holds every derived column of a series, index-aligned with the bars.
// NaN marks an undefined value.
type Frame struct {
	Bars        []models.Bar
	Open        []float64
	High        []float64
	Low         []float64
	Close       []float64
	Volume      []float64
	ReturnPct   []float64
	LogReturn   []float64
	SMA5        []float64
	SMA20       []float64
	EMA12       []float64
	EMA26       []float64
	Vol20       []float64
	CumMax      []float64
	Drawdown    []float64
	MaxDrawdown []float64
	CumReturn   []float64
}

// BuildFrame derives all factor columns from a normalized series.
func BuildFrame(s models.BarSeries) *Frame {
	n := s.Len()
	f := &Frame{
		Bars:   s.Bars,
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range s.Bars {
		f.Open[i] = b.Open
		f.High[i] = b.High
		f.Low[i] = b.Low
		f.Close[i] = b.Close
		f.Volume[i] = b.Volume
	}

	f.ReturnPct = PctChange(f.Close)
	f.LogReturn = LogReturns(f.Close)
	f.SMA5 = RollingMean(f.Close, 5)
	f.SMA20 = RollingMean(f.Close, 20)
	f.EMA12 = EMA(f.Close, 12)
	f.EMA26 = EMA(f.Close, 26)

	f.Vol20 = RollingStd(f.LogReturn, 20)
	annual := math.Sqrt(TradingDaysPerYear)
	for i := range f.Vol20 {
		f.Vol20[i] *= annual
	}

	f.CumMax = CumMax(f.Close)
	f.Drawdown = make([]float64, n)
	for i := range f.Close {
		f.Drawdown[i] = f.Close[i]/f.CumMax[i] - 1
	}
	f.MaxDrawdown = CumMin(f.Drawdown)

	growth := make([]float64, n)
	for i, r := range f.ReturnPct {
		growth[i] = 1 + r
	}
	f.CumReturn = CumProd(growth)
	for i := range f.CumReturn {
		f.CumReturn[i]--
	}
	return f
}

// Len returns the number of rows in the frame.
func (f *Frame) Len() int { return len(f.Bars) }

// Column returns the values of c, or nil for a column the frame does not carry.
func (f *Frame) Column(c models.Column) []float64 {
	switch c {
	case models.ColOpen:
		return f.Open
	case models.ColHigh:
		return f.High
	case models.ColLow:
		return f.Low
	case models.ColClose:
		return f.Close
	case models.ColVolume:
		return f.Volume
	case models.ColReturnPct1D:
		return f.ReturnPct
	case models.ColLogReturn1D:
		return f.LogReturn
	case models.ColDrawdown:
		return f.Drawdown
	case models.ColCumReturn:
		return f.CumReturn
	case models.ColSMA5:
		return f.SMA5
	case models.ColEMA12:
		return f.EMA12
	case models.ColSMA20:
		return f.SMA20
	case models.ColVol20:
		return f.Vol20
	case models.ColEMA26:
		return f.EMA26
	default:
		return nil
	}
}

// Row builds output row i with the given columns. withTimestamp adds "t".
func (f *Frame) Row(i int, cols []models.Column, withTimestamp bool) models.FactorRow {
	row := models.FactorRow{Cells: make([]models.Cell, 0, len(cols))}
	if withTimestamp {
		row.Timestamp = f.Bars[i].Timestamp.Format(TimestampLayout)
	}
	for _, c := range cols {
		row.Cells = append(row.Cells, models.Cell{Column: c, Value: finite(f.Column(c)[i])})
	}
	return row
}

// ColumnsFor returns the output columns for a series of n bars. Columns
// needing more history than the series has are left out entirely.
func ColumnsFor(n int) []models.Column {
	cols := []models.Column{
		models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume,
		models.ColReturnPct1D, models.ColLogReturn1D, models.ColDrawdown, models.ColCumReturn,
	}
	if n >= minBarsSMA5 {
		cols = append(cols, models.ColSMA5)
	}
	if n >= minBarsEMA12 {
		cols = append(cols, models.ColEMA12)
	}
	if n >= minBarsSMA20 {
		cols = append(cols, models.ColSMA20, models.ColVol20)
	}
	if n >= minBarsEMA26 {
		cols = append(cols, models.ColEMA26)
	}
	return cols
}

// Compute derives the factor table for s and shapes it per mode.
// An empty series yields a data-absence result.
func Compute(s models.BarSeries, mode models.Mode) (models.Result, error) {
	if mode != models.ModeLatest && mode != models.ModeSeries {
		return models.Result{}, fmt.Errorf("compute factors: unknown mode %q", mode)
	}
	n := s.Len()
	if n == 0 {
		return models.AbsentResult(models.ReasonNoQuotes), nil
	}
	f := BuildFrame(s)
	cols := ColumnsFor(n)
	if mode == models.ModeLatest {
		return models.LatestResult(f.Row(n-1, cols, false)), nil
	}
	rows := make([]models.FactorRow, n)
	for i := range rows {
		rows[i] = f.Row(i, cols, true)
	}
	return models.SeriesResult(rows), nil
}

// ComputePayload normalizes payload and computes factors for symbol.
// Data absence comes back as a result, not an error.
func ComputePayload(payload *models.RawBarsPayload, symbol string, mode models.Mode) (models.Result, error) {
	s, err := NormalizeBars(payload, symbol)
	if err != nil {
		if IsDataAbsence(err) {
			return models.AbsentResult(err.Error()), nil
		}
		return models.Result{}, err
	}
	return Compute(s, mode)
}

func finite(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
