package features

import "math"

// Every helper returns a slice the length of its input; NaN marks positions
// where the value is undefined.

// PctChange computes x[i]/x[i-1] - 1.
func PctChange(x []float64) []float64 {
	out := nanSlice(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i]/x[i-1] - 1
	}
	return out
}

// LogReturns computes r_t = ln(C_t / C_{t-1}).
func LogReturns(x []float64) []float64 {
	out := nanSlice(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = math.Log(x[i] / x[i-1])
	}
	return out
}

// RollingMean is the trailing mean over window samples. A window containing
// an undefined sample is undefined.
func RollingMean(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(x); i++ {
		sum := 0.0
		ok := true
		for _, v := range x[i-window+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// RollingStd is the trailing sample standard deviation (n-1 denominator).
func RollingStd(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	if window <= 1 {
		return out
	}
	for i := window - 1; i < len(x); i++ {
		w := x[i-window+1 : i+1]
		sum := 0.0
		ok := true
		for _, v := range w {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if !ok {
			continue
		}
		mean := sum / float64(window)
		ss := 0.0
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// EMA is the recursive exponential mean with alpha = 2/(span+1), seeded
// with x[0].
func EMA(x []float64, span int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = x[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// CumMax is the running maximum; undefined samples stay undefined and are
// skipped.
func CumMax(x []float64) []float64 {
	return cumulative(x, math.Max)
}

// CumMin is the running minimum with the same NaN handling as CumMax.
func CumMin(x []float64) []float64 {
	return cumulative(x, math.Min)
}

// CumProd is the running product with the same NaN handling as CumMax.
func CumProd(x []float64) []float64 {
	return cumulative(x, func(a, b float64) float64 { return a * b })
}

func cumulative(x []float64, op func(a, b float64) float64) []float64 {
	out := nanSlice(len(x))
	acc := math.NaN()
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(acc) {
			acc = v
		} else {
			acc = op(acc, v)
		}
		out[i] = acc
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
