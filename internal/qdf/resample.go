package qdf

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "macrosynergy/internal/errors"
)

// Aggregation methods for Resample.
const (
	AggMean   = "mean"
	AggMedian = "median"
	AggMin    = "min"
	AggMax    = "max"
	AggFirst  = "first"
	AggLast   = "last"
	AggSum    = "sum"
)

// IsAgg reports whether name is a supported aggregation.
func IsAgg(name string) bool {
	switch name {
	case AggMean, AggMedian, AggMin, AggMax, AggFirst, AggLast, AggSum:
		return true
	}
	return false
}

// Aggregate reduces the valid values of a period to one number, NaN when
// there are none.
func Aggregate(values []float64, agg string) float64 {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	switch agg {
	case AggMedian:
		sort.Float64s(valid)
		mid := len(valid) / 2
		if len(valid)%2 == 0 {
			return (valid[mid-1] + valid[mid]) / 2
		}
		return valid[mid]
	case AggMin:
		sort.Float64s(valid)
		return valid[0]
	case AggMax:
		sort.Float64s(valid)
		return valid[len(valid)-1]
	case AggFirst:
		return valid[0]
	case AggLast:
		return valid[len(valid)-1]
	case AggSum:
		sum := 0.0
		for _, v := range valid {
			sum += v
		}
		return sum
	}
	return stat.Mean(valid, nil)
}

// Resample aggregates every column over periods of freq. Each period is
// stamped with its last date in w. Daily frequency returns a copy.
func Resample(w *Wide, freq Freq, agg string) (*Wide, error) {
	if !IsAgg(agg) {
		return nil, apperrors.Validationf("unknown aggregation %q", agg)
	}
	if freq == Daily {
		return w.Clone(), nil
	}
	ends := EndOfPeriods(w.Dates, freq)
	dates := make([]time.Time, len(ends))
	for k, i := range ends {
		dates[k] = w.Dates[i]
	}
	out := NewWide(dates, w.Columns)
	buf := make([]float64, 0, 64)
	for j := range w.Columns {
		from := 0
		for k, to := range ends {
			buf = buf[:0]
			for i := from; i <= to; i++ {
				buf = append(buf, w.Values[i][j])
			}
			out.Values[k][j] = Aggregate(buf, agg)
			from = to + 1
		}
	}
	return out, nil
}
