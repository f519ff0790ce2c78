package pnl

import (
	"math"
	"time"

	"macrosynergy/internal/qdf"
)

var start2020 = qdf.Date(2020, 1, 1)

// frameFromColumns builds a frame for xcat over consecutive business days
// from start; NaN cells are left out.
func frameFromColumns(xcat string, start time.Time, cols map[string][]float64) qdf.Frame {
	n := 0
	for _, c := range cols {
		n = max(n, len(c))
	}
	days := qdf.BusinessDays(start, start.AddDate(0, 0, 2*n+7))[:n]
	var f qdf.Frame
	for cid, vals := range cols {
		for i, v := range vals {
			if !math.IsNaN(v) {
				f = append(f, qdf.NewObservation(cid, xcat, days[i], v))
			}
		}
	}
	f.Sort()
	return f
}

func column(f qdf.Frame, xcat, cid string) []float64 {
	return qdf.Pivot(f, xcat, qdf.MetricValue).Column(cid)
}

// alternating returns n values of +1 and -1.
func alternating(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale
		if i%2 == 1 {
			out[i] = -scale
		}
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
