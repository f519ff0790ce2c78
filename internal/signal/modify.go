// Package signal turns quantamental signals into positions and measures how
// well they predict returns.
package signal

import (
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
)

// Signal scaling methods.
const (
	ScaleProp = "prop"
	ScaleDig  = "dig"
)

// ModifySignals converts a signal category into unit positions per
// cross-section: "prop" zn-scores the panel around zero (sequentially, with
// in-sample scoring of the first minObs dates) and "dig" keeps only the
// sign. The result keeps the category name xcatSig.
func ModifySignals(f qdf.Frame, cids []string, xcatSig string, start, end time.Time, scale string, minObs int, thresh float64) (qdf.Frame, error) {
	switch scale {
	case ScaleProp:
		opts := panel.DefaultZnOptions(xcatSig)
		opts.Cids = cids
		opts.Start = start
		opts.End = end
		opts.MinObs = minObs
		opts.Thresh = thresh
		zn, err := panel.MakeZnScores(f, opts)
		if err != nil {
			return nil, err
		}
		for i := range zn {
			zn[i].Xcat = xcatSig
		}
		return zn, nil
	case ScaleDig:
		sub := qdf.Reduce(f, qdf.Filter{Cids: cids, Xcats: []string{xcatSig}, Start: start, End: end})
		if len(sub) == 0 {
			return nil, apperrors.Validationf("no observations for signal %s", xcatSig)
		}
		out := make(qdf.Frame, len(sub))
		for i, o := range sub {
			out[i] = qdf.NewObservation(o.Cid, o.Xcat, o.RealDate, sign(o.Value))
		}
		return out, nil
	}
	return nil, apperrors.Validationf("scale must be prop or dig, got %q", scale)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	case v == 0:
		return 0
	}
	return math.NaN()
}

// CsUnitReturns sums the returns of the contract return categories scaled by
// their signal relations into one return series per cross-section, category
// ret. Dates where any contract return is missing are dropped.
func CsUnitReturns(f qdf.Frame, contractReturns []string, sigrels []float64, ret string) (qdf.Frame, error) {
	if len(contractReturns) != len(sigrels) {
		return nil, apperrors.Validationf("each contract return requires a signal relation (%d vs %d)", len(contractReturns), len(sigrels))
	}
	if len(contractReturns) == 0 {
		return nil, apperrors.NewAppValidationError("at least one contract return is required")
	}
	var total *qdf.Wide
	for i, cr := range contractReturns {
		w := qdf.Pivot(f, cr, qdf.MetricValue)
		if w.Cols() == 0 {
			return nil, apperrors.Validationf("contract return %s not in frame", cr)
		}
		if total == nil {
			total = w
			for _, row := range total.Values {
				for j := range row {
					row[j] *= sigrels[i]
				}
			}
			continue
		}
		total = addScaled(total, w, sigrels[i])
	}
	return total.Long(ret), nil
}

// addScaled returns a + s·b over the union of dates and the columns of a;
// a cell is NaN when either side is missing.
func addScaled(a, b *qdf.Wide, s float64) *qdf.Wide {
	dates := unionDates(a.Dates, b.Dates)
	a = a.Reindex(dates)
	b = b.Select(a.Columns).Reindex(dates)
	for i := range a.Values {
		for j := range a.Values[i] {
			a.Values[i][j] += s * b.Values[i][j]
		}
	}
	return a
}

func unionDates(a, b []time.Time) []time.Time {
	out := make([]time.Time, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Before(b[j])):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j].Before(a[i]):
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
