package panel

import (
	"fmt"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// MakeBlacklist turns a binary category (1 = excluded) into a blacklist.
// Each run of ones up to the last valid observation of a cross-section
// becomes a period keyed CID, or CID_1, CID_2, ... when there are several.
func MakeBlacklist(f qdf.Frame, xcat string, cids []string, start, end time.Time) (qdf.Blacklist, error) {
	sub := qdf.Reduce(f, qdf.Filter{Cids: cids, Xcats: []string{xcat}, Start: start, End: end})
	if len(sub) == 0 {
		return nil, apperrors.Validationf("no observations for category %s", xcat)
	}
	for _, o := range sub {
		if !math.IsNaN(o.Value) && o.Value != 0 && o.Value != 1 {
			return nil, apperrors.Validationf("blacklist category %s must be binary, found %v for %s on %s",
				xcat, o.Value, o.Cid, qdf.FormatDate(o.RealDate))
		}
	}

	w := qdf.Pivot(sub, xcat, qdf.MetricValue)
	out := make(qdf.Blacklist)
	for j, cid := range w.Columns {
		last := w.LastValid(j)
		var periods []qdf.Period
		runStart := -1
		for i := 0; i <= last; i++ {
			on := w.Values[i][j] == 1
			switch {
			case on && runStart < 0:
				runStart = i
			case !on && runStart >= 0:
				periods = append(periods, qdf.Period{Start: w.Dates[runStart], End: w.Dates[i-1]})
				runStart = -1
			}
		}
		if runStart >= 0 {
			periods = append(periods, qdf.Period{Start: w.Dates[runStart], End: w.Dates[last]})
		}
		if len(periods) == 1 {
			out[cid] = periods[0]
			continue
		}
		for k, p := range periods {
			out[fmt.Sprintf("%s_%d", cid, k+1)] = p
		}
	}
	return out, nil
}
