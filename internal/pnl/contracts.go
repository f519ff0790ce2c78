package pnl

import (
	"slices"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// contractWide collects the series <contid><suffix> for every contract into
// a date-by-contract matrix over the union of their dates. Columns carry the
// contract identifiers.
func contractWide(f qdf.Frame, contids []string, suffix string, start, end time.Time, blacklist qdf.Blacklist) (*qdf.Wide, error) {
	tickers := make([]string, len(contids))
	for i, c := range contids {
		if _, _, err := qdf.SplitTicker(c); err != nil {
			return nil, err
		}
		tickers[i] = c + suffix
	}
	sub := qdf.ReduceByTicker(f, tickers, start, end, blacklist)
	w := qdf.PivotTickers(sub, qdf.MetricValue)
	var absent []string
	for _, t := range tickers {
		if w.ColumnIndex(t) < 0 {
			absent = append(absent, t)
		}
	}
	if len(absent) > 0 {
		return nil, apperrors.Validationf("missing series: %s", strings.Join(absent, ", "))
	}
	out := w.Select(tickers)
	out.Columns = slices.Clone(contids)
	return out, nil
}

// alignDates maps every matrix onto the sorted union of their dates.
func alignDates(ws ...*qdf.Wide) []*qdf.Wide {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, w := range ws {
		for _, d := range w.Dates {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	out := make([]*qdf.Wide, len(ws))
	for i, w := range ws {
		out[i] = w.Reindex(dates)
	}
	return out
}

func validateContids(contids []string) error {
	if len(contids) == 0 {
		return apperrors.NewAppValidationError("contract identifiers must not be empty")
	}
	seen := make(map[string]bool, len(contids))
	for _, c := range contids {
		if _, _, err := qdf.SplitTicker(c); err != nil {
			return err
		}
		if seen[c] {
			return apperrors.Validationf("duplicate contract identifier %s", c)
		}
		seen[c] = true
	}
	return nil
}
