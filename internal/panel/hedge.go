package panel

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// HedgeOptions configures HedgeRatio.
type HedgeOptions struct {
	// Xcat is the return category of the hedged positions.
	Xcat string
	Cids []string
	// HedgeReturn is the ticker of the hedge asset's return, e.g. USD_EQXR.
	HedgeReturn string
	Start       time.Time
	End         time.Time
	Blacklist   qdf.Blacklist
	// Refreq is the re-estimation frequency: W, M or Q.
	Refreq qdf.Freq
	MinObs int

	Logger *slog.Logger
}

// DefaultHedgeOptions returns monthly re-estimation with 24 minimum
// observations.
func DefaultHedgeOptions(xcat, hedgeReturn string) HedgeOptions {
	return HedgeOptions{
		Xcat:        xcat,
		HedgeReturn: hedgeReturn,
		Refreq:      qdf.Monthly,
		MinObs:      24,
	}
}

// HedgeEstimate is one regression result for a cross-section.
type HedgeEstimate struct {
	Cid         string
	RealDate    time.Time
	Intercept   float64
	Coefficient float64
	Obs         int
}

// HedgeRatio estimates the sensitivity of each cross-section's return to the
// hedge return by expanding OLS with intercept. Estimates are made at the
// end of every Refreq period and apply to the dates of the following period,
// so ratios are always out of sample. The result holds the ratios under
// category <xcat>_HR.
func HedgeRatio(f qdf.Frame, opts HedgeOptions) (qdf.Frame, []HedgeEstimate, error) {
	hcid, hxcat, err := qdf.SplitTicker(opts.HedgeReturn)
	if err != nil {
		return nil, nil, apperrors.Validationf("hedge return must be a ticker of the form CID_XCAT, got %q", opts.HedgeReturn)
	}
	if opts.Xcat == "" {
		return nil, nil, apperrors.NewAppValidationError("xcat is required")
	}
	freq, err := qdf.ParseFreq(string(opts.Refreq))
	if err != nil {
		return nil, nil, err
	}
	if freq == qdf.Daily || freq == qdf.Annual {
		return nil, nil, apperrors.Validationf("refreq must be W, M or Q, got %s", freq)
	}
	if opts.MinObs < 2 {
		return nil, nil, apperrors.Validationf("min_obs must be at least 2, got %d", opts.MinObs)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "hedge_ratio"))

	hedge := qdf.ReduceByTicker(f, []string{opts.HedgeReturn}, opts.Start, opts.End, opts.Blacklist)
	if len(hedge) == 0 {
		return nil, nil, apperrors.Validationf("hedge return %s not in frame", opts.HedgeReturn)
	}

	sub := qdf.Reduce(f, qdf.Filter{
		Cids:      opts.Cids,
		Xcats:     []string{opts.Xcat},
		Start:     opts.Start,
		End:       opts.End,
		Blacklist: opts.Blacklist,
	})
	if len(sub) == 0 {
		return nil, nil, apperrors.Validationf("no observations for category %s", opts.Xcat)
	}
	w := qdf.Pivot(sub, opts.Xcat, qdf.MetricValue)
	if hxcat == opts.Xcat {
		// The hedge asset is not hedged against itself.
		if j := w.ColumnIndex(hcid); j >= 0 {
			w = w.Select(slices.DeleteFunc(slices.Clone(w.Columns), func(c string) bool { return c == hcid }))
		}
	}
	if w.Cols() == 0 {
		return nil, nil, apperrors.NewAppValidationError("no cross-sections left to hedge")
	}

	hw := qdf.PivotTickers(hedge, qdf.MetricValue).Reindex(w.Dates)
	x := hw.Col(0)
	eops := qdf.EndOfPeriodMask(w.Dates, freq)

	out := qdf.NewWide(w.Dates, w.Columns)
	var estimates []HedgeEstimate
	for j, cid := range w.Columns {
		y := w.Col(j)
		var xs, ys []float64
		current := math.NaN()
		for i := range y {
			// The ratio in force on date i was estimated before it.
			out.Values[i][j] = current
			if !math.IsNaN(x[i]) && !math.IsNaN(y[i]) {
				xs = append(xs, x[i])
				ys = append(ys, y[i])
			}
			if !eops[i] || len(ys) < opts.MinObs {
				continue
			}
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			current = beta
			estimates = append(estimates, HedgeEstimate{
				Cid:         cid,
				RealDate:    w.Dates[i],
				Intercept:   alpha,
				Coefficient: beta,
				Obs:         len(ys),
			})
		}
	}
	logger.Debug("hedge ratios estimated",
		slog.String("hedge_return", opts.HedgeReturn),
		slog.Int("estimates", len(estimates)),
	)
	return out.Long(opts.Xcat + "_HR"), estimates, nil
}
