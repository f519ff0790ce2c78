// Package panel implements panel computations over quantamental data frames:
// zn-scores, linear composites, blacklists, baskets, volatility estimates,
// hedge ratios and Granger causality tests.
package panel

import (
	"log/slog"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Neutral levels for zn-scores.
const (
	NeutralZero   = "zero"
	NeutralMean   = "mean"
	NeutralMedian = "median"
)

// ZnOptions configures MakeZnScores. Start from DefaultZnOptions; the zero
// value is non-sequential with no minimum observation window.
type ZnOptions struct {
	Xcat      string
	Cids      []string
	Start     time.Time
	End       time.Time
	Blacklist qdf.Blacklist

	// Sequential estimates neutral level and deviation on expanding
	// windows; otherwise the full sample is used.
	Sequential bool
	MinObs     int
	// IIS applies the statistics of the first MinObs observations to that
	// initial period instead of dropping it.
	IIS       bool
	Neutral   string
	EstFreq   qdf.Freq
	Thresh    float64
	PanWeight float64
	Postfix   string

	Logger *slog.Logger
}

// DefaultZnOptions returns the usual settings for xcat.
func DefaultZnOptions(xcat string) ZnOptions {
	return ZnOptions{
		Xcat:       xcat,
		Sequential: true,
		MinObs:     261,
		IIS:        true,
		Neutral:    NeutralZero,
		EstFreq:    qdf.Daily,
		PanWeight:  1,
		Postfix:    "ZN",
	}
}

func (o *ZnOptions) normalize() error {
	if o.Xcat == "" {
		return apperrors.NewAppValidationError("xcat is required")
	}
	if o.Neutral == "" {
		o.Neutral = NeutralZero
	}
	switch o.Neutral {
	case NeutralZero, NeutralMean, NeutralMedian:
	default:
		return apperrors.Validationf("neutral must be one of zero, mean, median; got %q", o.Neutral)
	}
	if o.Thresh != 0 && o.Thresh < 1 {
		return apperrors.Validationf("thresh must be at least 1, got %v", o.Thresh)
	}
	if o.PanWeight < 0 || o.PanWeight > 1 {
		return apperrors.Validationf("pan_weight must be in [0, 1], got %v", o.PanWeight)
	}
	if o.MinObs < 0 {
		return apperrors.Validationf("min_obs must be non-negative, got %d", o.MinObs)
	}
	freq, err := qdf.ParseFreq(string(o.EstFreq))
	if err != nil {
		return err
	}
	o.EstFreq = freq
	if o.Postfix == "" {
		o.Postfix = "ZN"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// MakeZnScores computes normalized scores of a category around a neutral
// level, blending a panel-wide and a cross-sectional normalization by
// PanWeight. The output category is Xcat+Postfix.
func MakeZnScores(f qdf.Frame, opts ZnOptions) (qdf.Frame, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	sub := qdf.Reduce(f, qdf.Filter{
		Cids:      opts.Cids,
		Xcats:     []string{opts.Xcat},
		Start:     opts.Start,
		End:       opts.End,
		Blacklist: opts.Blacklist,
	})
	if len(sub) == 0 {
		return nil, apperrors.Validationf("no observations for category %s", opts.Xcat)
	}
	if missing := missingCids(opts.Cids, sub.Cids()); len(missing) > 0 {
		opts.Logger.Warn("cross-sections without data for category",
			slog.String("xcat", opts.Xcat),
			slog.Any("cids", missing),
		)
	}

	w := qdf.Pivot(sub, opts.Xcat, qdf.MetricValue).DropEmptyRows()
	scores := znScores(w, opts)
	return scores.Long(opts.Xcat + opts.Postfix), nil
}

func znScores(w *qdf.Wide, opts ZnOptions) *qdf.Wide {
	out := qdf.NewWide(w.Dates, w.Columns)
	eops := qdf.EndOfPeriodMask(w.Dates, opts.EstFreq)

	var panNeutral, panSD []float64
	if opts.PanWeight > 0 {
		rows := make([][]float64, w.Rows())
		for i := range rows {
			rows[i] = validValues(w.Values[i])
		}
		panNeutral, panSD = expandingStats(rows, opts.Neutral, opts.Sequential)
		panNeutral, panSD = onEstimationDates(panNeutral, eops), onEstimationDates(panSD, eops)
		if opts.IIS {
			backfillInitial(panNeutral, 0, opts.MinObs)
			backfillInitial(panSD, 0, opts.MinObs)
		}
	}

	for j := range w.Columns {
		col := w.Col(j)
		first := w.FirstValid(j)

		var csNeutral, csSD []float64
		if opts.PanWeight < 1 {
			rows := make([][]float64, len(col))
			for i, v := range col {
				if !math.IsNaN(v) {
					rows[i] = []float64{v}
				}
			}
			csNeutral, csSD = expandingStats(rows, opts.Neutral, opts.Sequential)
			csNeutral, csSD = onEstimationDates(csNeutral, eops), onEstimationDates(csSD, eops)
			if opts.IIS && first >= 0 {
				backfillInitial(csNeutral, first, opts.MinObs)
				backfillInitial(csSD, first, opts.MinObs)
			}
		}

		seen := 0
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			seen++
			if !opts.IIS && seen <= opts.MinObs {
				continue
			}
			score := 0.0
			if opts.PanWeight > 0 {
				score += opts.PanWeight * standardize(v, panNeutral[i], panSD[i])
			}
			if opts.PanWeight < 1 {
				score += (1 - opts.PanWeight) * standardize(v, csNeutral[i], csSD[i])
			}
			out.Values[i][j] = winsorize(score, opts.Thresh)
		}
	}
	return out
}

func standardize(v, neutral, sd float64) float64 {
	if math.IsNaN(neutral) || math.IsNaN(sd) || sd == 0 {
		return math.NaN()
	}
	return (v - neutral) / sd
}

// expandingStats returns the neutral level and the mean absolute deviation
// from it for every row. rows[i] holds the valid observations of row i.
// Sequential statistics use rows 0..i; otherwise every row gets the
// full-sample figures.
func expandingStats(rows [][]float64, neutral string, sequential bool) ([]float64, []float64) {
	n := len(rows)
	neu, sd := nans(n), nans(n)

	if !sequential {
		var all []float64
		for _, r := range rows {
			all = append(all, r...)
		}
		if len(all) == 0 {
			return neu, sd
		}
		level := 0.0
		switch neutral {
		case NeutralMean:
			level = nanMean(all)
		case NeutralMedian:
			level = nanMedian(all)
		}
		absSum := 0.0
		for _, v := range all {
			absSum += math.Abs(v - level)
		}
		dev := absSum / float64(len(all))
		for i := range neu {
			neu[i], sd[i] = level, dev
		}
		return neu, sd
	}

	var (
		sum, absSum   float64
		count, absCnt int
		med           runningMedian
	)
	for i, r := range rows {
		for _, v := range r {
			sum += v
			count++
			if neutral == NeutralMedian {
				med.Add(v)
			}
		}
		if count == 0 {
			continue
		}
		switch neutral {
		case NeutralMean:
			neu[i] = sum / float64(count)
		case NeutralMedian:
			neu[i] = med.Median()
		default:
			neu[i] = 0
		}
		for _, v := range r {
			absSum += math.Abs(v - neu[i])
			absCnt++
		}
		sd[i] = absSum / float64(absCnt)
	}
	return neu, sd
}

// onEstimationDates keeps the statistics of the latest estimation date on
// or before each row.
func onEstimationDates(stats []float64, eops []bool) []float64 {
	out := nans(len(stats))
	last := math.NaN()
	for i := range stats {
		if eops[i] {
			last = stats[i]
		}
		out[i] = last
	}
	return out
}

// backfillInitial assigns the statistics available after minObs
// observations to the rows before them, starting at first.
func backfillInitial(stats []float64, first, minObs int) {
	if minObs <= 0 || first >= len(stats) {
		return
	}
	k := first + minObs - 1
	if k >= len(stats) {
		k = len(stats) - 1
	}
	// Estimation dates may leave stats[k] empty; take the next estimate.
	for k < len(stats)-1 && math.IsNaN(stats[k]) {
		k++
	}
	for i := first; i < k; i++ {
		stats[i] = stats[k]
	}
}

func missingCids(requested, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, c := range available {
		have[c] = true
	}
	var out []string
	for _, c := range requested {
		if !have[c] {
			out = append(out, c)
		}
	}
	return out
}
