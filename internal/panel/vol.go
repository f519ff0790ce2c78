package panel

import (
	"log/slog"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Lookback methods for volatility estimates.
const (
	LbackMA  = "ma"
	LbackXMA = "xma"
)

// AnnualizationFactor converts daily dispersion to annual terms.
var AnnualizationFactor = math.Sqrt(252)

// ExpoWeights returns normalised exponential weights over lback periods,
// oldest first, with decay factor 2^(-1/halfLife).
func ExpoWeights(lback, halfLife int) []float64 {
	decf := math.Pow(2, -1/float64(halfLife))
	w := make([]float64, lback)
	sum := 0.0
	for i := range w {
		w[i] = (1 - decf) * math.Pow(decf, float64(lback-i-1))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// FlatStd is the mean absolute value of the valid observations, the
// dispersion measure used for returns with a zero mean assumption.
func FlatStd(x []float64, removeZeros bool) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if math.IsNaN(v) || (removeZeros && v == 0) {
			continue
		}
		sum += math.Abs(v)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// ExpoStd is the weighted mean absolute value; weights of skipped
// observations are dropped and the rest renormalised.
func ExpoStd(x, w []float64, removeZeros bool) float64 {
	sum, wsum := 0.0, 0.0
	for i, v := range x {
		if math.IsNaN(v) || (removeZeros && v == 0) {
			continue
		}
		sum += w[i] * math.Abs(v)
		wsum += w[i]
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

// volEstimator computes trailing dispersion of a single series.
type volEstimator struct {
	lback       int
	meth        string
	weights     []float64
	removeZeros bool
	minValid    int
}

func newVolEstimator(lback int, meth string, halfLife int, removeZeros bool, nanTolerance float64) (*volEstimator, error) {
	if lback < 1 {
		return nil, apperrors.Validationf("lback_periods must be positive, got %d", lback)
	}
	if nanTolerance < 0 || nanTolerance >= 1 {
		return nil, apperrors.Validationf("nan_tolerance must be in [0, 1), got %v", nanTolerance)
	}
	e := &volEstimator{
		lback:       lback,
		meth:        meth,
		removeZeros: removeZeros,
		minValid:    int(math.Ceil(float64(lback) * (1 - nanTolerance))),
	}
	switch meth {
	case LbackMA:
	case LbackXMA:
		if halfLife < 1 {
			return nil, apperrors.Validationf("half_life must be positive, got %d", halfLife)
		}
		e.weights = ExpoWeights(lback, halfLife)
	default:
		return nil, apperrors.Validationf("lback_meth must be ma or xma, got %q", meth)
	}
	return e, nil
}

// at estimates the dispersion of the lback observations ending at row i.
func (e *volEstimator) at(col []float64, i int) float64 {
	if i+1 < e.lback {
		return math.NaN()
	}
	window := col[i+1-e.lback : i+1]
	valid := 0
	for _, v := range window {
		if !math.IsNaN(v) && !(e.removeZeros && v == 0) {
			valid++
		}
	}
	if valid < e.minValid || valid == 0 {
		return math.NaN()
	}
	if e.meth == LbackXMA {
		return ExpoStd(window, e.weights, e.removeZeros)
	}
	return FlatStd(window, e.removeZeros)
}

// series estimates on the estimation rows and carries each estimate
// forward to the following rows.
func (e *volEstimator) series(col []float64, eops []bool) []float64 {
	out := nans(len(col))
	last := math.NaN()
	for i := range col {
		if eops[i] {
			last = e.at(col, i)
		}
		out[i] = last
	}
	return out
}

// VolOptions configures HistoricVol.
type VolOptions struct {
	Xcat         string
	Cids         []string
	LbackPeriods int
	LbackMeth    string
	HalfLife     int
	Start        time.Time
	End          time.Time
	EstFreq      qdf.Freq
	Blacklist    qdf.Blacklist
	RemoveZeros  bool
	NanTolerance float64
	Postfix      string

	Logger *slog.Logger
}

// DefaultVolOptions returns the usual settings for xcat.
func DefaultVolOptions(xcat string) VolOptions {
	return VolOptions{
		Xcat:         xcat,
		LbackPeriods: 21,
		LbackMeth:    LbackMA,
		HalfLife:     11,
		EstFreq:      qdf.Daily,
		RemoveZeros:  true,
		NanTolerance: 0.25,
		Postfix:      "ASD",
	}
}

// HistoricVol estimates annualised return volatility per cross-section as
// the trailing mean absolute return, flat or exponentially weighted.
// Estimates are made at the end of every EstFreq period and carried forward.
func HistoricVol(f qdf.Frame, opts VolOptions) (qdf.Frame, error) {
	if opts.Xcat == "" {
		return nil, apperrors.NewAppValidationError("xcat is required")
	}
	freq, err := qdf.ParseFreq(string(opts.EstFreq))
	if err != nil {
		return nil, err
	}
	est, err := newVolEstimator(opts.LbackPeriods, opts.LbackMeth, opts.HalfLife, opts.RemoveZeros, opts.NanTolerance)
	if err != nil {
		return nil, err
	}
	postfix := opts.Postfix
	if postfix == "" {
		postfix = "ASD"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
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
		logger.Warn("cross-sections without data for category",
			slog.String("xcat", opts.Xcat),
			slog.Any("cids", missing),
		)
	}

	w := qdf.Pivot(sub, opts.Xcat, qdf.MetricValue)
	eops := qdf.EndOfPeriodMask(w.Dates, freq)
	out := qdf.NewWide(w.Dates, w.Columns)
	for j := range w.Columns {
		vol := est.series(w.Col(j), eops)
		for i := range vol {
			vol[i] *= AnnualizationFactor
		}
		out.SetCol(j, vol)
	}
	return out.Long(opts.Xcat + postfix), nil
}
