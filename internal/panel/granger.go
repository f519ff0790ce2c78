package panel

import (
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// GrangerOptions configures GrangerCausality. The pair of series is given
// either as two Tickers or as Cids × Xcats expanding to exactly two tickers.
// The test asks whether the second series Granger-causes the first.
type GrangerOptions struct {
	Tickers []string
	Cids    []string
	Xcats   []string
	// MaxLag tests every lag from 1 to MaxLag unless Lags lists them.
	MaxLag      int
	Lags        []int
	AddConstant bool
	Start       time.Time
	End         time.Time
	Freq        qdf.Freq
	Agg         string
	Metric      string
}

// GrangerResult is the SSR-based F-test for one lag.
type GrangerResult struct {
	Lag             int
	FStat           float64
	PValue          float64
	DFNum           int
	DFDen           int
	SSRRestricted   float64
	SSRUnrestricted float64
}

func (o GrangerOptions) tickers() ([]string, error) {
	if len(o.Tickers) > 0 {
		if len(o.Cids) > 0 || len(o.Xcats) > 0 {
			return nil, apperrors.NewAppValidationError("specify either tickers or cids and xcats, not both")
		}
		if len(o.Tickers) != 2 {
			return nil, apperrors.Validationf("exactly two tickers are required, got %d", len(o.Tickers))
		}
		return o.Tickers, nil
	}
	if len(o.Cids) == 0 || len(o.Xcats) == 0 {
		return nil, apperrors.NewAppValidationError("tickers or cids and xcats are required")
	}
	var out []string
	for _, c := range o.Cids {
		for _, x := range o.Xcats {
			out = append(out, qdf.Ticker(c, x))
		}
	}
	if len(out) != 2 {
		return nil, apperrors.Validationf("cids and xcats must expand to two tickers, got %d", len(out))
	}
	return out, nil
}

func (o GrangerOptions) lags() ([]int, error) {
	if len(o.Lags) > 0 {
		for _, l := range o.Lags {
			if l < 1 {
				return nil, apperrors.Validationf("lags must be positive, got %v", o.Lags)
			}
		}
		lags := slices.Clone(o.Lags)
		slices.Sort(lags)
		return slices.Compact(lags), nil
	}
	if o.MaxLag < 1 {
		return nil, apperrors.Validationf("max_lag must be positive, got %d", o.MaxLag)
	}
	lags := make([]int, o.MaxLag)
	for i := range lags {
		lags[i] = i + 1
	}
	return lags, nil
}

// GrangerCausality runs the SSR F-test of the hypothesis that lags of the
// second series add no explanatory power for the first, for each lag.
func GrangerCausality(f qdf.Frame, opts GrangerOptions) (map[int]GrangerResult, error) {
	tickers, err := opts.tickers()
	if err != nil {
		return nil, err
	}
	lags, err := opts.lags()
	if err != nil {
		return nil, err
	}
	metric := opts.Metric
	if metric == "" {
		metric = qdf.MetricValue
	}
	if !qdf.IsMetric(metric) {
		return nil, apperrors.Validationf("unknown metric %q", metric)
	}
	agg := opts.Agg
	if agg == "" {
		agg = qdf.AggMean
	}
	freq, err := qdf.ParseFreq(string(opts.Freq))
	if err != nil {
		return nil, err
	}

	sub := qdf.ReduceByTicker(f, tickers, opts.Start, opts.End, nil)
	w := qdf.PivotTickers(sub, metric)
	for _, t := range tickers {
		if w.ColumnIndex(t) < 0 {
			return nil, apperrors.Validationf("ticker %s not in frame", t)
		}
	}
	w, err = qdf.Resample(w.Select(tickers), freq, agg)
	if err != nil {
		return nil, err
	}
	var y, x []float64
	for _, row := range w.Values {
		if !math.IsNaN(row[0]) && !math.IsNaN(row[1]) {
			y = append(y, row[0])
			x = append(x, row[1])
		}
	}

	out := make(map[int]GrangerResult, len(lags))
	for _, lag := range lags {
		res, err := grangerTest(y, x, lag, opts.AddConstant)
		if err != nil {
			return nil, err
		}
		out[lag] = res
	}
	return out, nil
}

func grangerTest(y, x []float64, lag int, constant bool) (GrangerResult, error) {
	nobs := len(y) - lag
	c := 0
	if constant {
		c = 1
	}
	dfDen := nobs - 2*lag - c
	if dfDen < 1 {
		return GrangerResult{}, apperrors.Validationf("%d observations are too few for lag %d", len(y), lag)
	}

	target := mat.NewVecDense(nobs, y[lag:])
	restricted := mat.NewDense(nobs, lag+c, nil)
	full := mat.NewDense(nobs, 2*lag+c, nil)
	for i := 0; i < nobs; i++ {
		t := i + lag
		if constant {
			restricted.Set(i, 0, 1)
			full.Set(i, 0, 1)
		}
		for l := 1; l <= lag; l++ {
			restricted.Set(i, c+l-1, y[t-l])
			full.Set(i, c+l-1, y[t-l])
			full.Set(i, c+lag+l-1, x[t-l])
		}
	}

	ssrR, err := ssr(restricted, target)
	if err != nil {
		return GrangerResult{}, err
	}
	ssrU, err := ssr(full, target)
	if err != nil {
		return GrangerResult{}, err
	}
	fstat := (ssrR - ssrU) / ssrU * float64(dfDen) / float64(lag)
	dist := distuv.F{D1: float64(lag), D2: float64(dfDen)}
	return GrangerResult{
		Lag:             lag,
		FStat:           fstat,
		PValue:          dist.Survival(fstat),
		DFNum:           lag,
		DFDen:           dfDen,
		SSRRestricted:   ssrR,
		SSRUnrestricted: ssrU,
	}, nil
}

// ssr fits y on x by least squares and returns the residual sum of squares.
func ssr(x *mat.Dense, y *mat.VecDense) (float64, error) {
	_, cols := x.Dims()
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return 0, fmt.Errorf("least squares on %d regressors: %w", cols, err)
	}
	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	return mat.Dot(&resid, &resid), nil
}
