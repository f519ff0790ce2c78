package pnl

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
)

// PortfolioVolPostfix ends the category of a strategy's volatility estimate
// for a portfolio of one USD per signal unit.
const PortfolioVolPostfix = "_PNL_USD1S_ASD"

// PortfolioVolOptions configures HistoricPortfolioVol.
type PortfolioVolOptions struct {
	Sname        string
	Contids      []string
	EstFreq      qdf.Freq
	LbackPeriods int
	LbackMeth    string
	HalfLife     int
	// Rstring completes contract return tickers as <contid><Rstring>.
	Rstring      string
	Start        time.Time
	End          time.Time
	Blacklist    qdf.Blacklist
	NanTolerance float64
	// RemoveZeros skips dates on which every contract return is zero.
	RemoveZeros bool

	Logger *slog.Logger
}

// DefaultPortfolioVolOptions returns monthly estimation over 21 days.
func DefaultPortfolioVolOptions(sname string, contids []string) PortfolioVolOptions {
	return PortfolioVolOptions{
		Sname:        sname,
		Contids:      contids,
		EstFreq:      qdf.Monthly,
		LbackPeriods: 21,
		LbackMeth:    panel.LbackMA,
		HalfLife:     11,
		Rstring:      "XR",
		NanTolerance: 0.25,
		RemoveZeros:  true,
	}
}

func (o PortfolioVolOptions) validate() error {
	if o.Sname == "" {
		return apperrors.NewAppValidationError("strategy name is required")
	}
	if err := validateContids(o.Contids); err != nil {
		return err
	}
	if o.LbackPeriods < 2 {
		return apperrors.Validationf("lback_periods must be at least 2, got %d", o.LbackPeriods)
	}
	if o.LbackMeth != panel.LbackMA && o.LbackMeth != panel.LbackXMA {
		return apperrors.Validationf("lback_meth must be ma or xma, got %q", o.LbackMeth)
	}
	if o.LbackMeth == panel.LbackXMA && o.HalfLife < 1 {
		return apperrors.Validationf("half_life must be positive, got %d", o.HalfLife)
	}
	if o.NanTolerance < 0 || o.NanTolerance >= 1 {
		return apperrors.Validationf("nan_tolerance must be in [0, 1), got %v", o.NanTolerance)
	}
	return nil
}

// HistoricPortfolioVol estimates the annualised standard deviation of the
// daily PnL of holding one USD per unit of each contract signal. At the end
// of every EstFreq period the covariance of contract returns over the
// lookback window is combined with the signals of that date; estimates are
// carried forward to the next estimation date. The result is the GLB series
// <sname>_PNL_USD1S_ASD in % of one USD.
func HistoricPortfolioVol(f qdf.Frame, opts PortfolioVolOptions) (qdf.Frame, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	sig, ret, err := signalsAndReturns(f, opts.Contids, opts.Sname, opts.Rstring, opts.Start, opts.End, opts.Blacklist)
	if err != nil {
		return nil, err
	}
	vol, err := portfolioVol(sig, ret, opts)
	if err != nil {
		return nil, err
	}
	w := qdf.NewWide(sig.Dates, []string{GlobalCid})
	w.SetCol(0, vol)
	return w.Long(opts.Sname + PortfolioVolPostfix), nil
}

// signalsAndReturns loads contract signals and returns on common dates.
// Signals are carried forward over dates on which only returns exist.
func signalsAndReturns(f qdf.Frame, contids []string, sname, rstring string, start, end time.Time, blacklist qdf.Blacklist) (*qdf.Wide, *qdf.Wide, error) {
	if rstring == "" {
		return nil, nil, apperrors.NewAppValidationError("return string is required")
	}
	sig, err := contractWide(f, contids, "_"+sname+"_CSIG", start, end, blacklist)
	if err != nil {
		return nil, nil, err
	}
	ret, err := contractWide(f, contids, rstring, start, end, blacklist)
	if err != nil {
		return nil, nil, err
	}
	aligned := alignDates(sig, ret)
	return aligned[0].ForwardFill(0), aligned[1], nil
}

// portfolioVol returns the annualised portfolio volatility on every row of
// sig, estimated at period ends and carried forward.
func portfolioVol(sig, ret *qdf.Wide, opts PortfolioVolOptions) ([]float64, error) {
	freq, err := qdf.ParseFreq(string(opts.EstFreq))
	if err != nil {
		return nil, err
	}
	var weights []float64
	if opts.LbackMeth == panel.LbackXMA {
		weights = panel.ExpoWeights(opts.LbackPeriods, opts.HalfLife)
	}
	minValid := max(2, int(math.Ceil(float64(opts.LbackPeriods)*(1-opts.NanTolerance))))

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	eops := qdf.EndOfPeriodMask(sig.Dates, freq)
	out := make([]float64, sig.Rows())
	last := math.NaN()
	var skipped int
	for i := range sig.Dates {
		if eops[i] {
			last = windowVol(sig.Values[i], ret, i, opts.LbackPeriods, weights, minValid, opts.RemoveZeros)
			if math.IsNaN(last) {
				skipped++
			}
		}
		out[i] = last
	}
	if skipped > 0 {
		logger.Warn("portfolio volatility not estimable on some dates",
			slog.String("sname", opts.Sname),
			slog.Int("dates", skipped),
		)
	}
	return out, nil
}

// windowVol combines the return covariance of the lback rows ending at row
// i with the signal vector s. Rows with a missing return are dropped; too
// few remaining rows give NaN.
func windowVol(s []float64, ret *qdf.Wide, i, lback int, weights []float64, minValid int, removeZeros bool) float64 {
	from := max(0, i+1-lback)
	var rows [][]float64
	var rowWeights []float64
	for k := from; k <= i; k++ {
		row := ret.Values[k]
		complete, allZero := true, true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
			if v != 0 {
				allZero = false
			}
		}
		if !complete || (removeZeros && allZero) {
			continue
		}
		rows = append(rows, row)
		if weights != nil {
			rowWeights = append(rowWeights, weights[lback-1-(i-k)])
		}
	}
	if len(rows) < minValid {
		return math.NaN()
	}

	n, c := len(rows), len(s)
	x := mat.NewDense(n, c, nil)
	for r, row := range rows {
		x.SetRow(r, row)
	}
	if rowWeights != nil {
		// Frequency weights summing to the number of rows.
		total := 0.0
		for _, w := range rowWeights {
			total += w
		}
		for k := range rowWeights {
			rowWeights[k] *= float64(n) / total
		}
	}
	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, x, rowWeights)

	sv := mat.NewVecDense(c, nil)
	for j, v := range s {
		if !math.IsNaN(v) {
			sv.SetVec(j, v)
		}
	}
	pvar := mat.Inner(sv, cov, sv)
	if pvar < 0 {
		pvar = 0
	}
	return math.Sqrt(pvar) * panel.AnnualizationFactor
}
