package pnl

import (
	"log/slog"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
)

// NotionalOptions configures NotionalPositions. At most one of Leverage and
// VolTarget may be set; with neither, positions are DollarPerSignal USD
// million per unit of contract signal.
type NotionalOptions struct {
	Sname   string
	Contids []string
	// AUM is the assets under management in USD million.
	AUM             float64
	DollarPerSignal float64
	// Leverage is the ratio of the sum of absolute positions to AUM.
	Leverage float64
	// VolTarget is the annualised portfolio volatility target in % of AUM.
	VolTarget    float64
	RebalFreq    qdf.Freq
	Slip         int
	LbackPeriods int
	LbackMeth    string
	HalfLife     int
	Rstring      string
	Start        time.Time
	End          time.Time
	Blacklist    qdf.Blacklist
	Pname        string

	Logger *slog.Logger
}

// DefaultNotionalOptions returns monthly rebalancing with one day slippage
// on an AUM of 100.
func DefaultNotionalOptions(sname string, contids []string) NotionalOptions {
	return NotionalOptions{
		Sname:           sname,
		Contids:         contids,
		AUM:             100,
		DollarPerSignal: 1,
		RebalFreq:       qdf.Monthly,
		Slip:            1,
		LbackPeriods:    21,
		LbackMeth:       panel.LbackMA,
		HalfLife:        11,
		Rstring:         "XR",
		Pname:           "POS",
	}
}

func (o NotionalOptions) validate() error {
	if o.Sname == "" {
		return apperrors.NewAppValidationError("strategy name is required")
	}
	if err := validateContids(o.Contids); err != nil {
		return err
	}
	if o.AUM <= 0 {
		return apperrors.Validationf("aum must be positive, got %v", o.AUM)
	}
	if o.Leverage < 0 || o.VolTarget < 0 {
		return apperrors.NewAppValidationError("leverage and vol target must not be negative")
	}
	if o.Leverage > 0 && o.VolTarget > 0 {
		return apperrors.NewAppValidationError("only one of leverage and vol target can be set")
	}
	if o.Leverage == 0 && o.VolTarget == 0 && o.DollarPerSignal <= 0 {
		return apperrors.Validationf("dollar_per_signal must be positive, got %v", o.DollarPerSignal)
	}
	if o.Slip < 0 {
		return apperrors.Validationf("slip must be a non-negative integer, got %d", o.Slip)
	}
	if o.Pname == "" {
		return apperrors.NewAppValidationError("position name is required")
	}
	return nil
}

// PositionXcat returns the category of positions of ctype for a strategy.
func PositionXcat(ctype, sname, pname string) string {
	return ctype + "_" + sname + "_" + pname
}

// NotionalPositions converts contract signals into positions in USD million,
// categories <ctype>_<sname>_<pname>. Signals are read at the end of every
// rebalancing period, held through the next period and take effect Slip
// days after the period end.
func NotionalPositions(f qdf.Frame, opts NotionalOptions) (qdf.Frame, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	freq, err := qdf.ParseFreq(string(opts.RebalFreq))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "notional_positions"))

	var sig *qdf.Wide
	var scale []float64
	switch {
	case opts.VolTarget > 0:
		var ret *qdf.Wide
		sig, ret, err = signalsAndReturns(f, opts.Contids, opts.Sname, opts.Rstring, opts.Start, opts.End, opts.Blacklist)
		if err != nil {
			return nil, err
		}
		vo := DefaultPortfolioVolOptions(opts.Sname, opts.Contids)
		vo.EstFreq = freq
		vo.LbackPeriods = opts.LbackPeriods
		vo.LbackMeth = opts.LbackMeth
		vo.HalfLife = opts.HalfLife
		vo.Logger = logger
		if err := vo.validate(); err != nil {
			return nil, err
		}
		vol, err := portfolioVol(sig, ret, vo)
		if err != nil {
			return nil, err
		}
		// A portfolio of one USD per signal has an annual PnL deviation of
		// vol/100 USD.
		scale = make([]float64, len(vol))
		for i, v := range vol {
			if v > 0 {
				scale[i] = opts.AUM * opts.VolTarget / v
			} else {
				scale[i] = math.NaN()
			}
		}
	default:
		sig, err = contractWide(f, opts.Contids, "_"+opts.Sname+"_CSIG", opts.Start, opts.End, opts.Blacklist)
		if err != nil {
			return nil, err
		}
		scale = make([]float64, sig.Rows())
		for i, row := range sig.Values {
			if opts.Leverage == 0 {
				scale[i] = opts.DollarPerSignal
				continue
			}
			gross := 0.0
			for _, v := range row {
				if !math.IsNaN(v) {
					gross += math.Abs(v)
				}
			}
			if gross > 0 {
				scale[i] = opts.AUM * opts.Leverage / gross
			} else {
				scale[i] = math.NaN()
			}
		}
	}

	pos := sig.Clone()
	for i := range pos.Values {
		for j := range pos.Values[i] {
			pos.Values[i][j] *= scale[i]
		}
	}
	held := holdPositions(pos, freq, opts.Slip)

	var out qdf.Frame
	for j, contid := range held.Columns {
		cid, ct, _ := qdf.SplitTicker(contid)
		single := qdf.NewWide(held.Dates, []string{cid})
		single.SetCol(0, held.Col(j))
		out = append(out, single.Long(PositionXcat(ct, opts.Sname, opts.Pname))...)
	}
	out.Sort()
	return out, nil
}

// holdPositions samples pos at period ends, holds each sample until the
// next one and delays every change by slip rows.
func holdPositions(pos *qdf.Wide, freq qdf.Freq, slip int) *qdf.Wide {
	eops := qdf.EndOfPeriodMask(pos.Dates, freq)
	held := qdf.NewWide(pos.Dates, pos.Columns)
	for j := range pos.Columns {
		last := math.NaN()
		for i := range pos.Dates {
			if eops[i] {
				last = pos.Values[i][j]
			}
			if k := i + slip; k < pos.Rows() {
				held.Values[k][j] = last
			}
		}
	}
	return held
}
