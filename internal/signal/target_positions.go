package signal

import (
	"log/slog"
	"math"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
)

// BasketPositions describes a basket traded on the common signal. Name has
// the form <label>_<ctype>; Contracts are <cid>_<ctype>. Weights is a
// weight frame as produced by panel.Basket.Weights; nil means equal weights.
type BasketPositions struct {
	Name      string
	Contracts []string
	Weights   qdf.Frame
}

func (b BasketPositions) ctype() string {
	_, ct, _ := qdf.SplitTicker(b.Name)
	return ct
}

// TargetOptions configures TargetPositions.
type TargetOptions struct {
	Cids    []string
	XcatSig string
	// Ctypes are the traded contract types, e.g. FX or EQ.
	Ctypes []string
	// Sigrels translate the signal into positions, one per ctype followed by
	// one per basket.
	Sigrels []float64
	Baskets []BasketPositions
	Ret     string
	Start   time.Time
	End     time.Time
	Scale   string
	MinObs  int
	Thresh  float64
	// CsVtarg is the annualised volatility target of a unit position per
	// cross-section; 0 disables volatility targeting.
	CsVtarg      float64
	LbackPeriods int
	LbackMeth    string
	HalfLife     int
	Posname      string

	Logger *slog.Logger
}

// DefaultTargetOptions returns the usual settings for a signal and contract
// types.
func DefaultTargetOptions(xcatSig string, ctypes []string, sigrels []float64) TargetOptions {
	return TargetOptions{
		XcatSig:      xcatSig,
		Ctypes:       ctypes,
		Sigrels:      sigrels,
		Ret:          "XR_NSA",
		Scale:        ScaleProp,
		MinObs:       252,
		LbackPeriods: 21,
		LbackMeth:    panel.LbackMA,
		HalfLife:     11,
		Posname:      "POS",
	}
}

// TargetPositions converts a signal into daily target positions in USD per
// contract, category <ctype>_<posname>. Basket positions are distributed
// to their constituents by weight and consolidated with the panel positions
// of the same contract type.
func TargetPositions(f qdf.Frame, opts TargetOptions) (qdf.Frame, error) {
	if opts.XcatSig == "" || len(opts.Ctypes) == 0 {
		return nil, apperrors.NewAppValidationError("signal category and contract types are required")
	}
	if len(opts.Sigrels) != len(opts.Ctypes)+len(opts.Baskets) {
		return nil, apperrors.Validationf("got %d signal relations for %d contract types and %d baskets",
			len(opts.Sigrels), len(opts.Ctypes), len(opts.Baskets))
	}
	if opts.CsVtarg < 0 {
		return nil, apperrors.Validationf("volatility target must be positive, got %v", opts.CsVtarg)
	}
	posname := opts.Posname
	if posname == "" {
		posname = "POS"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "target_positions"))

	contractReturns := make([]string, len(opts.Ctypes))
	for i, ct := range opts.Ctypes {
		contractReturns[i] = ct + opts.Ret
	}
	dfx := qdf.Reduce(f, qdf.Filter{
		Cids:  opts.Cids,
		Xcats: append(append([]string(nil), contractReturns...), opts.XcatSig),
		Start: opts.Start,
		End:   opts.End,
	})
	if !containsXcat(dfx, opts.XcatSig) {
		return nil, apperrors.Validationf("signal category %s not in frame", opts.XcatSig)
	}

	mods, err := ModifySignals(dfx, opts.Cids, opts.XcatSig, opts.Start, opts.End, opts.Scale, opts.MinObs, opts.Thresh)
	if err != nil {
		return nil, err
	}
	unit := qdf.Pivot(mods, opts.XcatSig, qdf.MetricValue)

	if opts.CsVtarg > 0 {
		unit, err = volTarget(dfx, unit, contractReturns, opts)
		if err != nil {
			return nil, err
		}
	}

	positions := make(map[string]*qdf.Wide, len(opts.Ctypes))
	order := append([]string(nil), opts.Ctypes...)
	for i, ct := range opts.Ctypes {
		positions[ct] = scaled(unit, opts.Sigrels[i])
	}
	for k, b := range opts.Baskets {
		bpos, err := basketPositions(unit, b)
		if err != nil {
			return nil, err
		}
		bpos = scaled(bpos, opts.Sigrels[len(opts.Ctypes)+k])
		ct := b.ctype()
		if existing, ok := positions[ct]; ok {
			positions[ct] = consolidate(existing, bpos)
			continue
		}
		positions[ct] = bpos
		order = append(order, ct)
		logger.Debug("basket positions kept separate", slog.String("basket", b.Name))
	}

	var out qdf.Frame
	for _, ct := range order {
		out = append(out, positions[ct].Long(ct+"_"+posname)...)
	}
	out = qdf.Reduce(out, qdf.Filter{Start: opts.Start, End: opts.End})
	return out, nil
}

func containsXcat(f qdf.Frame, xcat string) bool {
	for _, o := range f {
		if o.Xcat == xcat {
			return true
		}
	}
	return false
}

// volTarget scales unit signals by 100·CsVtarg/vol, where vol is the
// historic volatility of the cross-section's composite unit return.
func volTarget(dfx qdf.Frame, unit *qdf.Wide, contractReturns []string, opts TargetOptions) (*qdf.Wide, error) {
	rets, err := CsUnitReturns(dfx, contractReturns, opts.Sigrels[:len(contractReturns)], opts.Ret)
	if err != nil {
		return nil, err
	}
	vo := panel.DefaultVolOptions(opts.Ret)
	vo.Cids = opts.Cids
	vo.LbackPeriods = opts.LbackPeriods
	vo.LbackMeth = opts.LbackMeth
	vo.HalfLife = opts.HalfLife
	vo.Start = opts.Start
	vo.End = opts.End
	vol, err := panel.HistoricVol(rets, vo)
	if err != nil {
		return nil, err
	}
	vw := qdf.Pivot(vol, opts.Ret+vo.Postfix, qdf.MetricValue).Reindex(unit.Dates).Select(unit.Columns)
	out := unit.Clone()
	for i := range out.Values {
		for j, v := range out.Values[i] {
			sd := vw.Values[i][j]
			if sd > 0 {
				out.Values[i][j] = v * 100 * opts.CsVtarg / sd
			} else {
				out.Values[i][j] = math.NaN()
			}
		}
	}
	return out.DropEmptyRows(), nil
}

func scaled(w *qdf.Wide, s float64) *qdf.Wide {
	out := w.Clone()
	for _, row := range out.Values {
		for j := range row {
			row[j] *= s
		}
	}
	return out
}

// basketPositions multiplies the unit signal of each constituent's cid by
// the constituent's basket weight.
func basketPositions(unit *qdf.Wide, b BasketPositions) (*qdf.Wide, error) {
	if len(b.Contracts) == 0 {
		return nil, apperrors.Validationf("basket %s has no contracts", b.Name)
	}
	cids := make([]string, len(b.Contracts))
	for i, c := range b.Contracts {
		cid, _, err := qdf.SplitTicker(c)
		if err != nil {
			return nil, err
		}
		cids[i] = cid
	}
	out := unit.Select(cids)

	if b.Weights == nil {
		for _, row := range out.Values {
			for j := range row {
				row[j] /= float64(len(cids))
			}
		}
		return out, nil
	}

	ww := qdf.PivotTickers(b.Weights, qdf.MetricValue)
	for j, c := range b.Contracts {
		col := -1
		for k, t := range ww.Columns {
			if strings.HasPrefix(t, c+"_") && strings.HasSuffix(t, "_WGTS") {
				col = k
				break
			}
		}
		if col < 0 {
			return nil, apperrors.Validationf("no weights for contract %s of basket %s", c, b.Name)
		}
		weights := qdf.NewWide(ww.Dates, []string{c})
		weights.SetCol(0, ww.Col(col))
		wcol := weights.Reindex(out.Dates).Col(0)
		for i := range out.Values {
			out.Values[i][j] *= wcol[i]
		}
	}
	return out, nil
}

// consolidate adds basket positions into panel positions of the same
// contract type; a missing side counts as zero when the other is present.
func consolidate(pos, basket *qdf.Wide) *qdf.Wide {
	dates := unionDates(pos.Dates, basket.Dates)
	cols := append([]string(nil), pos.Columns...)
	for _, c := range basket.Columns {
		if pos.ColumnIndex(c) < 0 {
			cols = append(cols, c)
		}
	}
	a := pos.Select(cols).Reindex(dates)
	b := basket.Select(cols).Reindex(dates)
	for i := range a.Values {
		for j, v := range a.Values[i] {
			w := b.Values[i][j]
			switch {
			case math.IsNaN(w):
			case math.IsNaN(v):
				a.Values[i][j] = w
			default:
				a.Values[i][j] = v + w
			}
		}
	}
	return a
}
