// Package pnl turns signals into contract signals, notional positions and
// approximate PnL series in USD.
//
// Contracts are identified as <cid>_<ctype>. A strategy named sname writes
// contract signals as <cid>_<ctype>_<sname>_CSIG and positions as
// <cid>_<ctype>_<sname>_<pname>.
package pnl

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// GlobalCid is the cross-section of strategy-level series.
const GlobalCid = "GLB"

// ContractSignalOptions configures ContractSignals.
type ContractSignalOptions struct {
	// Sig is the signal category, one series per cross-section.
	Sig     string
	Cids    []string
	Ctypes  []string
	Cscales []float64
	// Csigns are coerced to +1 or -1.
	Csigns []float64
	// Hbasket lists hedge contracts <cid>_<ctype>; Hscales weights them.
	Hbasket []string
	Hscales []float64
	// Hratios is the category of hedge ratios per cross-section.
	Hratios   string
	Start     time.Time
	End       time.Time
	Blacklist qdf.Blacklist
	Sname     string

	Logger *slog.Logger
}

// ContractSignalXcat returns the category of a contract signal for ctype.
func ContractSignalXcat(ctype, sname string) string {
	if sname == "" {
		return ctype + "_CSIG"
	}
	return ctype + "_" + sname + "_CSIG"
}

func (o ContractSignalOptions) validate() error {
	if o.Sig == "" {
		return apperrors.NewAppValidationError("signal category is required")
	}
	if len(o.Cids) == 0 {
		return apperrors.NewAppValidationError("cids must not be empty")
	}
	if len(o.Ctypes) == 0 && len(o.Hbasket) == 0 {
		return apperrors.NewAppValidationError("contract types or a hedge basket are required")
	}
	if o.Cscales != nil && len(o.Cscales) != len(o.Ctypes) {
		return apperrors.Validationf("got %d scales for %d contract types", len(o.Cscales), len(o.Ctypes))
	}
	if o.Csigns != nil && len(o.Csigns) != len(o.Ctypes) {
		return apperrors.Validationf("got %d signs for %d contract types", len(o.Csigns), len(o.Ctypes))
	}
	if len(o.Hbasket) > 0 {
		if o.Hratios == "" {
			return apperrors.NewAppValidationError("hedge ratios category is required with a hedge basket")
		}
		if len(o.Hscales) != len(o.Hbasket) {
			return apperrors.Validationf("got %d hedge scales for %d hedge contracts", len(o.Hscales), len(o.Hbasket))
		}
		for _, h := range o.Hbasket {
			if _, _, err := qdf.SplitTicker(h); err != nil {
				return fmt.Errorf("hedge contract: %w", err)
			}
		}
	}
	return nil
}

// ContractSignals scales the cross-section signal into one signal per
// contract type and adds the signals of a hedge basket. The hedge contract
// j receives Σ sig·hr·hscale_j over all cross-sections. Hedge signals for a
// contract that also carries a direct signal are summed into it.
func ContractSignals(f qdf.Frame, opts ContractSignalOptions) (qdf.Frame, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "contract_signals"))

	xcats := []string{opts.Sig}
	if opts.Hratios != "" {
		xcats = append(xcats, opts.Hratios)
	}
	dfx := qdf.Reduce(f, qdf.Filter{
		Cids:      opts.Cids,
		Xcats:     xcats,
		Start:     opts.Start,
		End:       opts.End,
		Blacklist: opts.Blacklist,
	})
	sig := qdf.Pivot(dfx, opts.Sig, qdf.MetricValue)
	if sig.Cols() == 0 {
		return nil, apperrors.Validationf("signal category %s not in frame", opts.Sig)
	}
	if absent := missing(opts.Cids, sig.Columns); len(absent) > 0 {
		logger.Warn("cross-sections without signal", slog.Any("cids", absent))
	}

	// Keyed by contract ticker.
	signals := make(map[string]*qdf.Wide)
	var order []string
	add := func(contract string, w *qdf.Wide) {
		if prev, ok := signals[contract]; ok {
			signals[contract] = sumAligned(prev, w)
			return
		}
		signals[contract] = w
		order = append(order, contract)
	}

	for k, ct := range opts.Ctypes {
		scale, sign := 1.0, 1.0
		if opts.Cscales != nil {
			scale = opts.Cscales[k]
		}
		if opts.Csigns != nil && opts.Csigns[k] < 0 {
			sign = -1
		}
		for j, cid := range sig.Columns {
			col := sig.Col(j)
			for i := range col {
				col[i] *= scale * sign
			}
			w := qdf.NewWide(sig.Dates, []string{cid})
			w.SetCol(0, col)
			add(qdf.Ticker(cid, ct), w)
		}
	}

	if len(opts.Hbasket) > 0 {
		hr := qdf.Pivot(dfx, opts.Hratios, qdf.MetricValue).Reindex(sig.Dates).Select(sig.Columns)
		hedge := hedgeSignal(sig, hr)
		for k, contract := range opts.Hbasket {
			cid, _, _ := qdf.SplitTicker(contract)
			col := make([]float64, len(hedge))
			for i, v := range hedge {
				col[i] = v * opts.Hscales[k]
			}
			w := qdf.NewWide(sig.Dates, []string{cid})
			w.SetCol(0, col)
			add(contract, w)
		}
	}

	var out qdf.Frame
	for _, contract := range order {
		_, ct, _ := qdf.SplitTicker(contract)
		out = append(out, signals[contract].Long(ContractSignalXcat(ct, opts.Sname))...)
	}
	out.Sort()
	return out, nil
}

// hedgeSignal sums sig·hr across cross-sections per date; NaN products are
// skipped and a date without any product is NaN.
func hedgeSignal(sig, hr *qdf.Wide) []float64 {
	out := make([]float64, sig.Rows())
	for i := range sig.Values {
		sum, n := 0.0, 0
		for j, s := range sig.Values[i] {
			p := s * hr.Values[i][j]
			if math.IsNaN(p) {
				continue
			}
			sum += p
			n++
		}
		if n == 0 {
			sum = math.NaN()
		}
		out[i] = sum
	}
	return out
}

// sumAligned adds two single-column matrices on the same dates; a missing
// side counts as zero.
func sumAligned(a, b *qdf.Wide) *qdf.Wide {
	out := a.Clone()
	for i := range out.Values {
		x, y := out.Values[i][0], b.Values[i][0]
		switch {
		case math.IsNaN(y):
		case math.IsNaN(x):
			out.Values[i][0] = y
		default:
			out.Values[i][0] = x + y
		}
	}
	return out
}

func missing(requested, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[a] = true
	}
	var out []string
	for _, r := range requested {
		if !have[r] {
			out = append(out, r)
		}
	}
	return out
}
