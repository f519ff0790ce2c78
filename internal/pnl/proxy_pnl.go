package pnl

import (
	"log/slog"
	"math"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// ProxyPnLOptions configures ProxyPnL. Cost and size fields are category
// postfixes: contract c reads its normal trading cost from
// <c>_<TcostN>. Empty postfixes disable the corresponding adjustment.
type ProxyPnLOptions struct {
	// Spos is <sname>_<pname>; positions are <contid>_<spos>.
	Spos    string
	Contids []string
	// TcostN and TcostL are full bid-offer spreads in % of notional for
	// normal and large trades.
	TcostN string
	TcostL string
	// RcostN and RcostL are roll charges in % of notional.
	RcostN string
	RcostL string
	// SizeN and SizeL are normal and large trade sizes in USD million.
	SizeN string
	SizeL string
	// RollFreqs maps contract types to roll frequencies; monthly otherwise.
	RollFreqs map[string]qdf.Freq
	Rstring   string
	Start     time.Time
	End       time.Time
	Blacklist qdf.Blacklist

	Logger *slog.Logger
}

// DefaultProxyPnLOptions returns options without costs.
func DefaultProxyPnLOptions(spos string, contids []string) ProxyPnLOptions {
	return ProxyPnLOptions{Spos: spos, Contids: contids, Rstring: "XR"}
}

func (o ProxyPnLOptions) validate() error {
	if o.Spos == "" {
		return apperrors.NewAppValidationError("strategy position name is required")
	}
	if err := validateContids(o.Contids); err != nil {
		return err
	}
	if o.Rstring == "" {
		return apperrors.NewAppValidationError("return string is required")
	}
	if (o.TcostL != "" || o.RcostL != "") && (o.SizeN == "" || o.SizeL == "") {
		return apperrors.NewAppValidationError("large-size costs require normal and large sizes")
	}
	for ct, fr := range o.RollFreqs {
		if _, err := qdf.ParseFreq(string(fr)); err != nil {
			return apperrors.Validationf("roll frequency for %s: %v", ct, err)
		}
	}
	return nil
}

// costSchedule holds per-contract cost inputs on the PnL dates.
type costSchedule struct {
	normal, large *qdf.Wide
}

// rate returns the cost in % of notional for a trade of size in USD
// million: the normal cost up to the normal size, then linear in size with
// the slope set by the large cost at the large size.
func (c costSchedule) rate(i, j int, size float64, sizes *costSchedule) float64 {
	if c.normal == nil {
		return 0
	}
	tn := c.normal.Values[i][j]
	if math.IsNaN(tn) {
		return 0
	}
	if c.large == nil || sizes == nil {
		return tn
	}
	tl := c.large.Values[i][j]
	sn, sl := sizes.normal.Values[i][j], sizes.large.Values[i][j]
	if math.IsNaN(tl) || math.IsNaN(sn) || math.IsNaN(sl) || sl <= sn || size <= sn {
		return tn
	}
	return tn + (tl-tn)*(size-sn)/(sl-sn)
}

// ProxyPnL approximates the daily PnL of a strategy in USD million from
// its notional positions and contract returns in %. Positions earn the
// return of the following day. Trades pay half the bid-offer spread on the
// traded notional; open positions pay the roll charge at the end of every
// roll period. Output is GLB <spos>_PNL (net), <spos>_COST and <spos>_PNLX
// (gross).
func ProxyPnL(f qdf.Frame, opts ProxyPnLOptions) (qdf.Frame, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "proxy_pnl"))

	pos, err := contractWide(f, opts.Contids, "_"+opts.Spos, opts.Start, opts.End, opts.Blacklist)
	if err != nil {
		return nil, err
	}
	ret, err := contractWide(f, opts.Contids, opts.Rstring, opts.Start, opts.End, opts.Blacklist)
	if err != nil {
		return nil, err
	}
	aligned := alignDates(pos, ret)
	pos, ret = aligned[0].ForwardFill(0), aligned[1]
	dates := pos.Dates

	load := func(postfix string) (*qdf.Wide, error) {
		if postfix == "" {
			return nil, nil
		}
		w, err := contractWide(f, opts.Contids, "_"+postfix, time.Time{}, opts.End, opts.Blacklist)
		if err != nil {
			return nil, err
		}
		// Cost data are sparse; the latest value applies.
		merged := alignDates(w, pos)[0].ForwardFill(0)
		return merged.Reindex(dates), nil
	}
	var tcost, rcost costSchedule
	var sizes *costSchedule
	for _, spec := range []struct {
		postfix string
		dst     **qdf.Wide
	}{
		{opts.TcostN, &tcost.normal},
		{opts.TcostL, &tcost.large},
		{opts.RcostN, &rcost.normal},
		{opts.RcostL, &rcost.large},
	} {
		if *spec.dst, err = load(spec.postfix); err != nil {
			return nil, err
		}
	}
	if opts.SizeN != "" && opts.SizeL != "" {
		sizes = &costSchedule{}
		if sizes.normal, err = load(opts.SizeN); err != nil {
			return nil, err
		}
		if sizes.large, err = load(opts.SizeL); err != nil {
			return nil, err
		}
	}

	rolls := make([][]bool, len(opts.Contids))
	for j, contid := range opts.Contids {
		_, ct, _ := qdf.SplitTicker(contid)
		fr, ok := opts.RollFreqs[ct]
		if !ok {
			fr = qdf.Monthly
		}
		fr, _ = qdf.ParseFreq(string(fr))
		rolls[j] = rollDates(dates, fr)
	}

	out := qdf.NewWide(dates, []string{"PNLX", "COST", "PNL"})
	for i := 1; i < len(dates); i++ {
		gross, cost, active := 0.0, 0.0, false
		for j := range opts.Contids {
			prev := pos.Values[i-1][j]
			if math.IsNaN(prev) {
				prev = 0
			} else {
				active = true
			}
			if r := ret.Values[i][j]; !math.IsNaN(r) {
				gross += prev * r / 100
			}
			cur := pos.Values[i][j]
			if math.IsNaN(cur) {
				cur = 0
			} else {
				active = true
			}
			if trade := math.Abs(cur - prev); trade > 0 {
				cost += trade * tcost.rate(i, j, trade, sizes) / 2 / 100
			}
			if rolls[j][i] && cur != 0 {
				size := math.Abs(cur)
				cost += size * rcost.rate(i, j, size, sizes) / 100
			}
		}
		if !active {
			continue
		}
		out.Values[i][0] = gross
		out.Values[i][1] = cost
		out.Values[i][2] = gross - cost
	}

	var res qdf.Frame
	for j, name := range out.Columns {
		single := qdf.NewWide(dates, []string{GlobalCid})
		single.SetCol(0, out.Col(j))
		res = append(res, single.Long(opts.Spos+"_"+name)...)
	}
	if len(res) == 0 {
		logger.Warn("no positions to evaluate", slog.String("spos", opts.Spos),
			slog.String("contracts", strings.Join(opts.Contids, ",")))
	}
	res.Sort()
	return res, nil
}

// rollDates marks period ends; the last date only counts when the next
// business day opens a new period.
func rollDates(dates []time.Time, freq qdf.Freq) []bool {
	mask := qdf.EndOfPeriodMask(dates, freq)
	if n := len(dates); n > 0 {
		last := dates[n-1]
		next := qdf.RollForward(last.AddDate(0, 0, 1))
		if qdf.PeriodKey(last, freq) == qdf.PeriodKey(next, freq) {
			mask[n-1] = false
		}
	}
	return mask
}
