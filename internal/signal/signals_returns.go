package signal

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// SignalsReturnsOptions configures NewSignalsReturns. Freqs, AggSigs and
// Signs default to M, last and +1.
type SignalsReturnsOptions struct {
	Rets      []string
	Sigs      []string
	Signs     []float64
	Freqs     []qdf.Freq
	AggSigs   []string
	Cids      []string
	Start     time.Time
	End       time.Time
	Blacklist qdf.Blacklist
	// Slip lags the signals by that many observations before analysis.
	Slip int
	// Cosp keeps only periods where all cross-sections have observations.
	Cosp bool
}

// SignalsReturns analyses the relation between signals and the returns of
// the following period, pooled across cross-sections.
type SignalsReturns struct {
	rets    []string
	sigs    []string
	signs   map[string]float64
	freqs   []qdf.Freq
	aggSigs []string
	cosp    bool

	frame qdf.Frame
}

// NewSignalsReturns validates the options and prepares the reduced frame
// with slippage applied to the signals.
func NewSignalsReturns(f qdf.Frame, opts SignalsReturnsOptions) (*SignalsReturns, error) {
	if len(f) == 0 {
		return nil, apperrors.NewAppValidationError("frame is empty")
	}
	if len(opts.Rets) == 0 || len(opts.Sigs) == 0 {
		return nil, apperrors.NewAppValidationError("at least one return and one signal category are required")
	}
	available := make(map[string]bool)
	for _, x := range f.Xcats() {
		available[x] = true
	}
	for _, x := range append(slices.Clone(opts.Rets), opts.Sigs...) {
		if !available[x] {
			return nil, apperrors.Validationf("category %s not in frame", x)
		}
	}

	signs := make(map[string]float64, len(opts.Sigs))
	if len(opts.Signs) > len(opts.Sigs) {
		return nil, apperrors.Validationf("got %d signs for %d signals", len(opts.Signs), len(opts.Sigs))
	}
	for i, s := range opts.Sigs {
		signs[s] = 1
		if i < len(opts.Signs) {
			switch opts.Signs[i] {
			case 1, -1:
				signs[s] = opts.Signs[i]
			default:
				return nil, apperrors.Validationf("signs must be 1 or -1, got %v", opts.Signs[i])
			}
		}
	}

	freqs := opts.Freqs
	if len(freqs) == 0 {
		freqs = []qdf.Freq{qdf.Monthly}
	}
	for i, fr := range freqs {
		p, err := qdf.ParseFreq(string(fr))
		if err != nil {
			return nil, err
		}
		freqs[i] = p
	}
	aggs := opts.AggSigs
	if len(aggs) == 0 {
		aggs = []string{qdf.AggLast}
	}
	for _, a := range aggs {
		if !qdf.IsAgg(a) {
			return nil, apperrors.Validationf("unknown signal aggregation %q", a)
		}
	}

	xcats := append(slices.Clone(opts.Rets), opts.Sigs...)
	dfd := qdf.Reduce(f, qdf.Filter{
		Cids:      opts.Cids,
		Xcats:     xcats,
		Start:     opts.Start,
		End:       opts.End,
		Blacklist: opts.Blacklist,
	})
	if opts.Slip != 0 {
		var err error
		dfd, err = slipSignals(dfd, opts.Slip, opts.Sigs)
		if err != nil {
			return nil, err
		}
	}

	return &SignalsReturns{
		rets:    slices.Clone(opts.Rets),
		sigs:    slices.Clone(opts.Sigs),
		signs:   signs,
		freqs:   freqs,
		aggSigs: slices.Clone(aggs),
		cosp:    opts.Cosp,
		frame:   dfd,
	}, nil
}

// slipSignals lags every available signal ticker.
func slipSignals(f qdf.Frame, slip int, sigs []string) (qdf.Frame, error) {
	out := f
	for _, s := range sigs {
		var cids []string
		for _, o := range f {
			if o.Xcat == s && (len(cids) == 0 || cids[len(cids)-1] != o.Cid) {
				cids = append(cids, o.Cid)
			}
		}
		var err error
		if out, err = qdf.ApplySlip(out, slip, cids, []string{s}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Frame returns the reduced frame the statistics are computed on.
func (sr *SignalsReturns) Frame() qdf.Frame { return sr.frame }

// SingleRelationTable computes the statistics for one combination. Empty
// arguments select the first configured value.
func (sr *SignalsReturns) SingleRelationTable(ret, sig string, freq qdf.Freq, agg string) (RelationStats, error) {
	if ret == "" {
		ret = sr.rets[0]
	}
	if sig == "" {
		sig = sr.sigs[0]
	}
	if freq == "" {
		freq = sr.freqs[0]
	}
	if agg == "" {
		agg = sr.aggSigs[0]
	}
	if !slices.Contains(sr.rets, ret) {
		return RelationStats{}, apperrors.Validationf("return %s not configured", ret)
	}
	if !slices.Contains(sr.sigs, sig) {
		return RelationStats{}, apperrors.Validationf("signal %s not configured", sig)
	}
	if !qdf.IsAgg(agg) {
		return RelationStats{}, apperrors.Validationf("unknown signal aggregation %q", agg)
	}
	fr, err := qdf.ParseFreq(string(freq))
	if err != nil {
		return RelationStats{}, err
	}

	sigs, rets, err := sr.pairs(ret, sig, fr, agg)
	if err != nil {
		return RelationStats{}, err
	}
	out := relationStats(sigs, rets)
	out.Ret, out.Sig, out.Freq, out.AggSig = ret, sig, string(fr), agg
	return out, nil
}

// MultipleRelationsTable computes the statistics for every combination of
// the given returns, signals, frequencies and aggregations; nil arguments
// use all configured values.
func (sr *SignalsReturns) MultipleRelationsTable(rets, sigs []string, freqs []qdf.Freq, aggs []string) ([]RelationStats, error) {
	if rets == nil {
		rets = sr.rets
	}
	if sigs == nil {
		sigs = sr.sigs
	}
	if freqs == nil {
		freqs = sr.freqs
	}
	if aggs == nil {
		aggs = sr.aggSigs
	}
	if err := subset("returns", rets, sr.rets); err != nil {
		return nil, err
	}
	if err := subset("signals", sigs, sr.sigs); err != nil {
		return nil, err
	}
	if err := subset("aggregations", aggs, sr.aggSigs); err != nil {
		return nil, err
	}
	for _, f := range freqs {
		if !slices.Contains(sr.freqs, f) {
			return nil, apperrors.Validationf("frequency %s not configured", f)
		}
	}

	var out []RelationStats
	for _, r := range rets {
		for _, s := range sigs {
			for _, f := range freqs {
				for _, a := range aggs {
					row, err := sr.SingleRelationTable(r, s, f, a)
					if err != nil {
						return nil, err
					}
					out = append(out, row)
				}
			}
		}
	}
	return out, nil
}

func subset(what string, got, allowed []string) error {
	for _, g := range got {
		if !slices.Contains(allowed, g) {
			return apperrors.Validationf("%s %s not configured", what, g)
		}
	}
	return nil
}

// Table dimensions for SingleStatisticTable.
const (
	DimXcat    = "xcat"
	DimRet     = "ret"
	DimFreq    = "freq"
	DimAggSigs = "agg_sigs"
)

// StatTable is a two-dimensional view of one statistic.
type StatTable struct {
	Stat    string
	Rows    []string
	Columns []string
	Values  [][]float64
}

// SingleStatisticTable lays one statistic out over all configured
// combinations. Rows default to xcat and ret, columns to freq and agg_sigs;
// every dimension must appear exactly once across both.
func (sr *SignalsReturns) SingleStatisticTable(statName string, rows, columns []string) (*StatTable, error) {
	if !slices.Contains(Statistics, statName) {
		return nil, apperrors.Validationf("unknown statistic %q", statName)
	}
	if rows == nil {
		rows = []string{DimXcat, DimRet}
	}
	if columns == nil {
		columns = []string{DimFreq, DimAggSigs}
	}
	dims := append(slices.Clone(rows), columns...)
	all := []string{DimXcat, DimRet, DimFreq, DimAggSigs}
	if len(dims) != len(all) {
		return nil, apperrors.Validationf("rows and columns must cover %v exactly once", all)
	}
	for _, d := range all {
		if !slices.Contains(dims, d) {
			return nil, apperrors.Validationf("rows and columns must cover %v exactly once", all)
		}
	}

	results, err := sr.MultipleRelationsTable(nil, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	values := func(d string) []string {
		switch d {
		case DimXcat:
			return sr.sigs
		case DimRet:
			return sr.rets
		case DimFreq:
			out := make([]string, len(sr.freqs))
			for i, f := range sr.freqs {
				out[i] = string(f)
			}
			return out
		}
		return sr.aggSigs
	}
	labels := func(ds []string) []string {
		out := []string{""}
		for _, d := range ds {
			var next []string
			for _, prefix := range out {
				for _, v := range values(d) {
					if prefix == "" {
						next = append(next, v)
					} else {
						next = append(next, prefix+"/"+v)
					}
				}
			}
			out = next
		}
		return out
	}
	key := func(r RelationStats, ds []string) string {
		parts := make([]string, len(ds))
		for i, d := range ds {
			switch d {
			case DimXcat:
				parts[i] = r.Sig
			case DimRet:
				parts[i] = r.Ret
			case DimFreq:
				parts[i] = r.Freq
			default:
				parts[i] = r.AggSig
			}
		}
		return strings.Join(parts, "/")
	}

	t := &StatTable{Stat: statName, Rows: labels(rows), Columns: labels(columns)}
	rowPos := indexOf(t.Rows)
	colPos := indexOf(t.Columns)
	t.Values = make([][]float64, len(t.Rows))
	for i := range t.Values {
		t.Values[i] = make([]float64, len(t.Columns))
		for j := range t.Values[i] {
			t.Values[i][j] = math.NaN()
		}
	}
	for _, r := range results {
		v, _ := r.Stat(statName)
		t.Values[rowPos[key(r, rows)]][colPos[key(r, columns)]] = v
	}
	return t, nil
}

func indexOf(labels []string) map[string]int {
	out := make(map[string]int, len(labels))
	for i, l := range labels {
		out[l] = i
	}
	return out
}

// pairs returns signal values paired with the return of the following
// period, pooled over cross-sections.
func (sr *SignalsReturns) pairs(ret, sig string, freq qdf.Freq, agg string) ([]float64, []float64, error) {
	rw := qdf.Pivot(sr.frame, ret, qdf.MetricValue)
	sw := qdf.Pivot(sr.frame, sig, qdf.MetricValue)
	cids := intersect(rw.Columns, sw.Columns)
	if len(cids) == 0 {
		return nil, nil, apperrors.Validationf("no cross-section has both %s and %s", ret, sig)
	}
	dates := unionDates(rw.Dates, sw.Dates)
	rw, err := qdf.Resample(rw.Select(cids).Reindex(dates), freq, qdf.AggSum)
	if err != nil {
		return nil, nil, err
	}
	sw, err = qdf.Resample(sw.Select(cids).Reindex(dates), freq, agg)
	if err != nil {
		return nil, nil, err
	}
	// A sum over an all-missing period is not a zero return.
	if freq != qdf.Daily {
		mask, _ := qdf.Resample(qdf.Pivot(sr.frame, ret, qdf.MetricValue).Select(cids).Reindex(dates), freq, qdf.AggLast)
		for i := range rw.Values {
			for j := range rw.Values[i] {
				if math.IsNaN(mask.Values[i][j]) {
					rw.Values[i][j] = math.NaN()
				}
			}
		}
	}

	sign := sr.signs[sig]
	var sigs, rets []float64
	for k := 0; k+1 < rw.Rows(); k++ {
		row := make([][2]float64, 0, len(cids))
		complete := true
		for j := range cids {
			s, r := sw.Values[k][j], rw.Values[k+1][j]
			if math.IsNaN(s) || math.IsNaN(r) {
				complete = false
				continue
			}
			row = append(row, [2]float64{sign * s, r})
		}
		if sr.cosp && !complete {
			continue
		}
		for _, p := range row {
			sigs = append(sigs, p[0])
			rets = append(rets, p[1])
		}
	}
	if len(sigs) == 0 {
		return nil, nil, apperrors.Validationf("no overlapping observations for %s and %s at frequency %s", sig, ret, freq)
	}
	return sigs, rets, nil
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

// String renders a short description of the relation.
func (r RelationStats) String() string {
	return fmt.Sprintf("%s on %s (%s, %s): accuracy %.3f, pearson %.3f", r.Sig, r.Ret, r.Freq, r.AggSig, r.Accuracy, r.Pearson)
}
