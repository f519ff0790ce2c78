// Package qdf holds the quantamental data frame model: long-format
// observations keyed by cross-section, category and date, and the wide
// date-by-column matrices most computations run on.
package qdf

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
)

// Metrics published for every JPMaQS ticker.
const (
	MetricValue   = "value"
	MetricGrading = "grading"
	MetricEopLag  = "eop_lag"
	MetricMopLag  = "mop_lag"
)

// Metrics lists the known metrics in download order.
var Metrics = []string{MetricValue, MetricGrading, MetricEopLag, MetricMopLag}

// Observation is one row of a quantamental data frame.
type Observation struct {
	Cid      string
	Xcat     string
	RealDate time.Time
	Value    float64
	Grading  float64
	EopLag   float64
	MopLag   float64
}

// NewObservation returns a value-only observation with the other metrics unset.
func NewObservation(cid, xcat string, date time.Time, value float64) Observation {
	return Observation{
		Cid:      cid,
		Xcat:     xcat,
		RealDate: date,
		Value:    value,
		Grading:  math.NaN(),
		EopLag:   math.NaN(),
		MopLag:   math.NaN(),
	}
}

// Ticker returns "<cid>_<xcat>".
func (o Observation) Ticker() string {
	return Ticker(o.Cid, o.Xcat)
}

// Metric returns the named metric, NaN for unknown names.
func (o Observation) Metric(metric string) float64 {
	switch metric {
	case MetricValue:
		return o.Value
	case MetricGrading:
		return o.Grading
	case MetricEopLag:
		return o.EopLag
	case MetricMopLag:
		return o.MopLag
	}
	return math.NaN()
}

// SetMetric assigns the named metric.
func (o *Observation) SetMetric(metric string, v float64) error {
	switch metric {
	case MetricValue:
		o.Value = v
	case MetricGrading:
		o.Grading = v
	case MetricEopLag:
		o.EopLag = v
	case MetricMopLag:
		o.MopLag = v
	default:
		return apperrors.Validationf("unknown metric %q", metric)
	}
	return nil
}

func (o *Observation) copyMetrics(src Observation) {
	o.Value, o.Grading, o.EopLag, o.MopLag = src.Value, src.Grading, src.EopLag, src.MopLag
}

func (o *Observation) clearMetrics() {
	nan := math.NaN()
	o.Value, o.Grading, o.EopLag, o.MopLag = nan, nan, nan, nan
}

// IsMetric reports whether name is a known metric.
func IsMetric(name string) bool {
	return slices.Contains(Metrics, name)
}

// Ticker joins a cross-section and a category.
func Ticker(cid, xcat string) string {
	return cid + "_" + xcat
}

// SplitTicker splits at the first underscore. Categories may themselves
// contain underscores.
func SplitTicker(ticker string) (cid, xcat string, err error) {
	cid, xcat, ok := strings.Cut(ticker, "_")
	if !ok || cid == "" || xcat == "" {
		return "", "", apperrors.Validationf("invalid ticker %q", ticker)
	}
	return cid, xcat, nil
}

// Frame is a long-format quantamental data frame.
type Frame []Observation

// Clone returns a copy that shares no memory with f.
func (f Frame) Clone() Frame {
	return slices.Clone(f)
}

// Sort orders rows by cid, xcat and date.
func (f Frame) Sort() {
	sort.SliceStable(f, func(i, j int) bool {
		a, b := f[i], f[j]
		if a.Cid != b.Cid {
			return a.Cid < b.Cid
		}
		if a.Xcat != b.Xcat {
			return a.Xcat < b.Xcat
		}
		return a.RealDate.Before(b.RealDate)
	})
}

// Tickers returns the sorted unique tickers.
func (f Frame) Tickers() []string {
	return uniqueSorted(f, Observation.Ticker)
}

// Cids returns the sorted unique cross-sections.
func (f Frame) Cids() []string {
	return uniqueSorted(f, func(o Observation) string { return o.Cid })
}

// Xcats returns the sorted unique categories.
func (f Frame) Xcats() []string {
	return uniqueSorted(f, func(o Observation) string { return o.Xcat })
}

// Dates returns the sorted unique real dates.
func (f Frame) Dates() []time.Time {
	seen := make(map[time.Time]struct{}, len(f))
	out := make([]time.Time, 0)
	for _, o := range f {
		if _, ok := seen[o.RealDate]; !ok {
			seen[o.RealDate] = struct{}{}
			out = append(out, o.RealDate)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// DateRange returns the first and last real dates, zero times for an empty frame.
func (f Frame) DateRange() (time.Time, time.Time) {
	var lo, hi time.Time
	for i, o := range f {
		if i == 0 || o.RealDate.Before(lo) {
			lo = o.RealDate
		}
		if i == 0 || o.RealDate.After(hi) {
			hi = o.RealDate
		}
	}
	return lo, hi
}

// Validate checks the frame for empty keys and duplicate (ticker, date) rows.
func (f Frame) Validate() error {
	type key struct {
		ticker string
		date   time.Time
	}
	seen := make(map[key]struct{}, len(f))
	for i, o := range f {
		if o.Cid == "" || o.Xcat == "" {
			return apperrors.Validationf("row %d: empty cid or xcat", i)
		}
		if o.RealDate.IsZero() {
			return apperrors.Validationf("row %d: missing real_date for %s", i, o.Ticker())
		}
		k := key{o.Ticker(), o.RealDate}
		if _, dup := seen[k]; dup {
			return apperrors.Validationf("duplicate observation for %s on %s", k.ticker, FormatDate(o.RealDate))
		}
		seen[k] = struct{}{}
	}
	return nil
}

// HasTicker reports whether any row belongs to ticker.
func (f Frame) HasTicker(ticker string) bool {
	for _, o := range f {
		if o.Ticker() == ticker {
			return true
		}
	}
	return false
}

// DropNaNSeries removes tickers whose values are all NaN.
func DropNaNSeries(f Frame) Frame {
	valid := make(map[string]bool)
	for _, o := range f {
		if !math.IsNaN(o.Value) {
			valid[o.Ticker()] = true
		}
	}
	out := make(Frame, 0, len(f))
	for _, o := range f {
		if valid[o.Ticker()] {
			out = append(out, o)
		}
	}
	return out
}

// DropNaN removes rows with a NaN value.
func DropNaN(f Frame) Frame {
	out := make(Frame, 0, len(f))
	for _, o := range f {
		if !math.IsNaN(o.Value) {
			out = append(out, o)
		}
	}
	return out
}

// GroupByTicker splits the frame per ticker, each group sorted by date.
func GroupByTicker(f Frame) map[string]Frame {
	groups := make(map[string]Frame)
	for _, o := range f {
		t := o.Ticker()
		groups[t] = append(groups[t], o)
	}
	for _, g := range groups {
		g.Sort()
	}
	return groups
}

// Concat joins frames and sorts the result.
func Concat(frames ...Frame) Frame {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make(Frame, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	out.Sort()
	return out
}

func uniqueSorted(f Frame, key func(Observation) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, o := range f {
		k := key(o)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Period is an inclusive date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Blacklist maps keys of the form CID or CID_<n> to excluded periods.
type Blacklist map[string]Period

// BlacklistCid returns the cross-section a blacklist key refers to.
func BlacklistCid(key string) string {
	cid, _, _ := strings.Cut(key, "_")
	return cid
}

// Excludes reports whether (cid, t) falls in any blacklisted period.
func (b Blacklist) Excludes(cid string, t time.Time) bool {
	for k, p := range b {
		if BlacklistCid(k) == cid && p.Contains(t) {
			return true
		}
	}
	return false
}

// String renders a blacklist in a stable order.
func (b Blacklist) String() string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:[%s,%s]", k, FormatDate(b[k].Start), FormatDate(b[k].End))
	}
	return strings.Join(parts, " ")
}
