package panel

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Changes that can replace the explanatory values.
const (
	ChangeDiff = "diff"
	ChangePch  = "pch"
)

// CategoryRelationsOptions configures NewCategoryRelations. Xcats holds the
// explanatory category first and the dependent category second.
type CategoryRelationsOptions struct {
	Xcats     []string
	Cids      []string
	Metric    string
	Start     time.Time
	End       time.Time
	Blacklist qdf.Blacklist
	// Years groups observations into buckets of that many calendar years
	// instead of Freq periods. Lag and Fwin do not apply to buckets.
	Years int
	// Freq is W, M, Q or A.
	Freq qdf.Freq
	// Lag delays the explanatory category by that many periods.
	Lag int
	// Fwin averages the dependent category over that many periods forward.
	Fwin     int
	XcatAggs []string
	// Changes replaces the explanatory values by their difference or
	// percentage change over NPeriods observations.
	Changes  string
	NPeriods int
	// XcatTrims drops period values whose absolute size exceeds the trim of
	// their category; 0 disables trimming.
	XcatTrims []float64

	Logger *slog.Logger
}

// DefaultCategoryRelationsOptions relates monthly means of expl and dep.
func DefaultCategoryRelationsOptions(expl, dep string) CategoryRelationsOptions {
	return CategoryRelationsOptions{
		Xcats:    []string{expl, dep},
		Metric:   qdf.MetricValue,
		Freq:     qdf.Monthly,
		Fwin:     1,
		XcatAggs: []string{qdf.AggMean, qdf.AggMean},
		NPeriods: 1,
	}
}

// CategoryPoint pairs the explanatory and dependent values of one
// cross-section and period.
type CategoryPoint struct {
	Cid      string
	RealDate time.Time
	// Period labels year buckets, e.g. 2010-2012, and is empty otherwise.
	Period string
	X      float64
	Y      float64
}

// CategoryRelations holds the paired observations of two categories over
// the cross-sections available for both.
type CategoryRelations struct {
	Xcats  [2]string
	Cids   []string
	Points []CategoryPoint
}

// RelationSummary is the Pearson correlation and the OLS fit of the
// dependent on the explanatory values.
type RelationSummary struct {
	Obs         int
	Correlation float64
	CorrPValue  float64
	Intercept   float64
	Slope       float64
	SlopeStdErr float64
	SlopePValue float64
	RSquared    float64
}

func (o CategoryRelationsOptions) logger() *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", "category_relations"))
}

func (o CategoryRelationsOptions) metric() string {
	if o.Metric == "" {
		return qdf.MetricValue
	}
	return o.Metric
}

func (o CategoryRelationsOptions) validate() (qdf.Freq, error) {
	if len(o.Xcats) != 2 {
		return "", apperrors.Validationf("exactly two categories are required, got %d", len(o.Xcats))
	}
	if len(o.XcatAggs) != 2 {
		return "", apperrors.Validationf("one aggregation per category is required, got %d", len(o.XcatAggs))
	}
	for _, agg := range o.XcatAggs {
		if !qdf.IsAgg(agg) {
			return "", apperrors.Validationf("unknown aggregation %q", agg)
		}
	}
	if !qdf.IsMetric(o.metric()) {
		return "", apperrors.Validationf("unknown metric %q", o.Metric)
	}
	var freq qdf.Freq
	switch {
	case o.Years < 0:
		return "", apperrors.Validationf("years must not be negative, got %d", o.Years)
	case o.Years == 0:
		var err error
		if freq, err = qdf.ParseFreq(string(o.Freq)); err != nil {
			return "", err
		}
		if freq == qdf.Daily {
			return "", apperrors.Validationf("freq must be W, M, Q or A, got %s", freq)
		}
	}
	if o.Lag < 0 {
		return "", apperrors.Validationf("lag must not be negative, got %d", o.Lag)
	}
	if o.Fwin < 1 {
		return "", apperrors.Validationf("fwin must be positive, got %d", o.Fwin)
	}
	switch o.Changes {
	case "", ChangeDiff, ChangePch:
	default:
		return "", apperrors.Validationf("changes must be %s or %s, got %q", ChangeDiff, ChangePch, o.Changes)
	}
	if o.Changes != "" && o.NPeriods < 1 {
		return "", apperrors.Validationf("n_periods must be positive with changes, got %d", o.NPeriods)
	}
	if len(o.XcatTrims) != 0 && len(o.XcatTrims) != 2 {
		return "", apperrors.Validationf("one trim per category is required, got %d", len(o.XcatTrims))
	}
	for _, t := range o.XcatTrims {
		if t < 0 || math.IsNaN(t) {
			return "", apperrors.Validationf("trims must not be negative, got %v", o.XcatTrims)
		}
	}
	return freq, nil
}

// SharedCids returns the requested cross-sections that every category
// covers, sorted, and for each category the requested ones it misses. No
// requested cids means every cross-section of f.
func SharedCids(f qdf.Frame, xcats, cids []string) ([]string, map[string][]string) {
	avail := make(map[string]map[string]bool, len(xcats))
	for _, x := range xcats {
		avail[x] = make(map[string]bool)
	}
	for _, o := range f {
		if m, ok := avail[o.Xcat]; ok {
			m[o.Cid] = true
		}
	}
	requested := f.Cids()
	if len(cids) > 0 {
		requested = slices.Clone(cids)
		slices.Sort(requested)
		requested = slices.Compact(requested)
	}
	misses := make(map[string][]string)
	var shared []string
	for _, c := range requested {
		ok := true
		for _, x := range xcats {
			if !avail[x][c] {
				misses[x] = append(misses[x], c)
				ok = false
			}
		}
		if ok {
			shared = append(shared, c)
		}
	}
	return shared, misses
}

func (o CategoryRelationsOptions) sharedCids(f qdf.Frame) ([]string, error) {
	shared, misses := SharedCids(f, o.Xcats, o.Cids)
	logger := o.logger()
	for _, x := range o.Xcats {
		if len(misses[x]) > 0 {
			logger.Info("category misses cross-sections",
				slog.String("xcat", x),
				slog.Any("cids", misses[x]))
		}
	}
	if len(shared) == 0 {
		return nil, apperrors.Validationf("no cross-section has both %s and %s", o.Xcats[0], o.Xcats[1])
	}
	return shared, nil
}

// CategoriesFrame aggregates both categories to common periods and pairs
// them by cross-section and period. Periods missing either value are left
// out. Points are ordered by cross-section, then date.
func CategoriesFrame(f qdf.Frame, opts CategoryRelationsOptions) ([]CategoryPoint, error) {
	freq, err := opts.validate()
	if err != nil {
		return nil, err
	}
	cids, err := opts.sharedCids(f)
	if err != nil {
		return nil, err
	}
	return categoriesFrame(f, opts, freq, cids)
}

func categoriesFrame(f qdf.Frame, opts CategoryRelationsOptions, freq qdf.Freq, cids []string) ([]CategoryPoint, error) {
	sub := qdf.Reduce(f, qdf.Filter{
		Cids:      cids,
		Xcats:     opts.Xcats,
		Start:     opts.Start,
		End:       opts.End,
		Blacklist: opts.Blacklist,
	})
	if len(sub) == 0 {
		return nil, apperrors.Validationf("no observations for %s and %s", opts.Xcats[0], opts.Xcats[1])
	}
	days := sub.Dates()

	var ends []int
	var labels []string
	if opts.Years > 0 {
		ends, labels = yearBuckets(days, opts.Years)
	}
	var wides [2]*qdf.Wide
	for k, xcat := range opts.Xcats {
		w := qdf.Pivot(sub, xcat, opts.metric()).Reindex(days).Select(cids)
		if opts.Years > 0 {
			w = aggregateRows(w, ends, opts.XcatAggs[k])
		} else {
			var err error
			if w, err = qdf.Resample(w, freq, opts.XcatAggs[k]); err != nil {
				return nil, err
			}
		}
		if len(opts.XcatTrims) == 2 {
			trimAbove(w, opts.XcatTrims[k])
		}
		wides[k] = w
	}

	lag, fwin := opts.Lag, opts.Fwin
	if opts.Years > 0 {
		lag, fwin = 0, 1
	}
	dates := wides[0].Dates
	var points []CategoryPoint
	for j, cid := range cids {
		x := shiftDown(wides[0].Col(j), lag)
		y := forwardMean(wides[1].Col(j), fwin)
		for i, d := range dates {
			if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
				continue
			}
			p := CategoryPoint{Cid: cid, RealDate: d, X: x[i], Y: y[i]}
			if labels != nil {
				p.Period = labels[i]
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// yearBuckets returns the last index of each bucket of years calendar years
// counted from the first date, with the bucket labels.
func yearBuckets(dates []time.Time, years int) ([]int, []string) {
	first := dates[0].Year()
	key := func(i int) int { return (dates[i].Year() - first) / years }
	var ends []int
	var labels []string
	for i := range dates {
		if i < len(dates)-1 && key(i) == key(i+1) {
			continue
		}
		from := first + key(i)*years
		label := fmt.Sprint(from)
		if years > 1 {
			label = fmt.Sprintf("%d-%d", from, from+years-1)
		}
		ends = append(ends, i)
		labels = append(labels, label)
	}
	return ends, labels
}

func aggregateRows(w *qdf.Wide, ends []int, agg string) *qdf.Wide {
	dates := make([]time.Time, len(ends))
	for k, i := range ends {
		dates[k] = w.Dates[i]
	}
	out := qdf.NewWide(dates, w.Columns)
	for j := range w.Columns {
		col := w.Col(j)
		from := 0
		for k, to := range ends {
			out.Values[k][j] = qdf.Aggregate(col[from:to+1], agg)
			from = to + 1
		}
	}
	return out
}

func trimAbove(w *qdf.Wide, trim float64) {
	if trim <= 0 {
		return
	}
	for _, row := range w.Values {
		for j, v := range row {
			if math.Abs(v) > trim {
				row[j] = math.NaN()
			}
		}
	}
}

func shiftDown(col []float64, n int) []float64 {
	out := nans(len(col))
	for i := n; i < len(col); i++ {
		out[i] = col[i-n]
	}
	return out
}

// forwardMean averages each value with the following win-1 values; any NaN
// in the window gives NaN.
func forwardMean(col []float64, win int) []float64 {
	if win == 1 {
		return col
	}
	out := nans(len(col))
	for i := 0; i+win <= len(col); i++ {
		sum := 0.0
		for _, v := range col[i : i+win] {
			sum += v
		}
		out[i] = sum / float64(win)
	}
	return out
}

// ApplyChanges replaces the explanatory value of each point by its
// difference or percentage change against the point n positions earlier
// in the same cross-section. Points must be grouped by cross-section and
// sorted by date; the first n points of every cross-section are dropped.
func ApplyChanges(points []CategoryPoint, method string, n int) ([]CategoryPoint, error) {
	if method != ChangeDiff && method != ChangePch {
		return nil, apperrors.Validationf("changes must be %s or %s, got %q", ChangeDiff, ChangePch, method)
	}
	if n < 1 {
		return nil, apperrors.Validationf("n_periods must be positive, got %d", n)
	}
	out := make([]CategoryPoint, 0, len(points))
	for from := 0; from < len(points); {
		to := from
		for to < len(points) && points[to].Cid == points[from].Cid {
			to++
		}
		for i := from + n; i < to; i++ {
			p := points[i]
			prev := points[i-n].X
			if method == ChangeDiff {
				p.X -= prev
			} else {
				p.X = p.X/prev - 1
			}
			if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
				continue
			}
			out = append(out, p)
		}
		from = to
	}
	return out, nil
}

// NewCategoryRelations builds the paired panel of two categories.
func NewCategoryRelations(f qdf.Frame, opts CategoryRelationsOptions) (*CategoryRelations, error) {
	freq, err := opts.validate()
	if err != nil {
		return nil, err
	}
	cids, err := opts.sharedCids(f)
	if err != nil {
		return nil, err
	}
	points, err := categoriesFrame(f, opts, freq, cids)
	if err != nil {
		return nil, err
	}
	if opts.Changes != "" {
		if points, err = ApplyChanges(points, opts.Changes, opts.NPeriods); err != nil {
			return nil, err
		}
	}
	if len(points) == 0 {
		return nil, apperrors.Validationf("no overlapping observations of %s and %s", opts.Xcats[0], opts.Xcats[1])
	}
	opts.logger().Debug("category relations built",
		slog.Int("cids", len(cids)),
		slog.Int("points", len(points)))
	return &CategoryRelations{
		Xcats:  [2]string{opts.Xcats[0], opts.Xcats[1]},
		Cids:   cids,
		Points: points,
	}, nil
}

// XY returns the explanatory and dependent values of all points.
func (cr *CategoryRelations) XY() ([]float64, []float64) {
	return pointValues(cr.Points)
}

// Stats summarises the pooled points.
func (cr *CategoryRelations) Stats() RelationSummary {
	return summarize(cr.Points)
}

// StatsByCid summarises the points of each cross-section separately.
func (cr *CategoryRelations) StatsByCid() map[string]RelationSummary {
	out := make(map[string]RelationSummary, len(cr.Cids))
	for from := 0; from < len(cr.Points); {
		to := from
		cid := cr.Points[from].Cid
		for to < len(cr.Points) && cr.Points[to].Cid == cid {
			to++
		}
		out[cid] = summarize(cr.Points[from:to])
		from = to
	}
	return out
}

func pointValues(points []CategoryPoint) ([]float64, []float64) {
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i], y[i] = p.X, p.Y
	}
	return x, y
}

// summarize needs three points for a residual degree of freedom; fewer
// leave every statistic NaN.
func summarize(points []CategoryPoint) RelationSummary {
	nan := math.NaN()
	s := RelationSummary{
		Obs:         len(points),
		Correlation: nan,
		CorrPValue:  nan,
		Intercept:   nan,
		Slope:       nan,
		SlopeStdErr: nan,
		SlopePValue: nan,
		RSquared:    nan,
	}
	if len(points) < 3 {
		return s
	}
	x, y := pointValues(points)
	mx := stat.Mean(x, nil)
	var sxx float64
	for _, v := range x {
		sxx += (v - mx) * (v - mx)
	}
	if sxx == 0 {
		return s
	}
	dof := float64(len(points) - 2)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}

	s.Intercept, s.Slope = stat.LinearRegression(x, y, nil, false)
	s.RSquared = stat.RSquared(x, y, nil, s.Intercept, s.Slope)
	var ssr float64
	for i := range x {
		r := y[i] - s.Intercept - s.Slope*x[i]
		ssr += r * r
	}
	s.SlopeStdErr = math.Sqrt(ssr / dof / sxx)
	if s.SlopeStdErr > 0 {
		s.SlopePValue = 2 * tdist.Survival(math.Abs(s.Slope/s.SlopeStdErr))
	} else {
		s.SlopePValue = 0
	}

	s.Correlation = stat.Correlation(x, y, nil)
	switch {
	case math.IsNaN(s.Correlation):
	case math.Abs(s.Correlation) >= 1:
		s.CorrPValue = 0
	default:
		t := s.Correlation * math.Sqrt(dof/(1-s.Correlation*s.Correlation))
		s.CorrPValue = 2 * tdist.Survival(math.Abs(t))
	}
	return s
}
