package learning

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "macrosynergy/internal/errors"
)

// SignificanceSelector regresses the target on each feature separately with
// period fixed effects and keeps the features whose slope p-value is below
// Threshold.
type SignificanceSelector struct {
	Threshold float64

	pvalues  map[string]float64
	selected []string
}

// NewSignificanceSelector returns a selector keeping features significant at
// threshold.
func NewSignificanceSelector(threshold float64) *SignificanceSelector {
	return &SignificanceSelector{Threshold: threshold}
}

// Fit computes the p-value of every feature.
func (s *SignificanceSelector) Fit(d *Dataset) error {
	if s.Threshold <= 0 || s.Threshold >= 1 {
		return apperrors.Validationf("threshold must be in (0, 1), got %v", s.Threshold)
	}
	if d.Y == nil {
		return apperrors.NewAppValidationError("fitting requires a target")
	}
	y := demeanByDate(d.Index, d.Y)
	groups := len(dates(d.Index))

	s.pvalues = make(map[string]float64, len(d.Features))
	s.selected = nil
	for j, name := range d.Features {
		x := demeanByDate(d.Index, mat.Col(nil, j, d.X))
		p, err := slopePValue(x, y, d.Rows()-groups-1)
		if err != nil {
			return apperrors.Validationf("feature %s: %v", name, err)
		}
		s.pvalues[name] = p
		if p < s.Threshold {
			s.selected = append(s.selected, name)
		}
	}
	return nil
}

// PValues returns the fitted p-values by feature.
func (s *SignificanceSelector) PValues() map[string]float64 {
	out := make(map[string]float64, len(s.pvalues))
	for k, v := range s.pvalues {
		out[k] = v
	}
	return out
}

// Selected returns the significant features in dataset order.
func (s *SignificanceSelector) Selected() []string { return append([]string(nil), s.selected...) }

// Transform restricts d to the selected features.
func (s *SignificanceSelector) Transform(d *Dataset) (*Dataset, error) {
	if s.pvalues == nil {
		return nil, apperrors.NewAppValidationError("selector is not fitted")
	}
	return d.Columns(s.selected)
}

// demeanByDate subtracts each date's cross-sectional mean.
func demeanByDate(index []PanelKey, v []float64) []float64 {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for i, k := range index {
		sums[k.RealDate] += v[i]
		counts[k.RealDate]++
	}
	out := make([]float64, len(v))
	for i, k := range index {
		out[i] = v[i] - sums[k.RealDate]/float64(counts[k.RealDate])
	}
	return out
}

// slopePValue is the two-sided p-value of the no-intercept slope of y on x.
func slopePValue(x, y []float64, dof int) (float64, error) {
	if dof < 1 {
		return math.NaN(), apperrors.NewAppValidationError("not enough samples beyond the period effects")
	}
	sxx, sxy := 0.0, 0.0
	for i := range x {
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	if sxx == 0 {
		return 1, nil
	}
	beta := sxy / sxx
	sse := 0.0
	for i := range x {
		e := y[i] - beta*x[i]
		sse += e * e
	}
	se := math.Sqrt(sse / float64(dof) / sxx)
	if se == 0 {
		return 0, nil
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	return 2 * t.Survival(math.Abs(beta/se)), nil
}
