package learning

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "macrosynergy/internal/errors"
)

// Selector picks a subset of a dataset's features.
type Selector interface {
	Fit(d *Dataset) error
	Selected() []string
	Transform(d *Dataset) (*Dataset, error)
}

// LassoSelector keeps the features with non-zero coefficients in an L1
// penalised linear regression with intercept, minimising
// 1/(2n)·‖y − b0 − Xb‖² + Alpha·‖b‖₁.
type LassoSelector struct {
	Alpha   float64
	MaxIter int
	Tol     float64

	coef      []float64
	intercept float64
	selected  []string
}

// NewLassoSelector returns a selector with the usual convergence settings.
func NewLassoSelector(alpha float64) *LassoSelector {
	return &LassoSelector{Alpha: alpha, MaxIter: 1000, Tol: 1e-4}
}

// Fit estimates the coefficients by cyclic coordinate descent on centred data.
func (l *LassoSelector) Fit(d *Dataset) error {
	if l.Alpha < 0 {
		return apperrors.Validationf("alpha must be non-negative, got %v", l.Alpha)
	}
	if d.Y == nil || d.Rows() < 2 {
		return apperrors.NewAppValidationError("fitting requires a target and at least two samples")
	}
	n, p := d.X.Dims()
	maxIter := l.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	tol := l.Tol
	if tol <= 0 {
		tol = 1e-4
	}

	cols := make([][]float64, p)
	means := make([]float64, p)
	norms := make([]float64, p)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, d.X)
		means[j] = stat.Mean(col, nil)
		floats.AddConst(-means[j], col)
		cols[j] = col
		norms[j] = floats.Dot(col, col) / float64(n)
	}
	ymean := stat.Mean(d.Y, nil)
	resid := make([]float64, n)
	for i, v := range d.Y {
		resid[i] = v - ymean
	}

	beta := make([]float64, p)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta, maxBeta := 0.0, 0.0
		for j := 0; j < p; j++ {
			if norms[j] == 0 {
				continue
			}
			old := beta[j]
			if old != 0 {
				floats.AddScaled(resid, old, cols[j])
			}
			rho := floats.Dot(cols[j], resid) / float64(n)
			beta[j] = softThreshold(rho, l.Alpha) / norms[j]
			if beta[j] != 0 {
				floats.AddScaled(resid, -beta[j], cols[j])
			}
			maxDelta = math.Max(maxDelta, math.Abs(beta[j]-old))
			maxBeta = math.Max(maxBeta, math.Abs(beta[j]))
		}
		if maxBeta == 0 || maxDelta/maxBeta < tol {
			break
		}
	}

	l.coef = beta
	l.intercept = ymean - floats.Dot(means, beta)
	l.selected = l.selected[:0]
	for j, b := range beta {
		if b != 0 {
			l.selected = append(l.selected, d.Features[j])
		}
	}
	return nil
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	}
	return 0
}

// Coefficients returns the fitted slope coefficients and intercept.
func (l *LassoSelector) Coefficients() ([]float64, float64) {
	return append([]float64(nil), l.coef...), l.intercept
}

// Selected returns the features with non-zero coefficients.
func (l *LassoSelector) Selected() []string { return append([]string(nil), l.selected...) }

// Transform restricts d to the selected features.
func (l *LassoSelector) Transform(d *Dataset) (*Dataset, error) {
	if l.coef == nil {
		return nil, apperrors.NewAppValidationError("selector is not fitted")
	}
	return d.Columns(l.selected)
}
