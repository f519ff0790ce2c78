package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/qdf"
	"macrosynergy/internal/simulate"
)

// selectorFrame holds XR = 2·CRY − GROWTH (+ noise) with INFL unrelated.
func selectorFrame(noise float64) qdf.Frame {
	sim := simulate.New(11)
	days := qdf.BusinessDays(qdf.Date(2020, 1, 1), qdf.Date(2020, 12, 31))
	var f qdf.Frame
	for _, cid := range []string{"AUD", "CAD", "GBP", "USD"} {
		n := len(days)
		cry := sim.AR(n, 0, 1, 0)
		growth := sim.AR(n, 0, 1, 0)
		infl := sim.AR(n, 0, 1, 0)
		eps := sim.AR(n, 0, 1, 0)
		for i, d := range days {
			xr := 0.5 + 2*cry[i] - growth[i] + noise*eps[i]
			f = append(f,
				qdf.NewObservation(cid, "CRY", d, cry[i]),
				qdf.NewObservation(cid, "GROWTH", d, growth[i]),
				qdf.NewObservation(cid, "INFL", d, infl[i]),
				qdf.NewObservation(cid, "XR", d, xr),
			)
		}
	}
	f.Sort()
	return f
}

func TestNewDataset(t *testing.T) {
	f := selectorFrame(0)
	// A missing feature drops the sample.
	f = f[1:]

	d, err := NewDataset(f, []string{"CRY", "GROWTH", "INFL"}, "XR", nil)
	require.NoError(t, err)

	days := len(qdf.BusinessDays(qdf.Date(2020, 1, 1), qdf.Date(2020, 12, 31)))
	assert.Equal(t, 4*days-1, d.Rows())
	assert.Equal(t, "AUD", d.Index[0].Cid)
	assert.Equal(t, qdf.Date(2020, 1, 2), d.Index[0].RealDate)
	assert.Len(t, d.Y, d.Rows())

	sub := d.Subset([]int{0, 1})
	assert.Equal(t, d.Y[:2], sub.Y)

	_, err = d.Columns([]string{"RIR"})
	assert.Error(t, err)

	_, err = NewDataset(f, nil, "XR", nil)
	assert.Error(t, err)
}

func TestLassoSelector(t *testing.T) {
	d, err := NewDataset(selectorFrame(0), []string{"CRY", "GROWTH", "INFL"}, "XR", nil)
	require.NoError(t, err)

	l := NewLassoSelector(0.01)
	require.NoError(t, l.Fit(d))
	assert.Equal(t, []string{"CRY", "GROWTH"}, l.Selected())

	coef, intercept := l.Coefficients()
	assert.InDelta(t, 2, coef[0], 0.05)
	assert.InDelta(t, -1, coef[1], 0.05)
	assert.InDelta(t, 0.5, intercept, 0.05)

	out, err := l.Transform(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"CRY", "GROWTH"}, out.Features)
	_, cols := out.X.Dims()
	assert.Equal(t, 2, cols)

	heavy := NewLassoSelector(100)
	require.NoError(t, heavy.Fit(d))
	assert.Empty(t, heavy.Selected())

	_, err = NewLassoSelector(1).Transform(d)
	assert.Error(t, err)
	assert.Error(t, NewLassoSelector(-1).Fit(d))
}

func TestSignificanceSelector(t *testing.T) {
	d, err := NewDataset(selectorFrame(1), []string{"CRY", "GROWTH", "INFL"}, "XR", nil)
	require.NoError(t, err)

	s := NewSignificanceSelector(0.001)
	require.NoError(t, s.Fit(d))
	assert.Equal(t, []string{"CRY", "GROWTH"}, s.Selected())

	p := s.PValues()
	assert.Less(t, p["CRY"], 1e-10)
	assert.Greater(t, p["INFL"], 0.001)

	out, err := s.Transform(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"CRY", "GROWTH"}, out.Features)

	assert.Error(t, NewSignificanceSelector(1.5).Fit(d))
}
