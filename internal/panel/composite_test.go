package panel

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/qdf"
	"macrosynergy/internal/shared/testutil"
)

func compositeFrame() qdf.Frame {
	nan := math.NaN()
	return qdf.Concat(
		frameFromColumns("XR", start2020, map[string][]float64{"AUD": {1, 1, 1}, "CAD": {nan, 2, 2}}),
		frameFromColumns("CRY", start2020, map[string][]float64{"AUD": {2, 2, 2}, "CAD": {4, 4, 4}}),
		frameFromColumns("INFL", start2020, map[string][]float64{"AUD": {3, 3, 3}, "CAD": {6, 6, nan}}),
	)
}

func TestLinearComposite(t *testing.T) {
	xcats := []string{"XR", "CRY", "INFL"}

	tests := []struct {
		name     string
		opts     CompositeOptions
		wantAUD  []float64
		wantCAD  []float64
		wantWarn bool
	}{
		{
			name:    "equal weights",
			opts:    CompositeOptions{Xcats: xcats},
			wantAUD: []float64{2, 2, 2},
			wantCAD: []float64{5, 4, 3},
		},
		{
			name:     "weights rescaled",
			opts:     CompositeOptions{Xcats: xcats, Weights: []float64{1, 2, 3}},
			wantAUD:  []float64{14.0 / 6, 14.0 / 6, 14.0 / 6},
			wantCAD:  []float64{(8 + 18) / 5.0, (2 + 8 + 18) / 6.0, (2 + 8) / 3.0},
			wantWarn: true,
		},
		{
			name:    "negative sign",
			opts:    CompositeOptions{Xcats: xcats, Signs: []float64{-1, 1, 1}},
			wantAUD: []float64{4.0 / 3, 4.0 / 3, 4.0 / 3},
			wantCAD: []float64{5, 8.0 / 3, 1},
		},
		{
			name:     "signs coerced",
			opts:     CompositeOptions{Xcats: xcats, Signs: []float64{-3, 0.5, 2}},
			wantAUD:  []float64{4.0 / 3, 4.0 / 3, 4.0 / 3},
			wantCAD:  []float64{5, 8.0 / 3, 1},
			wantWarn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			tt.opts.Logger = logger

			out, err := LinearComposite(compositeFrame(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, []string{"NEW"}, out.Xcats())
			testutil.AssertFloatsNear(t, tt.wantAUD, column(out, "NEW", "AUD"), 1e-12)
			testutil.AssertFloatsNear(t, tt.wantCAD, column(out, "NEW", "CAD"), 1e-12)
			assert.Equal(t, tt.wantWarn, len(logs.GetRecordsByLevel(slog.LevelWarn)) > 0)
		})
	}
}

func TestLinearComposite_CompleteXcats(t *testing.T) {
	out, err := LinearComposite(compositeFrame(), CompositeOptions{
		Xcats:         []string{"XR", "CRY", "INFL"},
		CompleteXcats: true,
		NewXcat:       "COMP",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AUD_COMP", "CAD_COMP"}, out.Tickers())
	cad := qdf.Reduce(out, qdf.Filter{Cids: []string{"CAD"}})
	require.Len(t, cad, 1)
	assert.InDelta(t, 4, cad[0].Value, 1e-12)
}

func TestLinearComposite_Invalid(t *testing.T) {
	f := compositeFrame()
	_, err := LinearComposite(f, CompositeOptions{})
	assert.Error(t, err)
	_, err = LinearComposite(f, CompositeOptions{Xcats: []string{"XR"}, Weights: []float64{1, 2}})
	assert.Error(t, err)
	_, err = LinearComposite(f, CompositeOptions{Xcats: []string{"XR", "CRY"}, Signs: []float64{1, 0}})
	assert.Error(t, err)
	_, err = LinearComposite(f, CompositeOptions{Xcats: []string{"XR"}, Weights: []float64{-1}})
	assert.Error(t, err)
}
