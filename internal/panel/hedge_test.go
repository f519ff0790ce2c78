package panel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/qdf"
)

func TestHedgeRatio(t *testing.T) {
	n := 20
	usd := make([]float64, n)
	aud := make([]float64, n)
	cad := make([]float64, n)
	for i := range usd {
		usd[i] = float64(i%5) + 0.1*float64(i)
		aud[i] = 1 + 2*usd[i]
		cad[i] = -0.5 * usd[i]
	}
	f := frameFromColumns("EQXR", start2020, map[string][]float64{"USD": usd, "AUD": aud, "CAD": cad})

	opts := DefaultHedgeOptions("EQXR", "USD_EQXR")
	opts.Refreq = qdf.Weekly
	opts.MinObs = 5
	out, est, err := HedgeRatio(f, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"AUD", "CAD"}, out.Cids())
	assert.Equal(t, []string{"EQXR_HR"}, out.Xcats())

	// Unestimated rows are dropped from the frame; align to the input dates.
	days := f.Dates()
	hrWide := qdf.Pivot(out, "EQXR_HR", qdf.MetricValue).Reindex(days)
	hr := hrWide.Column("AUD")
	require.Len(t, hr, n)
	first, _ := out.DateRange()
	assert.Equal(t, days[8], first)
	// First estimate at the end of the second week (row 7), applied from row 8.
	for i := 0; i < 8; i++ {
		assert.True(t, math.IsNaN(hr[i]), "row %d", i)
	}
	for i := 8; i < n; i++ {
		assert.InDelta(t, 2, hr[i], 1e-9, "row %d", i)
	}
	assert.InDelta(t, -0.5, hrWide.Column("CAD")[n-1], 1e-9)

	require.NotEmpty(t, est)
	assert.Equal(t, "AUD", est[0].Cid)
	assert.InDelta(t, 1, est[0].Intercept, 1e-9)
	assert.Equal(t, 8, est[0].Obs)
}

func TestHedgeRatio_Validation(t *testing.T) {
	f := frameFromColumns("EQXR", start2020, map[string][]float64{"USD": seq(1, 30), "AUD": seq(30, 1)})

	tests := []struct {
		name   string
		mutate func(o *HedgeOptions)
	}{
		{"bad hedge ticker", func(o *HedgeOptions) { o.HedgeReturn = "USDEQXR" }},
		{"missing hedge series", func(o *HedgeOptions) { o.HedgeReturn = "JPY_EQXR" }},
		{"daily refreq", func(o *HedgeOptions) { o.Refreq = qdf.Daily }},
		{"min obs", func(o *HedgeOptions) { o.MinObs = 1 }},
		{"unknown xcat", func(o *HedgeOptions) { o.Xcat = "FXXR" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultHedgeOptions("EQXR", "USD_EQXR")
			tt.mutate(&opts)
			_, _, err := HedgeRatio(f, opts)
			assert.Error(t, err)
		})
	}
}
