package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/qdf"
	"macrosynergy/internal/shared/testutil"
)

func TestMakeBlacklist(t *testing.T) {
	nan := math.NaN()
	f := frameFromColumns("BLACK", start2020, map[string][]float64{
		"AUD": {0, 1, 1, 0, 0, 0, 0},
		"GBP": {1, 0, 1, 1, 0, 1, 1},
		"USD": {0, 0, 0, 0, 0, 1, nan},
		"CAD": {0, 0, 0, 0, 0, 0, 0},
	})
	days := qdf.BusinessDays(start2020, qdf.Date(2020, 1, 31))

	bl, err := MakeBlacklist(f, "BLACK", nil, time.Time{}, time.Time{})
	require.NoError(t, err)

	want := qdf.Blacklist{
		"AUD":   {Start: days[1], End: days[2]},
		"GBP_1": {Start: days[0], End: days[0]},
		"GBP_2": {Start: days[2], End: days[3]},
		"GBP_3": {Start: days[5], End: days[6]},
		"USD":   {Start: days[5], End: days[5]},
	}
	assert.Equal(t, want, bl)
}

func TestMakeBlacklist_Invalid(t *testing.T) {
	f := frameFromColumns("BLACK", start2020, map[string][]float64{"AUD": {0, 2}})
	_, err := MakeBlacklist(f, "BLACK", nil, time.Time{}, time.Time{})
	assert.Error(t, err)

	_, err = MakeBlacklist(f, "OTHER", nil, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestConvergeRow(t *testing.T) {
	tests := []struct {
		name string
		row  []float64
		max  float64
	}{
		{"single excess", []float64{0.7, 0.1, 0.1, 0.1}, 0.3},
		{"two in excess", []float64{0.4, 0.4, 0.05, 0.05, 0.1}, 0.25},
		{"with inactive", []float64{math.NaN(), 0.6, 0.2, 0.2}, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvergeRow(tt.row, tt.max)
			sum := 0.0
			for i, v := range got {
				if math.IsNaN(tt.row[i]) {
					assert.True(t, math.IsNaN(v))
					continue
				}
				assert.LessOrEqual(t, v, tt.max+convergeMargin)
				sum += v
			}
			assert.InDelta(t, 1, sum, 1e-9)
		})
	}
}

func TestMaxWeight(t *testing.T) {
	nan := math.NaN()
	w := qdf.NewWide(qdf.BusinessDays(start2020, qdf.Date(2020, 1, 3)), []string{"A", "B", "C"})
	w.Values[0] = []float64{0.5, 0.5, nan}
	w.Values[1] = []float64{0.6, 0.3, 0.1}
	w.Values[2] = []float64{nan, nan, nan}

	out, err := MaxWeight(w, 0.4)
	require.NoError(t, err)
	testutil.AssertFloatsNear(t, []float64{0.5, 0.5, nan}, out.Values[0], 1e-12)
	for _, v := range out.Values[1] {
		assert.LessOrEqual(t, v, 0.4+convergeMargin)
	}
	testutil.AssertFloatsNear(t, []float64{nan, nan, nan}, out.Values[2], 0)
	// input untouched
	assert.Equal(t, 0.6, w.Values[1][0])

	_, err = MaxWeight(w, 0)
	assert.Error(t, err)
	_, err = MaxWeight(w, 1.5)
	assert.Error(t, err)
}
