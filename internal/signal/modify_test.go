package signal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/shared/testutil"
)

func TestModifySignals(t *testing.T) {
	f := frameFromColumns("SIG", start2020, map[string][]float64{
		"AUD": {-2, 0, 3, 1, -4},
		"CAD": {1, 2, -1, 5, 2},
	})

	dig, err := ModifySignals(f, nil, "SIG", time.Time{}, time.Time{}, ScaleDig, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1, 1, -1}, column(dig, "SIG", "AUD"))

	prop, err := ModifySignals(f, nil, "SIG", time.Time{}, time.Time{}, ScaleProp, 2, 0)
	require.NoError(t, err)
	opts := panel.DefaultZnOptions("SIG")
	opts.MinObs = 2
	zn, err := panel.MakeZnScores(f, opts)
	require.NoError(t, err)
	testutil.AssertFloatsNear(t, column(zn, "SIGZN", "CAD"), column(prop, "SIG", "CAD"), 1e-12)

	_, err = ModifySignals(f, nil, "SIG", time.Time{}, time.Time{}, "ranked", 0, 0)
	assert.Error(t, err)
}

func TestCsUnitReturns(t *testing.T) {
	f := qdf.Concat(
		frameFromColumns("FXXR_NSA", start2020, map[string][]float64{"AUD": {1, 2, math.NaN()}}),
		frameFromColumns("EQXR_NSA", start2020, map[string][]float64{"AUD": {1, 1, 1}}),
	)
	out, err := CsUnitReturns(f, []string{"FXXR_NSA", "EQXR_NSA"}, []float64{1, 0.5}, "XR_NSA")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, column(out, "XR_NSA", "AUD"))

	_, err = CsUnitReturns(f, []string{"FXXR_NSA"}, []float64{1, 2}, "XR_NSA")
	assert.Error(t, err)
	_, err = CsUnitReturns(f, []string{"IRXR_NSA"}, []float64{1}, "XR_NSA")
	assert.Error(t, err)
}
