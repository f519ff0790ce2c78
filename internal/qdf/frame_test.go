package qdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() Frame {
	return Frame{
		NewObservation("USD", "FXXR", Date(2024, 1, 3), 3),
		NewObservation("AUD", "FXXR", Date(2024, 1, 2), 1),
		NewObservation("AUD", "EQXR_NSA", Date(2024, 1, 2), 5),
		NewObservation("USD", "FXXR", Date(2024, 1, 2), 2),
		NewObservation("AUD", "FXXR", Date(2024, 1, 3), math.NaN()),
	}
}

func TestSplitTicker(t *testing.T) {
	tests := []struct {
		ticker   string
		wantCid  string
		wantXcat string
		wantErr  bool
	}{
		{"USD_FXXR_NSA", "USD", "FXXR_NSA", false},
		{"AUD_EQXR", "AUD", "EQXR", false},
		{"NOUNDERSCORE", "", "", true},
		{"_XR", "", "", true},
		{"USD_", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			cid, xcat, err := SplitTicker(tt.ticker)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCid, cid)
			assert.Equal(t, tt.wantXcat, xcat)
			assert.Equal(t, tt.ticker, Ticker(cid, xcat))
		})
	}
}

func TestFrame_Accessors(t *testing.T) {
	f := sampleFrame()
	assert.Equal(t, []string{"AUD_EQXR_NSA", "AUD_FXXR", "USD_FXXR"}, f.Tickers())
	assert.Equal(t, []string{"AUD", "USD"}, f.Cids())
	assert.Equal(t, []string{"EQXR_NSA", "FXXR"}, f.Xcats())
	assert.Len(t, f.Dates(), 2)

	lo, hi := f.DateRange()
	assert.Equal(t, Date(2024, 1, 2), lo)
	assert.Equal(t, Date(2024, 1, 3), hi)
}

func TestFrame_Sort(t *testing.T) {
	f := sampleFrame()
	f.Sort()
	got := make([]string, len(f))
	for i, o := range f {
		got[i] = o.Ticker() + "@" + FormatDate(o.RealDate)
	}
	assert.Equal(t, []string{
		"AUD_EQXR_NSA@2024-01-02",
		"AUD_FXXR@2024-01-02",
		"AUD_FXXR@2024-01-03",
		"USD_FXXR@2024-01-02",
		"USD_FXXR@2024-01-03",
	}, got)
}

func TestFrame_Validate(t *testing.T) {
	assert.NoError(t, sampleFrame().Validate())

	dup := append(sampleFrame(), NewObservation("USD", "FXXR", Date(2024, 1, 2), 9))
	err := dup.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate observation for USD_FXXR")

	assert.Error(t, Frame{NewObservation("", "FXXR", Date(2024, 1, 2), 1)}.Validate())
	assert.Error(t, Frame{{Cid: "USD", Xcat: "FXXR"}}.Validate())
}

func TestObservation_Metric(t *testing.T) {
	o := NewObservation("USD", "FXXR", Date(2024, 1, 2), 1.5)
	require.NoError(t, o.SetMetric(MetricGrading, 2))
	assert.Equal(t, 1.5, o.Metric(MetricValue))
	assert.Equal(t, 2.0, o.Metric(MetricGrading))
	assert.True(t, math.IsNaN(o.Metric(MetricEopLag)))
	assert.True(t, math.IsNaN(o.Metric("unknown")))
	assert.Error(t, o.SetMetric("unknown", 1))
	assert.True(t, IsMetric(MetricMopLag))
}

func TestDropNaNSeries(t *testing.T) {
	f := Frame{
		NewObservation("USD", "A", Date(2024, 1, 2), math.NaN()),
		NewObservation("USD", "A", Date(2024, 1, 3), math.NaN()),
		NewObservation("USD", "B", Date(2024, 1, 2), math.NaN()),
		NewObservation("USD", "B", Date(2024, 1, 3), 1),
	}
	out := DropNaNSeries(f)
	assert.Equal(t, []string{"USD_B"}, out.Tickers())
	assert.Len(t, out, 2)
	assert.Len(t, DropNaN(f), 1)
}

func TestBlacklist(t *testing.T) {
	bl := Blacklist{
		"AUD":   {Start: Date(2024, 1, 1), End: Date(2024, 1, 31)},
		"GBP_1": {Start: Date(2024, 3, 1), End: Date(2024, 3, 2)},
	}
	assert.Equal(t, "GBP", BlacklistCid("GBP_1"))
	assert.True(t, bl.Excludes("AUD", Date(2024, 1, 31)))
	assert.False(t, bl.Excludes("AUD", Date(2024, 2, 1)))
	assert.True(t, bl.Excludes("GBP", Date(2024, 3, 1)))
	assert.False(t, bl.Excludes("USD", Date(2024, 3, 1)))
	assert.Equal(t, "AUD:[2024-01-01,2024-01-31] GBP_1:[2024-03-01,2024-03-02]", bl.String())

	var none Blacklist
	assert.False(t, none.Excludes("AUD", Date(2024, 1, 1)))
}

func TestConcatAndGroup(t *testing.T) {
	f := Concat(sampleFrame()[:2], sampleFrame()[2:])
	assert.Equal(t, "AUD", f[0].Cid)
	groups := GroupByTicker(f)
	require.Contains(t, groups, "USD_FXXR")
	assert.Equal(t, Date(2024, 1, 2), groups["USD_FXXR"][0].RealDate)
	assert.True(t, f.HasTicker("AUD_EQXR_NSA"))
	assert.False(t, f.HasTicker("AUD_CRY"))
}
