package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/store"
)

var start2020 = qdf.Date(2020, 1, 1)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// panelFrame builds a frame for xcat with one series per cid over
// consecutive business days from 2020-01-01.
func panelFrame(xcat string, cols map[string][]float64) qdf.Frame {
	n := 0
	for _, c := range cols {
		n = max(n, len(c))
	}
	days := qdf.BusinessDays(start2020, start2020.AddDate(0, 0, 2*n+7))[:n]
	var f qdf.Frame
	for cid, vals := range cols {
		for i, v := range vals {
			f = append(f, qdf.NewObservation(cid, xcat, days[i], v))
		}
	}
	f.Sort()
	return f
}

func seededStore(t *testing.T, frames ...qdf.Frame) *store.Memory {
	t.Helper()
	st := store.NewMemory()
	for _, f := range frames {
		require.NoError(t, st.Save(context.Background(), f))
	}
	return st
}

func ptr[T any](v T) *T { return &v }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, f qdf.Frame) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockStore) Load(ctx context.Context, flt store.Filter) (qdf.Frame, error) {
	args := m.Called(ctx, flt)
	f, _ := args.Get(0).(qdf.Frame)
	return f, args.Error(1)
}

func (m *mockStore) Tickers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	tickers, _ := args.Get(0).([]string)
	return tickers, args.Error(1)
}

func (m *mockStore) Close() error { return m.Called().Error(0) }

func values(f qdf.Frame, ticker string) []float64 {
	var out []float64
	for _, o := range f {
		if o.Ticker() == ticker {
			out = append(out, o.Value)
		}
	}
	return out
}

func TestAnalysisService_ZnScores(t *testing.T) {
	st := seededStore(t, panelFrame("XR", map[string][]float64{
		"AUD": {1, 2, 3, 4},
		"CAD": {5, 6, 7, 8},
	}))
	svc := NewAnalysisService(st, nil, testLogger())

	res, err := svc.ZnScores(context.Background(), ZnScoreRequest{
		Xcat:       "XR",
		Sequential: ptr(false),
		MinObs:     ptr(0),
		Neutral:    "mean",
		Save:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, AnalysisZnScores, res.Kind)
	assert.Equal(t, []string{"XRZN"}, res.Xcats)
	assert.Equal(t, []string{"AUD_XRZN", "CAD_XRZN"}, res.Tickers)
	assert.Equal(t, 8, res.InputRows)
	assert.True(t, res.Saved)
	assert.InDeltaSlice(t, []float64{-1.75, -1.25, -0.75, -0.25}, values(res.Frame, "AUD_XRZN"), 1e-12)

	tickers, err := st.Tickers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tickers, "AUD_XRZN")
}

func TestAnalysisService_LinearComposite(t *testing.T) {
	st := seededStore(t,
		panelFrame("XR", map[string][]float64{"AUD": {1, 2, 3}}),
		panelFrame("CRY", map[string][]float64{"AUD": {3, 4, 5}}),
	)
	svc := NewAnalysisService(st, nil, testLogger())

	res, err := svc.LinearComposite(context.Background(), CompositeRequest{
		Xcats:   []string{"XR", "CRY"},
		NewXcat: "XRCRY",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AUD_XRCRY"}, res.Tickers)
	assert.False(t, res.Saved)
	assert.InDeltaSlice(t, []float64{2, 3, 4}, values(res.Frame, "AUD_XRCRY"), 1e-12)

	_, err = svc.LinearComposite(context.Background(), CompositeRequest{
		Xcats:   []string{"XR", "CRY"},
		Weights: []float64{1},
	})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAnalysisService_HistoricVol(t *testing.T) {
	st := seededStore(t, panelFrame("XR", map[string][]float64{
		"CAD": {2, 2, 2, 2, 2, 2},
	}))
	svc := NewAnalysisService(st, nil, testLogger())

	res, err := svc.HistoricVol(context.Background(), VolRequest{
		Xcat:         "XR",
		LbackPeriods: 3,
		NanTolerance: ptr(0.0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"XRASD"}, res.Xcats)

	vol := values(res.Frame, "CAD_XRASD")
	require.NotEmpty(t, vol)
	last := vol[len(vol)-1]
	assert.False(t, math.IsNaN(last))
	assert.Greater(t, last, 0.0)
}

func TestAnalysisService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no observations", func(t *testing.T) {
		svc := NewAnalysisService(store.NewMemory(), nil, testLogger())
		_, err := svc.ZnScores(ctx, ZnScoreRequest{Xcat: "XR"})
		assert.True(t, apperrors.IsNotFoundError(err))
	})

	t.Run("bad date range", func(t *testing.T) {
		st := new(mockStore)
		svc := NewAnalysisService(st, nil, testLogger())
		_, err := svc.ZnScores(ctx, ZnScoreRequest{Xcat: "XR", DateRange: DateRange{Start: "2021-01-01", End: "2020-01-01"}})
		assert.True(t, apperrors.IsValidationError(err))
		st.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		st := new(mockStore)
		boom := apperrors.NewStorageError("load observations", errors.New("connection refused"))
		st.On("Load", mock.Anything, mock.MatchedBy(func(flt store.Filter) bool {
			return len(flt.Xcats) == 1 && flt.Xcats[0] == "XR"
		})).Return(nil, boom)

		svc := NewAnalysisService(st, nil, testLogger())
		_, err := svc.HistoricVol(ctx, VolRequest{Xcat: "XR"})
		assert.ErrorIs(t, err, boom)
		st.AssertExpectations(t)
	})

	t.Run("save failure", func(t *testing.T) {
		st := new(mockStore)
		st.On("Load", mock.Anything, mock.Anything).Return(panelFrame("XR", map[string][]float64{"AUD": {1, 2, 3}}), nil)
		st.On("Save", mock.Anything, mock.Anything).Return(apperrors.NewStorageError("save", nil))

		svc := NewAnalysisService(st, nil, testLogger())
		_, err := svc.ZnScores(ctx, ZnScoreRequest{Xcat: "XR", MinObs: ptr(0), Save: true})
		assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))
	})
}

func TestSeriesService(t *testing.T) {
	f := panelFrame("XR", map[string][]float64{
		"AUD": {1, math.NaN(), 3},
		"CAD": {4, 5, 6},
	})
	svc := NewSeriesService(seededStore(t, f), testLogger())
	ctx := context.Background()

	series, err := svc.Series(ctx, SeriesQuery{Tickers: []string{"AUD_XR"}})
	require.NoError(t, err)
	require.Len(t, series, 1)
	s := series[0]
	assert.Equal(t, "AUD", s.Cid)
	assert.Equal(t, "XR", s.Xcat)
	assert.Equal(t, qdf.MetricValue, s.Metric)
	assert.Equal(t, []string{"2020-01-01", "2020-01-02", "2020-01-03"}, s.Dates)
	require.Len(t, s.Values, 3)
	assert.Equal(t, 1.0, *s.Values[0])
	assert.Nil(t, s.Values[1])

	series, err = svc.Series(ctx, SeriesQuery{Xcats: []string{"XR"}, DateRange: DateRange{Start: "2020-01-02"}})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Len(t, series[1].Dates, 2)

	_, err = svc.Series(ctx, SeriesQuery{Tickers: []string{"USD_XR"}})
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = svc.Series(ctx, SeriesQuery{})
	assert.True(t, apperrors.IsValidationError(err))

	tickers, err := svc.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUD_XR", "CAD_XR"}, tickers)
}

func TestDateRange_Parse(t *testing.T) {
	start, end, err := DateRange{Start: "2020-01-01", End: "2020-12-31"}.Parse()
	require.NoError(t, err)
	assert.Equal(t, qdf.Date(2020, 1, 1), start)
	assert.Equal(t, qdf.Date(2020, 12, 31), end)

	start, end, err = DateRange{}.Parse()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
	assert.True(t, end.IsZero())

	_, _, err = DateRange{Start: "2020-02-30"}.Parse()
	assert.Error(t, err)
}

func TestZnScoreRequest_Options(t *testing.T) {
	opts, err := ZnScoreRequest{Xcat: "XR"}.Options()
	require.NoError(t, err)
	assert.True(t, opts.Sequential)
	assert.Equal(t, 261, opts.MinObs)
	assert.Equal(t, "ZN", opts.Postfix)

	opts, err = ZnScoreRequest{
		Xcat:       "XR",
		Sequential: ptr(false),
		PanWeight:  ptr(0.5),
		EstFreq:    "M",
		Blacklist:  map[string]PeriodDTO{"AUD": {Start: "2020-03-01", End: "2020-03-31"}},
	}.Options()
	require.NoError(t, err)
	assert.False(t, opts.Sequential)
	assert.Equal(t, 0.5, opts.PanWeight)
	assert.Equal(t, qdf.Monthly, opts.EstFreq)
	assert.True(t, opts.Blacklist.Excludes("AUD", qdf.Date(2020, 3, 16)))

	_, err = ZnScoreRequest{
		Xcat:      "XR",
		Blacklist: map[string]PeriodDTO{"AUD": {Start: "2020-03-01"}},
	}.Options()
	assert.True(t, apperrors.IsValidationError(err))
}

func TestDownloadRequest_JPMaQS(t *testing.T) {
	req, err := DownloadRequest{
		Xcats:     []string{"FXXR_NSA"},
		Metrics:   []string{"all"},
		DateRange: DateRange{Start: "2023-01-01"},
	}.JPMaQS()
	require.NoError(t, err)
	assert.Equal(t, qdf.Metrics, req.Metrics)
	assert.Equal(t, qdf.Date(2023, 1, 1), req.Start)

	_, err = DownloadRequest{}.JPMaQS()
	assert.True(t, apperrors.IsValidationError(err))

	_, err = DownloadRequest{Tickers: []string{"USD_FXXR_NSA"}, Upload: true}.JPMaQS()
	assert.True(t, apperrors.IsValidationError(err))
}

func TestToSeries_Ordering(t *testing.T) {
	f := qdf.Frame{
		qdf.NewObservation("CAD", "XR", qdf.Date(2020, 1, 2), 2),
		qdf.NewObservation("AUD", "XR", qdf.Date(2020, 1, 3), 1),
		qdf.NewObservation("AUD", "XR", qdf.Date(2020, 1, 2), math.Inf(1)),
	}
	series := ToSeries(f, "")
	require.Len(t, series, 2)
	assert.Equal(t, "AUD_XR", series[0].Ticker)
	assert.Equal(t, []string{"2020-01-02", "2020-01-03"}, series[0].Dates)
	assert.Nil(t, series[0].Values[0])
	assert.Equal(t, "CAD_XR", series[1].Ticker)

	assert.Empty(t, ToSeries(nil, qdf.MetricValue))
}
