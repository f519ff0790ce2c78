package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/middleware"
	"macrosynergy/internal/operations"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps() (*middleware.ValidationMiddleware, *apierrors.ErrorHandler) {
	eh := apierrors.NewErrorHandler(testLogger(), false)
	return middleware.NewValidationMiddleware(testLogger(), eh), eh
}

type mockAnalysis struct{ mock.Mock }

func (m *mockAnalysis) ZnScores(ctx context.Context, req services.ZnScoreRequest) (*services.AnalysisResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.AnalysisResult)
	return res, args.Error(1)
}

func (m *mockAnalysis) LinearComposite(ctx context.Context, req services.CompositeRequest) (*services.AnalysisResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.AnalysisResult)
	return res, args.Error(1)
}

func (m *mockAnalysis) HistoricVol(ctx context.Context, req services.VolRequest) (*services.AnalysisResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.AnalysisResult)
	return res, args.Error(1)
}

type mockJobs struct{ mock.Mock }

func (m *mockJobs) job(args mock.Arguments) (*operations.Job, error) {
	job, _ := args.Get(0).(*operations.Job)
	return job, args.Error(1)
}

func (m *mockJobs) SubmitDownload(ctx context.Context, req services.DownloadRequest) (*operations.Job, error) {
	return m.job(m.Called(ctx, req))
}

func (m *mockJobs) SubmitZnScores(ctx context.Context, req services.ZnScoreRequest) (*operations.Job, error) {
	return m.job(m.Called(ctx, req))
}

func (m *mockJobs) SubmitLinearComposite(ctx context.Context, req services.CompositeRequest) (*operations.Job, error) {
	return m.job(m.Called(ctx, req))
}

func (m *mockJobs) SubmitHistoricVol(ctx context.Context, req services.VolRequest) (*operations.Job, error) {
	return m.job(m.Called(ctx, req))
}

func (m *mockJobs) Get(ctx context.Context, id string) (*operations.Job, error) {
	return m.job(m.Called(ctx, id))
}

func (m *mockJobs) List(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	args := m.Called(ctx, filter)
	jobs, _ := args.Get(0).([]*operations.Job)
	return jobs, args.Error(1)
}

func (m *mockJobs) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockSeries struct{ mock.Mock }

func (m *mockSeries) Series(ctx context.Context, q services.SeriesQuery) ([]services.Series, error) {
	args := m.Called(ctx, q)
	s, _ := args.Get(0).([]services.Series)
	return s, args.Error(1)
}

func (m *mockSeries) Tickers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]string)
	return s, args.Error(1)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func pendingJob(id, jobType string) *operations.Job {
	return &operations.Job{ID: id, Type: jobType, Status: operations.JobStatusPending, CreatedAt: time.Now()}
}

func TestPanelHandler_ZnScores(t *testing.T) {
	validation, eh := testDeps()
	day := qdf.Date(2024, 1, 2)

	t.Run("sync returns summary and series", func(t *testing.T) {
		analysis := &mockAnalysis{}
		analysis.On("ZnScores", mock.Anything, mock.MatchedBy(func(req services.ZnScoreRequest) bool {
			return req.Xcat == "FXXR_NSA" && len(req.Cids) == 2
		})).Return(&services.AnalysisResult{
			Kind:         services.AnalysisZnScores,
			Xcats:        []string{"FXXR_NSAZN"},
			Tickers:      []string{"AUD_FXXR_NSAZN"},
			Observations: 1,
			Frame:        qdf.Frame{qdf.NewObservation("AUD", "FXXR_NSAZN", day, 0.5)},
		}, nil)

		h := NewPanelHandler(analysis, nil, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/zn-scores", `{"xcat":"FXXR_NSA","cids":["AUD","USD"]}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "zn_scores", body["kind"])
		assert.EqualValues(t, 1, body["observations"])
		series, ok := body["series"].([]interface{})
		require.True(t, ok)
		assert.Len(t, series, 1)
		analysis.AssertExpectations(t)
	})

	t.Run("series can be omitted", func(t *testing.T) {
		analysis := &mockAnalysis{}
		analysis.On("ZnScores", mock.Anything, mock.Anything).Return(&services.AnalysisResult{
			Kind:  services.AnalysisZnScores,
			Frame: qdf.Frame{qdf.NewObservation("AUD", "FXXR_NSAZN", day, 0.5)},
		}, nil)

		h := NewPanelHandler(analysis, nil, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/zn-scores?series=false", `{"xcat":"FXXR_NSA"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, decode(t, rec), "series")
	})

	t.Run("validation errors never reach the service", func(t *testing.T) {
		analysis := &mockAnalysis{}
		h := NewPanelHandler(analysis, nil, validation, eh, testLogger()).Routes()

		for name, body := range map[string]string{
			"missing xcat": `{"cids":["AUD"]}`,
			"bad cid":      `{"xcat":"FXXR_NSA","cids":["aud"]}`,
			"bad neutral":  `{"xcat":"FXXR_NSA","neutral":"mode"}`,
			"malformed":    `{"xcat":`,
		} {
			rec := do(t, h, http.MethodPost, "/zn-scores", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		}
		rec := do(t, h, http.MethodPost, "/zn-scores", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		analysis.AssertNotCalled(t, "ZnScores", mock.Anything, mock.Anything)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		analysis := &mockAnalysis{}
		analysis.On("ZnScores", mock.Anything, mock.Anything).
			Return(nil, apierrors.NewNotFoundError("observations for FXXR_NSA"))

		h := NewPanelHandler(analysis, nil, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/zn-scores", `{"xcat":"FXXR_NSA"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPanelHandler_Async(t *testing.T) {
	validation, eh := testDeps()

	t.Run("queues a job", func(t *testing.T) {
		analysis := &mockAnalysis{}
		jobs := &mockJobs{}
		jobs.On("SubmitHistoricVol", mock.Anything, mock.MatchedBy(func(req services.VolRequest) bool {
			return req.Xcat == "EQXR_NSA" && req.LbackPeriods == 21
		})).Return(pendingJob("job-1", services.JobTypeHistoricVol), nil)

		h := NewPanelHandler(analysis, jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/historic-vol?async=true", `{"xcat":"EQXR_NSA","lback_periods":21}`)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, "/api/v1/jobs/job-1", rec.Header().Get("Location"))
		body := decode(t, rec)
		assert.Equal(t, "job-1", body["id"])
		assert.Equal(t, false, body["is_complete"])
		assert.Equal(t, "2s", body["poll_after"])
		analysis.AssertNotCalled(t, "HistoricVol", mock.Anything, mock.Anything)
	})

	t.Run("queue full maps to 503", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("SubmitLinearComposite", mock.Anything, mock.Anything).
			Return(nil, apierrors.ErrServiceUnavailable)

		h := NewPanelHandler(&mockAnalysis{}, jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/linear-composite?async=1", `{"xcats":["GROWTH","INFL"]}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no job service", func(t *testing.T) {
		h := NewPanelHandler(&mockAnalysis{}, nil, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/linear-composite?async=true", `{"xcats":["GROWTH"]}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestJobsHandler(t *testing.T) {
	validation, eh := testDeps()

	t.Run("submit download", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("SubmitDownload", mock.Anything, mock.MatchedBy(func(req services.DownloadRequest) bool {
			return len(req.Tickers) == 1 && req.Export == "csv"
		})).Return(pendingJob("dl-1", services.JobTypeDownload), nil)

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/download",
			`{"tickers":["USD_FXXR_NSA"],"start":"2023-01-01","export":"csv"}`)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, "/api/v1/jobs/dl-1", rec.Header().Get("Location"))
	})

	t.Run("submit rejects bad export format", func(t *testing.T) {
		jobs := &mockJobs{}
		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodPost, "/download", `{"tickers":["USD_FXXR_NSA"],"export":"parquet"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		jobs.AssertNotCalled(t, "SubmitDownload", mock.Anything, mock.Anything)
	})

	t.Run("get completed job", func(t *testing.T) {
		started := time.Now().Add(-2 * time.Second)
		done := started.Add(1500 * time.Millisecond)
		jobs := &mockJobs{}
		jobs.On("Get", mock.Anything, "dl-1").Return(&operations.Job{
			ID: "dl-1", Type: services.JobTypeDownload, Status: operations.JobStatusCompleted,
			Progress: 100, StartedAt: &started, CompletedAt: &done,
			Result: map[string]interface{}{"observations": 10},
		}, nil)

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/dl-1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "completed", body["status"])
		assert.Equal(t, true, body["is_complete"])
		assert.Equal(t, "1.5s", body["duration"])
		assert.NotContains(t, body, "poll_after")
	})

	t.Run("get unknown job", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("Get", mock.Anything, "nope").Return(nil, apierrors.NewNotFoundError("job nope"))

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("Cancel", mock.Anything, "dl-1").Return(nil)
		jobs.On("Cancel", mock.Anything, "dl-2").Return(apierrors.Validationf("job dl-2 already completed"))

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodDelete, "/dl-1", "")
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "cancelling", decode(t, rec)["status"])

		rec = do(t, h, http.MethodDelete, "/dl-2", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list with filters", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("List", mock.Anything, operations.JobFilter{
			Status: operations.JobStatusPending,
			Type:   services.JobTypeZnScores,
			Limit:  10,
		}).Return([]*operations.Job{pendingJob("a", services.JobTypeZnScores)}, nil)

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/?status=pending&type=zn_scores&limit=10", "")

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 1, decode(t, rec)["count"])
		jobs.AssertExpectations(t)
	})

	t.Run("list defaults", func(t *testing.T) {
		jobs := &mockJobs{}
		jobs.On("List", mock.Anything, operations.JobFilter{Limit: 50}).Return([]*operations.Job{}, nil)

		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 0, decode(t, rec)["count"])
	})

	t.Run("list rejects bad params", func(t *testing.T) {
		jobs := &mockJobs{}
		h := NewJobsHandler(jobs, validation, eh, testLogger()).Routes()
		for _, q := range []string{"?limit=0", "?limit=abc", "?status=sleeping", "?type=backtest"} {
			rec := do(t, h, http.MethodGet, "/"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
		jobs.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}

func TestSeriesHandler(t *testing.T) {
	validation, eh := testDeps()
	v := 1.25

	t.Run("comma separated and repeated tickers", func(t *testing.T) {
		series := &mockSeries{}
		series.On("Series", mock.Anything, services.SeriesQuery{
			Tickers:   []string{"USD_FXXR_NSA", "EUR_FXXR_NSA", "JPY_FXXR_NSA"},
			DateRange: services.DateRange{Start: "2023-01-01"},
			Metric:    "grading",
		}).Return([]services.Series{{
			Ticker: "USD_FXXR_NSA", Cid: "USD", Xcat: "FXXR_NSA", Metric: "grading",
			Dates: []string{"2023-01-02"}, Values: []*float64{&v},
		}}, nil)

		h := NewSeriesHandler(series, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet,
			"/?tickers=USD_FXXR_NSA,EUR_FXXR_NSA&tickers=JPY_FXXR_NSA&start=2023-01-01&metric=grading", "")

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 1, decode(t, rec)["count"])
		series.AssertExpectations(t)
	})

	t.Run("invalid query", func(t *testing.T) {
		series := &mockSeries{}
		h := NewSeriesHandler(series, validation, eh, testLogger()).Routes()
		for _, q := range []string{"?tickers=usd", "?cids=USD&start=2023-13-45", "?xcats=FXXR&metric=close"} {
			rec := do(t, h, http.MethodGet, "/"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
		series.AssertNotCalled(t, "Series", mock.Anything, mock.Anything)
	})

	t.Run("service errors", func(t *testing.T) {
		series := &mockSeries{}
		series.On("Series", mock.Anything, mock.Anything).Return(nil, apierrors.NewNotFoundError("series"))
		h := NewSeriesHandler(series, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/?cids=USD", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("tickers", func(t *testing.T) {
		series := &mockSeries{}
		series.On("Tickers", mock.Anything).Return([]string{"EUR_FXXR_NSA", "USD_FXXR_NSA"}, nil)
		h := NewSeriesHandler(series, validation, eh, testLogger()).Routes()
		rec := do(t, h, http.MethodGet, "/tickers", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []interface{}{"EUR_FXXR_NSA", "USD_FXXR_NSA"}, decode(t, rec)["tickers"])
	})
}

func TestMetricsHandler(t *testing.T) {
	_, eh := testDeps()

	rec := do(t, NewMetricsHandler(nil, eh), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	exporter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "macrosynergy_jobs_total 3\n")
	})
	rec = do(t, NewMetricsHandler(exporter, eh), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "macrosynergy_jobs_total")
}
