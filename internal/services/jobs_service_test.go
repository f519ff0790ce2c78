package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/operations"
)

func newTestQueue(t *testing.T, runners map[string]operations.Runner) *operations.JobQueue {
	t.Helper()
	q := operations.NewJobQueue(1, operations.NewMemoryJobStore(), testLogger())
	for jobType, r := range runners {
		q.Register(jobType, r)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = q.Stop(time.Second)
	})
	return q
}

func TestJobService_SubmitAnalysis(t *testing.T) {
	st := seededStore(t, panelFrame("XR", map[string][]float64{"AUD": {1, 2, 3}, "CAD": {2, 3, 4}}))
	runner := NewAnalysisRunner(NewAnalysisService(st, nil, testLogger()))
	q := newTestQueue(t, map[string]operations.Runner{JobTypeZnScores: runner})
	svc := NewJobService(q, testLogger())

	ctx := infrastructure.WithTraceID(context.Background(), "trace-7")
	job, err := svc.SubmitZnScores(ctx, ZnScoreRequest{Xcat: "XR", MinObs: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, JobTypeZnScores, job.Type)
	assert.Equal(t, "trace-7", job.Metadata["trace_id"])

	require.Eventually(t, func() bool {
		got, err := svc.Get(ctx, job.ID)
		return err == nil && got.Status == operations.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.EqualValues(t, 2, got.Result["tickers"])

	jobs, err := svc.List(ctx, operations.JobFilter{Type: JobTypeZnScores})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	err = svc.Cancel(ctx, job.ID)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestJobService_Validation(t *testing.T) {
	q := newTestQueue(t, map[string]operations.Runner{})
	svc := NewJobService(q, testLogger())
	ctx := context.Background()

	_, err := svc.SubmitDownload(ctx, DownloadRequest{})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.SubmitLinearComposite(ctx, CompositeRequest{Xcats: []string{"XR", "CRY"}, Signs: []float64{1}})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.SubmitHistoricVol(ctx, VolRequest{Xcat: "XR", DateRange: DateRange{Start: "not-a-date"}})
	assert.True(t, apperrors.IsValidationError(err))

	// No runner registered for downloads.
	_, err = svc.SubmitDownload(ctx, DownloadRequest{Tickers: []string{"USD_FXXR_NSA"}})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestJobService_CancelPending(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := operations.RunnerFunc(func(ctx context.Context, job *operations.Job, progress operations.ProgressFunc) (map[string]interface{}, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	})
	q := newTestQueue(t, map[string]operations.Runner{JobTypeHistoricVol: blocking})
	svc := NewJobService(q, testLogger())
	ctx := context.Background()
	defer close(release)

	first, err := svc.SubmitHistoricVol(ctx, VolRequest{Xcat: "XR"})
	require.NoError(t, err)
	<-started

	second, err := svc.SubmitHistoricVol(ctx, VolRequest{Xcat: "XR"})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, second.ID))

	got, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, operations.JobStatusCancelled, got.Status)

	got, err = svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, operations.JobStatusRunning, got.Status)
}
