package operations

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macrosynergy/internal/errors"
)

type recordedEvent struct {
	eventType string
	jobType   string
	status    string
	job       *Job
}

type recordingHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *recordingHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, _ := metadata.(*Job)
	h.events = append(h.events, recordedEvent{eventType, step, status, job})
}

func (h *recordingHub) statuses(eventType string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		if e.eventType == eventType {
			out = append(out, e.status)
		}
	}
	return out
}

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func blockingRunner(started chan<- struct{}) RunnerFunc {
	return func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestJobQueue_Completes(t *testing.T) {
	hub := &recordingHub{}
	q := NewJobQueue(2, NewMemoryJobStore(), nil, WithHub(hub))
	q.Register("download", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		var params struct {
			Tickers []string `json:"tickers"`
		}
		assert.NoError(t, json.Unmarshal(job.Params, &params))
		progress(50, "halfway")
		progress(150, "clamped")
		return map[string]interface{}{"tickers": len(params.Tickers)}, nil
	}))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Submit("download", map[string]interface{}{"tickers": []string{"AUD_FXXR_NSA", "CAD_FXXR_NSA"}},
		map[string]interface{}{"trace_id": "req-1"})
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	done := waitForStatus(t, q, job.ID, JobStatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 2, done.Result["tickers"])
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)

	assert.Eventually(t, func() bool {
		s := hub.statuses(EventJob)
		return len(s) >= 3 && s[len(s)-1] == string(JobStatusCompleted)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"running", "running"}, hub.statuses(EventJobProgress))
}

func TestJobQueue_Failure(t *testing.T) {
	q := NewJobQueue(1, NewMemoryJobStore(), nil)
	q.Register("zn_scores", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		return nil, errors.New("no observations for category XR")
	}))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Submit("zn_scores", struct{}{}, nil)
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Equal(t, "no observations for category XR", failed.Error)
	assert.Equal(t, "Job failed", failed.Message)
	assert.Nil(t, failed.Result)
}

func TestJobQueue_PanicRecovered(t *testing.T) {
	q := NewJobQueue(1, NewMemoryJobStore(), nil)
	q.Register("boom", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		panic("index out of range")
	}))
	q.Register("ok", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		return nil, nil
	}))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	bad, err := q.Submit("boom", nil, nil)
	require.NoError(t, err)
	failed := waitForStatus(t, q, bad.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, "panicked")

	// The worker survives the panic.
	good, err := q.Submit("ok", nil, nil)
	require.NoError(t, err)
	waitForStatus(t, q, good.ID, JobStatusCompleted)
}

func TestJobQueue_CancelRunning(t *testing.T) {
	started := make(chan struct{})
	q := NewJobQueue(1, NewMemoryJobStore(), nil)
	q.Register("download", blockingRunner(started))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Submit("download", nil, nil)
	require.NoError(t, err)
	<-started

	require.NoError(t, q.CancelJob(job.ID))
	cancelled := waitForStatus(t, q, job.ID, JobStatusCancelled)
	assert.Equal(t, ErrJobCancelled.Error(), cancelled.Message)

	err = q.CancelJob(job.ID)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestJobQueue_CancelPending(t *testing.T) {
	ran := make(chan struct{}, 1)
	q := NewJobQueue(1, NewMemoryJobStore(), nil)
	q.Register("download", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		ran <- struct{}{}
		return nil, nil
	}))

	job, err := q.Submit("download", nil, nil)
	require.NoError(t, err)
	require.NoError(t, q.CancelJob(job.ID))

	q.Start(context.Background())
	defer q.Stop(time.Second)

	select {
	case <-ran:
		t.Fatal("cancelled job was executed")
	case <-time.After(50 * time.Millisecond):
	}
	got, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
}

func TestJobQueue_Timeout(t *testing.T) {
	started := make(chan struct{})
	q := NewJobQueue(1, NewMemoryJobStore(), nil, WithJobTimeout(20*time.Millisecond))
	q.Register("download", blockingRunner(started))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Submit("download", nil, nil)
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Equal(t, "Job timed out", failed.Message)
}

func TestJobQueue_StopCancelsRunning(t *testing.T) {
	started := make(chan struct{})
	q := NewJobQueue(1, NewMemoryJobStore(), nil)
	q.Register("download", blockingRunner(started))
	q.Start(context.Background())

	job, err := q.Submit("download", nil, nil)
	require.NoError(t, err)
	<-started

	require.NoError(t, q.Stop(time.Second))
	require.NoError(t, q.Stop(time.Second))

	got, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
}

func TestJobQueue_EnqueueErrors(t *testing.T) {
	q := NewJobQueue(1, NewMemoryJobStore(), nil, WithQueueSize(1))
	q.Register("download", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		return nil, nil
	}))

	_, err := q.Submit("unknown", nil, nil)
	assert.True(t, apperrors.IsValidationError(err))

	_, err = q.Submit("download", func() {}, nil)
	assert.True(t, apperrors.IsValidationError(err))

	_, err = q.Submit("download", nil, nil)
	require.NoError(t, err)
	_, err = q.Submit("download", nil, nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	failed, err := q.ListJobs(JobFilter{Status: JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ErrQueueFull.Error(), failed[0].Error)

	assert.Equal(t, 1, q.GetQueueStats()["queue_size"])
	assert.Equal(t, 1, q.GetQueueStats()["queue_cap"])
	assert.ElementsMatch(t, []string{"download"}, q.Types())
}

func TestJobQueue_RecoversInterruptedJobs(t *testing.T) {
	store := NewMemoryJobStore()
	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateJob(&Job{
		ID:        "interrupted",
		Type:      "download",
		Status:    JobStatusRunning,
		StartedAt: &started,
		CreatedAt: started,
	}))

	q := NewJobQueue(1, store, nil)
	q.Register("download", RunnerFunc(func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
		return map[string]interface{}{"recovered": true}, nil
	}))
	q.Start(context.Background())
	defer q.Stop(time.Second)

	done := waitForStatus(t, q, "interrupted", JobStatusCompleted)
	assert.Equal(t, true, done.Result["recovered"])
}

func TestJob_CloneAndDuration(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	job := &Job{
		ID:          "a",
		Params:      []byte(`{"x":1}`),
		Metadata:    map[string]interface{}{"k": "v"},
		StartedAt:   &start,
		CompletedAt: &end,
	}
	c := job.Clone()
	c.Metadata["k"] = "changed"
	c.Params[0] = '['
	*c.StartedAt = end

	assert.Equal(t, "v", job.Metadata["k"])
	assert.Equal(t, byte('{'), job.Params[0])
	assert.Equal(t, 90*time.Second, job.Duration())
	assert.Zero(t, (&Job{}).Duration())

	assert.True(t, JobStatusCancelled.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
}
