package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/infrastructure"
)

// Event types sent to the hub.
const (
	EventJob         = "job"
	EventJobProgress = "job_progress"
)

var (
	// ErrJobCancelled is the cancellation cause of a job stopped by CancelJob.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrQueueFull is returned by Enqueue when the buffer is exhausted.
	ErrQueueFull = errors.New("job queue is full")
	errShutdown  = errors.New("job queue shutting down")
)

// QueueOption configures a JobQueue.
type QueueOption func(*JobQueue)

// WithHub broadcasts job events to hub.
func WithHub(hub WebSocketHub) QueueOption {
	return func(q *JobQueue) { q.hub = hub }
}

// WithTracer replaces the default tracer.
func WithTracer(t *JobTracer) QueueOption {
	return func(q *JobQueue) { q.tracer = t }
}

// WithJobTimeout bounds each job run. Zero means no limit.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *JobQueue) { q.timeout = d }
}

// WithQueueSize sets the number of jobs that can wait for a worker.
func WithQueueSize(n int) QueueOption {
	return func(q *JobQueue) {
		if n > 0 {
			q.jobs = make(chan *Job, n)
		}
	}
}

// JobQueue manages async job execution
type JobQueue struct {
	mu       sync.Mutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	runners  map[string]Runner
	hub      WebSocketHub
	tracer   *JobTracer
	timeout  time.Duration
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	active   map[string]context.CancelCauseFunc
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, logger *slog.Logger, opts ...QueueOption) *JobQueue {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &JobQueue{
		jobs:     make(chan *Job, workers*2),
		workers:  workers,
		store:    store,
		runners:  make(map[string]Runner),
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		active:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.tracer == nil {
		q.tracer = NewJobTracer(nil)
	}
	return q
}

// Register installs the runner for a job type. Call before Start.
func (q *JobQueue) Register(jobType string, r Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runners[jobType] = r
}

// Types lists the registered job types.
func (q *JobQueue) Types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.runners))
	for t := range q.runners {
		out = append(out, t)
	}
	return out
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	go q.recoverJobs()
}

// Stop signals the workers, cancels running jobs and waits up to timeout.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")

	q.stopOnce.Do(func() {
		close(q.shutdown)
		q.mu.Lock()
		for _, cancel := range q.active {
			cancel(errShutdown)
		}
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Submit creates a job of jobType with params as its JSON body and enqueues it.
func (q *JobQueue) Submit(jobType string, params interface{}, metadata map[string]interface{}) (*Job, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, apperrors.NewAppValidationError("job parameters are not serialisable: " + err.Error())
	}
	job := &Job{
		ID:       uuid.New().String(),
		Type:     jobType,
		Params:   raw,
		Metadata: metadata,
	}
	if err := q.Enqueue(job); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Enqueue stores job as pending and hands it to the workers.
func (q *JobQueue) Enqueue(job *Job) error {
	q.mu.Lock()
	_, known := q.runners[job.Type]
	q.mu.Unlock()
	if !known {
		return apperrors.Validationf("unknown job type %q", job.Type)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	job.Status = JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.Message = "Queued"

	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	q.broadcast(EventJob, job)
	select {
	case q.jobs <- job.Clone():
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		now := time.Now().UTC()
		job.CompletedAt = &now
		if err := q.store.UpdateJob(job); err != nil {
			q.logger.Error("failed to update rejected job", slog.String("error", err.Error()))
		}
		q.broadcast(EventJob, job)
		return ErrQueueFull
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// CancelJob cancels a pending or running job. Finished jobs cannot be
// cancelled.
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apperrors.Validationf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}

	if cancel, running := q.active[id]; running {
		cancel(ErrJobCancelled)
		q.logger.Info("running job cancellation requested", slog.String("job_id", id))
		return nil
	}

	job.Status = JobStatusCancelled
	job.Message = "Cancelled before start"
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := q.store.UpdateJob(job); err != nil {
		return err
	}
	q.broadcast(EventJob, job)
	return nil
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// claim moves a pending job to running under the queue lock, so a concurrent
// CancelJob either sees it pending or finds its cancel func.
func (q *JobQueue) claim(ctx context.Context, id string) (*Job, context.Context, Runner, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil || job.Status != JobStatusPending {
		return nil, nil, nil, false
	}
	runner := q.runners[job.Type]

	jobCtx, cancel := context.WithCancelCause(ctx)
	q.active[id] = cancel

	now := time.Now().UTC()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Job started"
	if err := q.store.UpdateJob(job); err != nil {
		q.logger.Error("failed to update job status", slog.String("error", err.Error()))
	}
	return job, jobCtx, runner, true
}

func (q *JobQueue) release(id string) {
	q.mu.Lock()
	cancel, ok := q.active[id]
	delete(q.active, id)
	q.mu.Unlock()
	if ok {
		cancel(nil)
	}
}

func (q *JobQueue) processJob(ctx context.Context, queued *Job, logger *slog.Logger) {
	job, jobCtx, runner, ok := q.claim(ctx, queued.ID)
	if !ok {
		logger.Info("skipping job that is no longer pending", slog.String("job_id", queued.ID))
		return
	}
	defer q.release(job.ID)

	if traceID, ok := job.Metadata["trace_id"].(string); ok && traceID != "" {
		jobCtx = infrastructure.WithTraceID(jobCtx, traceID)
	}
	if q.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, q.timeout)
		defer cancel()
	}

	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)
	logger.InfoContext(jobCtx, "processing job started")

	jobCtx, span := q.tracer.StartJob(jobCtx, job)
	q.broadcast(EventJob, job)

	var (
		runErr error
		result map[string]interface{}
	)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(jobCtx, "job processing panicked", slog.Any("panic", r))
			runErr = fmt.Errorf("job processing panicked: %v", r)
			result = nil
		}
		q.finish(jobCtx, job, result, runErr, logger)
		q.tracer.EndJob(jobCtx, span, job, job.Duration(), runErr)
	}()

	var progressMu sync.Mutex
	progress := func(pct int, message string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		job.Progress = min(max(pct, 0), 100)
		job.Message = message
		if err := q.store.UpdateJob(job); err != nil {
			logger.Warn("failed to persist job progress", slog.String("error", err.Error()))
		}
		q.tracer.RecordProgress(jobCtx, job.Progress, message)
		q.broadcast(EventJobProgress, job)
	}

	result, runErr = runner.Run(jobCtx, job.Clone(), progress)
}

// finish records the terminal state of a job.
func (q *JobQueue) finish(ctx context.Context, job *Job, result map[string]interface{}, runErr error, logger *slog.Logger) {
	now := time.Now().UTC()
	job.CompletedAt = &now

	cause := context.Cause(ctx)
	switch {
	case runErr == nil:
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.Message = "Job completed successfully"
		job.Result = result
		logger.InfoContext(ctx, "processing job completed", slog.Duration("duration", job.Duration()))
	case errors.Is(cause, ErrJobCancelled), errors.Is(cause, errShutdown):
		job.Status = JobStatusCancelled
		job.Message = cause.Error()
		logger.WarnContext(ctx, "job cancelled", slog.String("reason", cause.Error()))
	default:
		job.Status = JobStatusFailed
		job.Error = runErr.Error()
		job.Message = "Job failed"
		if errors.Is(runErr, context.DeadlineExceeded) {
			job.Message = "Job timed out"
		}
		logger.ErrorContext(ctx, "job failed", slog.String("error", runErr.Error()))
	}

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}
	q.broadcast(EventJob, job)
}

// recoverJobs re-queues jobs a persistent store still holds as pending or
// running from a previous process.
func (q *JobQueue) recoverJobs() {
	running, err := q.store.ListJobs(JobFilter{Status: JobStatusRunning})
	if err != nil {
		q.logger.Error("failed to recover running jobs", slog.String("error", err.Error()))
		return
	}
	pending, err := q.store.ListJobs(JobFilter{Status: JobStatusPending})
	if err != nil {
		q.logger.Error("failed to recover pending jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range running {
		q.mu.Lock()
		_, live := q.active[job.ID]
		q.mu.Unlock()
		if live {
			continue
		}
		job.Status = JobStatusPending
		job.StartedAt = nil
		job.Progress = 0
		if err := q.store.UpdateJob(job); err != nil {
			q.logger.Error("failed to reset job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
			continue
		}
		pending = append(pending, job)
	}

	for _, job := range pending {
		select {
		case q.jobs <- job:
			q.logger.Info("recovered job", slog.String("job_id", job.ID))
		default:
			q.logger.Warn("could not recover job - queue full", slog.String("job_id", job.ID))
		}
	}
}

func (q *JobQueue) broadcast(eventType string, job *Job) {
	if q.hub == nil {
		return
	}
	q.hub.BroadcastUpdate(eventType, job.Type, string(job.Status), job.Clone())
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.Lock()
	activeCount := len(q.active)
	q.mu.Unlock()

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
}
