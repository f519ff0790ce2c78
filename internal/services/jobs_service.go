package services

import (
	"context"
	"errors"
	"log/slog"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/operations"
)

// JobQueue is the part of the job queue the service drives.
type JobQueue interface {
	Submit(jobType string, params interface{}, metadata map[string]interface{}) (*operations.Job, error)
	GetJob(id string) (*operations.Job, error)
	CancelJob(id string) error
	ListJobs(filter operations.JobFilter) ([]*operations.Job, error)
}

// JobService validates job requests and hands them to the queue.
type JobService struct {
	queue  JobQueue
	logger *slog.Logger
}

// NewJobService creates a job service.
func NewJobService(queue JobQueue, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &JobService{queue: queue, logger: logger.With(slog.String("component", "job_service"))}
}

// SubmitDownload queues a JPMaQS download after checking the request can be
// expanded.
func (s *JobService) SubmitDownload(ctx context.Context, req DownloadRequest) (*operations.Job, error) {
	if _, err := req.JPMaQS(); err != nil {
		return nil, err
	}
	return s.submit(ctx, JobTypeDownload, req)
}

// SubmitZnScores queues a zn-score computation.
func (s *JobService) SubmitZnScores(ctx context.Context, req ZnScoreRequest) (*operations.Job, error) {
	if _, err := req.Options(); err != nil {
		return nil, err
	}
	return s.submit(ctx, JobTypeZnScores, req)
}

// SubmitLinearComposite queues a composite computation.
func (s *JobService) SubmitLinearComposite(ctx context.Context, req CompositeRequest) (*operations.Job, error) {
	if _, err := req.Options(); err != nil {
		return nil, err
	}
	return s.submit(ctx, JobTypeLinearComposite, req)
}

// SubmitHistoricVol queues a volatility estimation.
func (s *JobService) SubmitHistoricVol(ctx context.Context, req VolRequest) (*operations.Job, error) {
	if _, err := req.Options(); err != nil {
		return nil, err
	}
	return s.submit(ctx, JobTypeHistoricVol, req)
}

func (s *JobService) submit(ctx context.Context, jobType string, params interface{}) (*operations.Job, error) {
	metadata := map[string]interface{}{}
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		metadata["trace_id"] = traceID
	}
	job, err := s.queue.Submit(jobType, params, metadata)
	if errors.Is(err, operations.ErrQueueFull) {
		return nil, apperrors.ErrServiceUnavailable
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job submitted",
		slog.String("job_id", job.ID),
		slog.String("job_type", jobType))
	return job, nil
}

// Get returns one job.
func (s *JobService) Get(ctx context.Context, id string) (*operations.Job, error) {
	return s.queue.GetJob(id)
}

// List returns jobs matching filter, newest first.
func (s *JobService) List(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	return s.queue.ListJobs(filter)
}

// Cancel stops a pending or running job.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	if err := s.queue.CancelJob(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job cancelled", slog.String("job_id", id))
	return nil
}
