package http

import (
	"context"

	"macrosynergy/internal/operations"
	"macrosynergy/internal/services"
)

// AnalysisService runs synchronous panel computations.
type AnalysisService interface {
	ZnScores(ctx context.Context, req services.ZnScoreRequest) (*services.AnalysisResult, error)
	LinearComposite(ctx context.Context, req services.CompositeRequest) (*services.AnalysisResult, error)
	HistoricVol(ctx context.Context, req services.VolRequest) (*services.AnalysisResult, error)
}

// JobService submits and tracks background jobs.
type JobService interface {
	SubmitDownload(ctx context.Context, req services.DownloadRequest) (*operations.Job, error)
	SubmitZnScores(ctx context.Context, req services.ZnScoreRequest) (*operations.Job, error)
	SubmitLinearComposite(ctx context.Context, req services.CompositeRequest) (*operations.Job, error)
	SubmitHistoricVol(ctx context.Context, req services.VolRequest) (*operations.Job, error)
	Get(ctx context.Context, id string) (*operations.Job, error)
	List(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error)
	Cancel(ctx context.Context, id string) error
}

// SeriesService reads stored observations.
type SeriesService interface {
	Series(ctx context.Context, q services.SeriesQuery) ([]services.Series, error)
	Tickers(ctx context.Context) ([]string, error)
}
