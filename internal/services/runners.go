package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/exporter"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/jpmaqs"
	"macrosynergy/internal/operations"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/store"
)

// Job types registered with the queue.
const (
	JobTypeDownload        = "download"
	JobTypeZnScores        = AnalysisZnScores
	JobTypeLinearComposite = AnalysisLinearComposite
	JobTypeHistoricVol     = AnalysisHistoricVol
)

// Uploader copies an exported file to remote storage and returns its key.
// *exporter.S3Uploader implements it.
type Uploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

func decodeParams(job *operations.Job, v interface{}) error {
	if len(job.Params) == 0 {
		return apperrors.Validationf("job %s has no parameters", job.ID)
	}
	if err := json.Unmarshal(job.Params, v); err != nil {
		return apperrors.NewAppValidationError(fmt.Sprintf("job %s parameters: %v", job.ID, err))
	}
	return nil
}

// DownloadRunner downloads JPMaQS data into the store and optionally
// exports and uploads it.
type DownloadRunner struct {
	downloader *jpmaqs.Downloader
	store      store.Store
	files      *exporter.CSVWriter
	uploader   Uploader
	metrics    *infrastructure.BusinessMetrics
	logger     *slog.Logger
}

// NewDownloadRunner creates the runner. files and uploader may be nil when
// exports or uploads are not configured.
func NewDownloadRunner(d *jpmaqs.Downloader, st store.Store, files *exporter.CSVWriter, uploader Uploader,
	metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *DownloadRunner {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &DownloadRunner{
		downloader: d,
		store:      st,
		files:      files,
		uploader:   uploader,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "download_runner")),
	}
}

// Run implements operations.Runner.
func (r *DownloadRunner) Run(ctx context.Context, job *operations.Job, progress operations.ProgressFunc) (map[string]interface{}, error) {
	var params DownloadRequest
	if err := decodeParams(job, &params); err != nil {
		return nil, err
	}
	req, err := params.JPMaQS()
	if err != nil {
		return nil, err
	}

	progress(5, "downloading")
	res, err := r.downloader.Download(ctx, req)
	if err != nil {
		return nil, err
	}

	progress(60, fmt.Sprintf("saving %d observations", len(res.Frame)))
	if err := r.store.Save(ctx, res.Frame); err != nil {
		return nil, err
	}
	infrastructure.RecordObservationsSaved(ctx, r.metrics, JobTypeDownload, len(res.Frame))

	result := map[string]interface{}{
		"tickers":      len(res.Frame.Tickers()),
		"observations": len(res.Frame),
		"unavailable":  res.Unavailable,
	}

	if params.Export != "" {
		progress(80, "exporting")
		path, err := r.export(job.ID, params.Export, res.Frame, req.Metrics)
		if err != nil {
			return nil, err
		}
		result["export"] = path

		if params.Upload {
			if r.uploader == nil {
				return nil, apperrors.NewConfigError("no S3 bucket configured for uploads", nil)
			}
			progress(90, "uploading")
			key, err := r.uploader.UploadFile(ctx, path)
			if err != nil {
				return nil, err
			}
			result["s3_key"] = key
		}
	}

	r.logger.InfoContext(ctx, "download stored",
		slog.String("job_id", job.ID),
		slog.Int("observations", len(res.Frame)),
		slog.Int("unavailable", len(res.Unavailable)))
	progress(100, "done")
	return result, nil
}

func (r *DownloadRunner) export(jobID, format string, f qdf.Frame, metrics []string) (string, error) {
	if r.files == nil {
		return "", apperrors.NewConfigError("no exports directory configured", nil)
	}
	name := fmt.Sprintf("jpmaqs_%s_%s.%s", time.Now().UTC().Format("20060102"), jobID, format)
	path := r.files.Path(name)
	switch format {
	case ExportCSV:
		return path, r.files.ExportFrame(path, f, metrics)
	case ExportXLSX:
		return path, exporter.SaveXLSX(path, f, metrics)
	default:
		return "", apperrors.Validationf("unknown export format %q", format)
	}
}

// AnalysisRunner runs panel computations as background jobs. The job type
// selects the computation.
type AnalysisRunner struct {
	analysis *AnalysisService
}

// NewAnalysisRunner wraps an analysis service.
func NewAnalysisRunner(a *AnalysisService) *AnalysisRunner {
	return &AnalysisRunner{analysis: a}
}

// Run implements operations.Runner.
func (r *AnalysisRunner) Run(ctx context.Context, job *operations.Job, progress operations.ProgressFunc) (map[string]interface{}, error) {
	progress(10, "computing "+job.Type)
	var (
		res *AnalysisResult
		err error
	)
	switch job.Type {
	case JobTypeZnScores:
		var req ZnScoreRequest
		if err = decodeParams(job, &req); err == nil {
			res, err = r.analysis.ZnScores(ctx, req)
		}
	case JobTypeLinearComposite:
		var req CompositeRequest
		if err = decodeParams(job, &req); err == nil {
			res, err = r.analysis.LinearComposite(ctx, req)
		}
	case JobTypeHistoricVol:
		var req VolRequest
		if err = decodeParams(job, &req); err == nil {
			res, err = r.analysis.HistoricVol(ctx, req)
		}
	default:
		err = apperrors.Validationf("unknown analysis job type %q", job.Type)
	}
	if err != nil {
		return nil, err
	}
	progress(100, "done")
	return res.Summary(), nil
}
