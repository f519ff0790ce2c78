package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/middleware"
	"macrosynergy/internal/operations"
	"macrosynergy/internal/services"
)

// JobResponse is a job with polling hints.
type JobResponse struct {
	*operations.Job
	Duration   string `json:"duration,omitempty"`
	IsComplete bool   `json:"is_complete"`
	PollAfter  string `json:"poll_after,omitempty"`
}

func newJobResponse(job *operations.Job) JobResponse {
	resp := JobResponse{Job: job, IsComplete: job.Status.Terminal()}
	if d := job.Duration(); d > 0 {
		resp.Duration = d.Round(time.Millisecond).String()
	}
	if !resp.IsComplete {
		resp.PollAfter = "2s"
	}
	return resp
}

// renderAccepted answers a queued job with 202 and its status URL.
func renderAccepted(w http.ResponseWriter, r *http.Request, job *operations.Job) {
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, newJobResponse(job))
}

// JobsHandler handles job submission and inspection.
type JobsHandler struct {
	jobs         JobService
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(jobs JobService, validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:         jobs,
		validation:   validation,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "jobs")),
	}
}

// Routes returns the job routes.
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.ListJobs)
	r.Post("/download", h.SubmitDownload)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetJob)
		r.Delete("/", h.CancelJob)
	})
	return r
}

// SubmitDownload handles POST /api/v1/jobs/download
func (h *JobsHandler) SubmitDownload(w http.ResponseWriter, r *http.Request) {
	var req services.DownloadRequest
	if err := decodeJSON(r, &req, h.validation); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	job, err := h.jobs.SubmitDownload(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	renderAccepted(w, r, job)
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newJobResponse(job))
}

// CancelJob handles DELETE /api/v1/jobs/{id}
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.jobs.Cancel(r.Context(), id); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"id": id, "status": "cancelling"})
}

// ListJobs handles GET /api/v1/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 500, 50)
	if !ok {
		return
	}
	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		string(operations.JobStatusPending), string(operations.JobStatusRunning),
		string(operations.JobStatusCompleted), string(operations.JobStatusFailed), string(operations.JobStatusCancelled),
	}, "")
	if !ok {
		return
	}
	jobType, ok := h.query.ValidateEnum(w, r, "type", []string{
		services.JobTypeDownload, services.JobTypeZnScores, services.JobTypeLinearComposite, services.JobTypeHistoricVol,
	}, "")
	if !ok {
		return
	}

	jobs, err := h.jobs.List(r.Context(), operations.JobFilter{
		Status: operations.JobStatus(status),
		Type:   jobType,
		Limit:  limit,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	out := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = newJobResponse(job)
	}
	render.JSON(w, r, map[string]interface{}{"jobs": out, "count": len(out)})
}
