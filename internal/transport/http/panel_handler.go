package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/middleware"
	"macrosynergy/internal/operations"
	"macrosynergy/internal/services"
)

// AnalysisResponse is a computed frame summary, with the series unless
// ?series=false.
type AnalysisResponse struct {
	*services.AnalysisResult
	Series []services.Series `json:"series,omitempty"`
}

// PanelHandler serves the panel computations. With ?async=true the request
// is queued as a job and answered with 202.
type PanelHandler struct {
	analysis     AnalysisService
	jobs         JobService
	validation   *middleware.ValidationMiddleware
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewPanelHandler creates a panel handler. jobs may be nil, which disables
// async requests.
func NewPanelHandler(analysis AnalysisService, jobs JobService, validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *PanelHandler {
	return &PanelHandler{
		analysis:     analysis,
		jobs:         jobs,
		validation:   validation,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "panel")),
	}
}

// Routes returns the panel routes.
func (h *PanelHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/zn-scores", h.ZnScores)
	r.Post("/linear-composite", h.LinearComposite)
	r.Post("/historic-vol", h.HistoricVol)
	return r
}

// ZnScores handles POST /api/v1/panel/zn-scores
func (h *PanelHandler) ZnScores(w http.ResponseWriter, r *http.Request) {
	var submit submitFunc[services.ZnScoreRequest]
	if h.jobs != nil {
		submit = h.jobs.SubmitZnScores
	}
	handleAnalysis(h, w, r, h.analysis.ZnScores, submit)
}

// LinearComposite handles POST /api/v1/panel/linear-composite
func (h *PanelHandler) LinearComposite(w http.ResponseWriter, r *http.Request) {
	var submit submitFunc[services.CompositeRequest]
	if h.jobs != nil {
		submit = h.jobs.SubmitLinearComposite
	}
	handleAnalysis(h, w, r, h.analysis.LinearComposite, submit)
}

// HistoricVol handles POST /api/v1/panel/historic-vol
func (h *PanelHandler) HistoricVol(w http.ResponseWriter, r *http.Request) {
	var submit submitFunc[services.VolRequest]
	if h.jobs != nil {
		submit = h.jobs.SubmitHistoricVol
	}
	handleAnalysis(h, w, r, h.analysis.HistoricVol, submit)
}

type submitFunc[T any] func(ctx context.Context, req T) (*operations.Job, error)

func handleAnalysis[T any](h *PanelHandler, w http.ResponseWriter, r *http.Request,
	run func(context.Context, T) (*services.AnalysisResult, error), submit submitFunc[T]) {
	ctx := r.Context()
	var req T
	if err := decodeJSON(r, &req, h.validation); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if boolParam(r, "async") {
		if submit == nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable)
			return
		}
		job, err := submit(ctx, req)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		renderAccepted(w, r, job)
		return
	}

	res, err := run(ctx, req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp := AnalysisResponse{AnalysisResult: res}
	if r.URL.Query().Get("series") != "false" {
		resp.Series = services.ToSeries(res.Frame, "")
	}
	render.JSON(w, r, resp)
}
