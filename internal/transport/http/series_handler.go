package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/middleware"
	"macrosynergy/internal/services"
)

// SeriesHandler serves stored observations.
type SeriesHandler struct {
	series       SeriesService
	validation   *middleware.ValidationMiddleware
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewSeriesHandler creates a series handler.
func NewSeriesHandler(series SeriesService, validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{
		series:       series,
		validation:   validation,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "series")),
	}
}

// Routes returns the series routes.
func (h *SeriesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.GetSeries)
	r.Get("/tickers", h.GetTickers)
	return r
}

// GetSeries handles GET /api/v1/series?tickers=USD_FXXR_NSA,EUR_FXXR_NSA
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.SeriesQuery{
		Tickers:   listParam(r, "tickers"),
		Cids:      listParam(r, "cids"),
		Xcats:     listParam(r, "xcats"),
		DateRange: services.DateRange{Start: q.Get("start"), End: q.Get("end")},
		Metric:    q.Get("metric"),
	}
	if err := h.validation.ValidateStruct(query); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	series, err := h.series.Series(r.Context(), query)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"series": series, "count": len(series)})
}

// GetTickers handles GET /api/v1/series/tickers
func (h *SeriesHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.series.Tickers(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"tickers": tickers})
}
