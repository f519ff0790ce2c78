package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/files"
	"macrosynergy/internal/middleware"
)

// ExportsHandler lists and serves the frame files in the exports directory.
type ExportsHandler struct {
	catalogue    *files.Catalogue
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewExportsHandler creates an exports handler.
func NewExportsHandler(catalogue *files.Catalogue, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *ExportsHandler {
	return &ExportsHandler{
		catalogue:    catalogue,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "exports")),
	}
}

// Routes returns the export routes.
func (h *ExportsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(render.SetContentType(render.ContentTypeJSON)).Get("/", h.ListExports)
	r.Get("/latest", h.GetLatest)
	r.Get("/{name}", h.GetExport)
	return r
}

// ListExports handles GET /api/v1/exports?format=csv
func (h *ExportsHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	format, ok := h.query.ValidateEnum(w, r, "format", []string{files.FormatCSV, files.FormatXLSX}, "")
	if !ok {
		return
	}
	list, err := h.catalogue.List(format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"files": list, "count": len(list)})
}

// GetLatest handles GET /api/v1/exports/latest?format=csv by serving the
// most recently written file.
func (h *ExportsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	format, ok := h.query.ValidateEnum(w, r, "format", []string{files.FormatCSV, files.FormatXLSX}, "")
	if !ok {
		return
	}
	list, err := h.catalogue.List(format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	latest, found := files.Latest(list)
	if !found {
		h.errorHandler.HandleError(w, r, apierrors.NewNotFoundError("export"))
		return
	}
	h.serve(w, r, latest.Name)
}

// GetExport handles GET /api/v1/exports/{name}
func (h *ExportsHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "name"))
}

func (h *ExportsHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	path, err := h.catalogue.Resolve(name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.DebugContext(r.Context(), "serving export", slog.String("file", name))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	http.ServeFile(w, r, path)
}
