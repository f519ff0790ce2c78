package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/middleware"
)

// decodeJSON decodes the body into v and validates its struct tags.
func decodeJSON(r *http.Request, v interface{}, validation *middleware.ValidationMiddleware) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.NewValidationError("request body is required")
		}
		return apierrors.InvalidRequestWithError(err)
	}
	return validation.ValidateStruct(v)
}

// listParam reads a query parameter given either repeatedly or comma
// separated.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
