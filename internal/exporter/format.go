package exporter

import (
	"math"
	"strconv"
	"strings"

	apperrors "macrosynergy/internal/errors"
)

// formatFloat renders a value with the shortest exact representation. NaN
// is written as an empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// parseFloat reads a cell; empty cells and "nan" are NaN.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.NewParsingError("invalid number "+strconv.Quote(s), err)
	}
	return f, nil
}
