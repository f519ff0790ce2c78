package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"macrosynergy/internal/qdf"
)

// WriteWideCSV writes a date-by-column matrix with a leading real_date
// column.
func WriteWideCSV(out io.Writer, w *qdf.Wide) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(append([]string{ColumnRealDate}, w.Columns...)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	rec := make([]string, w.Cols()+1)
	for i, d := range w.Dates {
		rec[0] = qdf.FormatDate(d)
		for j := range w.Columns {
			rec[j+1] = formatFloat(w.Values[i][j])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportWide writes the tickers of f for one metric as a wide CSV.
func (w *CSVWriter) ExportWide(filePath string, f qdf.Frame, metric string) error {
	if _, err := checkMetrics([]string{metric}); err != nil {
		return err
	}
	fullPath := w.Path(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteWideCSV(file, qdf.PivotTickers(f, metric)); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
