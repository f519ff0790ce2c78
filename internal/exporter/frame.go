package exporter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Key columns of the long layout.
const (
	ColumnCid      = "cid"
	ColumnXcat     = "xcat"
	ColumnRealDate = "real_date"
)

// FrameHeaders returns the long-layout header for the given metrics.
func FrameHeaders(metrics []string) []string {
	return append([]string{ColumnCid, ColumnXcat, ColumnRealDate}, metrics...)
}

// FrameRecord renders one observation.
func FrameRecord(o qdf.Observation, metrics []string) []string {
	rec := make([]string, 0, 3+len(metrics))
	rec = append(rec, o.Cid, o.Xcat, qdf.FormatDate(o.RealDate))
	for _, m := range metrics {
		rec = append(rec, formatFloat(o.Metric(m)))
	}
	return rec
}

func checkMetrics(metrics []string) ([]string, error) {
	if len(metrics) == 0 {
		return []string{qdf.MetricValue}, nil
	}
	for _, m := range metrics {
		if !qdf.IsMetric(m) {
			return nil, apperrors.Validationf("unknown metric %q", m)
		}
	}
	return metrics, nil
}

// WriteFrameCSV writes f in the long layout. Metrics defaults to value.
func WriteFrameCSV(w io.Writer, f qdf.Frame, metrics []string) error {
	metrics, err := checkMetrics(metrics)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(FrameHeaders(metrics)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, o := range f {
		if err := cw.Write(FrameRecord(o, metrics)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFrame writes f to filePath through a stream writer.
func (w *CSVWriter) ExportFrame(filePath string, f qdf.Frame, metrics []string) error {
	metrics, err := checkMetrics(metrics)
	if err != nil {
		return err
	}
	sw, err := w.CreateStreamWriter(filePath, FrameHeaders(metrics))
	if err != nil {
		return err
	}
	for _, o := range f {
		if err := sw.WriteRecord(FrameRecord(o, metrics)); err != nil {
			sw.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return sw.Close()
}

// frameReader maps header positions to observation fields.
type frameReader struct {
	cid, xcat, date int
	metrics         map[string]int
}

func newFrameReader(header []string) (*frameReader, error) {
	r := &frameReader{cid: -1, xcat: -1, date: -1, metrics: map[string]int{}}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, string(bom))))
		switch {
		case h == ColumnCid:
			r.cid = i
		case h == ColumnXcat:
			r.xcat = i
		case h == ColumnRealDate:
			r.date = i
		case qdf.IsMetric(h):
			r.metrics[h] = i
		}
	}
	if r.cid < 0 || r.xcat < 0 || r.date < 0 {
		return nil, apperrors.NewInvalidDataframeError("frame must have cid, xcat and real_date columns")
	}
	if len(r.metrics) == 0 {
		return nil, apperrors.NewInvalidDataframeError("frame has no metric column")
	}
	return r, nil
}

func (r *frameReader) observation(row []string, line int) (qdf.Observation, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	date, err := qdf.ParseDate(cell(r.date))
	if err != nil || date.IsZero() {
		return qdf.Observation{}, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid real_date %q", line, cell(r.date)), err)
	}
	o := qdf.NewObservation(cell(r.cid), cell(r.xcat), date, math.NaN())
	for m, i := range r.metrics {
		v, err := parseFloat(cell(i))
		if err != nil {
			return qdf.Observation{}, fmt.Errorf("line %d: %w", line, err)
		}
		if err := o.SetMetric(m, v); err != nil {
			return qdf.Observation{}, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return o, nil
}

// ReadFrameCSV reads a long-layout frame. Unknown columns are ignored and
// missing metric columns are NaN.
func ReadFrameCSV(in io.Reader) (qdf.Frame, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewInvalidDataframeError("empty file")
		}
		return nil, apperrors.NewParsingError("read header", err)
	}
	r, err := newFrameReader(header)
	if err != nil {
		return nil, err
	}

	var out qdf.Frame
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d", line), err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		o, err := r.observation(row, line)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportFrame reads a CSV or XLSX file depending on its extension.
func ImportFrame(path string) (qdf.Frame, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return ReadXLSX(path)
	case ".csv", "":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer file.Close()
		return ReadFrameCSV(file)
	default:
		return nil, apperrors.Validationf("unsupported file type %s", ext)
	}
}
