package exporter

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// SheetName is the worksheet frames are written to.
const SheetName = "QDF"

// WriteXLSX writes f in the long layout to a single worksheet. NaN values
// are left blank.
func WriteXLSX(out io.Writer, f qdf.Frame, metrics []string) error {
	metrics, err := checkMetrics(metrics)
	if err != nil {
		return err
	}
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := book.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}
	header := make([]interface{}, 0, 3+len(metrics))
	for _, h := range FrameHeaders(metrics) {
		header = append(header, h)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, o := range f {
		row := make([]interface{}, 0, len(header))
		row = append(row, o.Cid, o.Xcat, qdf.FormatDate(o.RealDate))
		for _, m := range metrics {
			if v := o.Metric(m); !math.IsNaN(v) {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	_, err = book.WriteTo(out)
	return err
}

// ReadXLSX reads a frame from the QDF sheet, or the first sheet when there
// is none.
func ReadXLSX(path string) (qdf.Frame, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer book.Close()
	return readBook(book)
}

// ReadXLSXFrom reads a workbook from r.
func ReadXLSXFrom(r io.Reader) (qdf.Frame, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewParsingError("open workbook", err)
	}
	defer book.Close()
	return readBook(book)
}

func readBook(book *excelize.File) (qdf.Frame, error) {
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewInvalidDataframeError("workbook has no sheets")
	}
	sheet := sheets[0]
	for _, s := range sheets {
		if strings.EqualFold(s, SheetName) {
			sheet = s
		}
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError("read sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewInvalidDataframeError("sheet " + sheet + " is empty")
	}
	r, err := newFrameReader(rows[0])
	if err != nil {
		return nil, err
	}
	out := make(qdf.Frame, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		o, err := r.observation(row, i+2)
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

// SaveXLSX writes f to path, creating parent directories.
func SaveXLSX(path string, f qdf.Frame, metrics []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteXLSX(file, f, metrics); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
