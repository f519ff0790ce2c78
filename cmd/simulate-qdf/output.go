package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"macrosynergy/internal/exporter"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/simulate"
)

func (o commonOptions) dates() (time.Time, time.Time, error) {
	start, err := qdf.ParseDate(o.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := qdf.ParseDate(o.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", o.End, o.Start)
	}
	return start, end, nil
}

type arParams struct {
	Mean     float64
	SD       float64
	AR       float64
	BackCoef float64
	BackAR   float64
}

// specs gives every cid and xcat the full date range. Category moments
// carry the parameters; cross-sections are neutral.
func (p arParams) specs(o commonOptions) (map[string]simulate.CidSpec, map[string]simulate.XcatSpec, error) {
	start, end, err := o.dates()
	if err != nil {
		return nil, nil, err
	}
	cids := make(map[string]simulate.CidSpec, len(o.Cids))
	for _, cid := range o.Cids {
		cids[cid] = simulate.CidSpec{Earliest: start, Latest: end, SDMult: 1}
	}
	xcats := make(map[string]simulate.XcatSpec, len(o.Xcats))
	for _, xcat := range o.Xcats {
		xcats[xcat] = simulate.XcatSpec{
			Earliest: start,
			Latest:   end,
			MeanAdd:  p.Mean,
			SDMult:   p.SD,
			ARCoef:   p.AR,
			BackCoef: p.BackCoef,
		}
	}
	return cids, xcats, nil
}

// writeFrame writes to o.Output, or to stdout as CSV when no file is given.
func writeFrame(stdout io.Writer, f qdf.Frame, o commonOptions) error {
	if o.Wide != "" && !qdf.IsMetric(o.Wide) {
		return fmt.Errorf("--wide: unknown metric %q", o.Wide)
	}
	ext := strings.ToLower(filepath.Ext(o.Output))
	switch ext {
	case ".xlsx":
		if o.Wide != "" {
			return fmt.Errorf("--wide is only supported for CSV output")
		}
		return exporter.SaveXLSX(o.Output, f, nil)
	case "", ".csv":
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}

	out := stdout
	if o.Output != "" {
		if err := os.MkdirAll(filepath.Dir(o.Output), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		file, err := os.Create(o.Output)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		defer file.Close()
		out = file
	}
	if o.Wide != "" {
		return exporter.WriteWideCSV(out, qdf.PivotTickers(f, o.Wide))
	}
	return exporter.WriteFrameCSV(out, f, nil)
}
