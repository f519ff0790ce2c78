package jpmaqs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"macrosynergy/internal/dataquery"
	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Source fetches raw DataQuery series. *dataquery.Client implements it.
type Source interface {
	Download(ctx context.Context, req dataquery.DownloadRequest) ([]dataquery.TimeSeries, error)
}

// Request selects the data to download. Tickers are combined with the
// Cids x Xcats product; Metrics defaults to value.
type Request struct {
	Tickers []string
	Cids    []string
	Xcats   []string
	Metrics []string
	Start   time.Time
	End     time.Time
}

// Result is the assembled frame plus the expressions that came back empty.
type Result struct {
	Frame       qdf.Frame
	Unavailable []string
}

// Downloader assembles JPMaQS quantamental data frames.
type Downloader struct {
	source Source
	logger *slog.Logger
}

// NewDownloader wraps a Source.
func NewDownloader(source Source, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{source: source, logger: logger.With(slog.String("component", "jpmaqs"))}
}

// Expressions lists the DataQuery expressions a request expands to.
func (r Request) Expressions() ([]string, error) {
	metrics := r.Metrics
	if len(metrics) == 0 {
		metrics = []string{qdf.MetricValue}
	}
	return ConstructExpressions(r.Tickers, r.Cids, r.Xcats, metrics)
}

// Download fetches every requested series and returns them as a frame sorted
// by cid, xcat and date. Weekend observations are dropped.
func (d *Downloader) Download(ctx context.Context, req Request) (*Result, error) {
	exprs, err := req.Expressions()
	if err != nil {
		return nil, err
	}
	series, err := d.source.Download(ctx, dataquery.DownloadRequest{
		Expressions: exprs,
		StartDate:   req.Start,
		EndDate:     req.End,
	})
	if err != nil {
		return nil, fmt.Errorf("download jpmaqs: %w", err)
	}

	frame, err := Assemble(series)
	if err != nil {
		return nil, err
	}
	unavailable := dataquery.UnavailableExpressions(exprs, series)
	if len(unavailable) > 0 {
		d.logger.WarnContext(ctx, "series missing from the database",
			slog.Int("count", len(unavailable)), slog.Any("expressions", unavailable))
	}
	if len(frame) == 0 {
		return nil, apperrors.NewInvalidDataframeError("no data returned from DataQuery")
	}
	d.logger.InfoContext(ctx, "jpmaqs download complete",
		slog.Int("expressions", len(exprs)),
		slog.Int("tickers", len(frame.Tickers())),
		slog.Int("observations", len(frame)))
	return &Result{Frame: frame, Unavailable: unavailable}, nil
}

// Assemble merges per-metric series into observations. A ticker's rows are
// the union of the dates its metrics carry; metrics absent on a date are NaN.
// Expressions that are not JPMaQS expressions are an error.
func Assemble(series []dataquery.TimeSeries) (qdf.Frame, error) {
	type key struct {
		ticker string
		date   time.Time
	}
	rows := make(map[key]*qdf.Observation)
	for _, ts := range series {
		if ts.Empty() {
			continue
		}
		ticker, metric, err := Deconstruct(ts.Expression)
		if err != nil {
			return nil, err
		}
		if !qdf.IsMetric(metric) {
			return nil, apperrors.Validationf("unknown metric in %s", ts.Expression)
		}
		cid, xcat, err := qdf.SplitTicker(ticker)
		if err != nil {
			return nil, err
		}
		for i, d := range ts.Dates {
			d = qdf.Truncate(d)
			if !qdf.IsBusinessDay(d) {
				continue
			}
			k := key{ticker, d}
			o, ok := rows[k]
			if !ok {
				obs := qdf.NewObservation(cid, xcat, d, math.NaN())
				o = &obs
				rows[k] = o
			}
			if err := o.SetMetric(metric, ts.Values[i]); err != nil {
				return nil, err
			}
		}
	}

	out := make(qdf.Frame, 0, len(rows))
	for _, o := range rows {
		out = append(out, *o)
	}
	out.Sort()
	return out, nil
}
