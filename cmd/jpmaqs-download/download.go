package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"macrosynergy/internal/exporter"
	"macrosynergy/internal/jpmaqs"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/services"
	"macrosynergy/internal/store"
)

type downloadOptions struct {
	Tickers []string
	Cids    []string
	Xcats   []string
	Metrics []string
	Start   string
	End     string
	Output  string
	Wide    string
	Save    bool
	Upload  bool
}

// request validates the flags through the same DTO the HTTP API uses.
func (o downloadOptions) request() (jpmaqs.Request, error) {
	dto := services.DownloadRequest{
		Tickers:   o.Tickers,
		Cids:      o.Cids,
		Xcats:     o.Xcats,
		Metrics:   o.Metrics,
		DateRange: services.DateRange{Start: o.Start, End: o.End},
	}
	req, err := dto.JPMaQS()
	if err != nil {
		return req, err
	}
	if o.Upload && o.Output == "" {
		return req, fmt.Errorf("--upload requires --output")
	}
	if o.Wide != "" && !qdf.IsMetric(o.Wide) {
		return req, fmt.Errorf("--wide: unknown metric %q", o.Wide)
	}
	switch ext := strings.ToLower(filepath.Ext(o.Output)); ext {
	case "", ".csv":
	case ".xlsx":
		if o.Wide != "" {
			return req, fmt.Errorf("--wide is only supported for CSV output")
		}
	default:
		return req, fmt.Errorf("unsupported output format %q", ext)
	}
	return req, nil
}

type uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

type downloadDeps struct {
	downloader *jpmaqs.Downloader
	files      *exporter.CSVWriter
	store      store.Store
	uploader   uploader
	logger     *slog.Logger
}

func (e *env) downloadDeps(ctx context.Context, source jpmaqs.Source, opts downloadOptions) (downloadDeps, func(), error) {
	deps := downloadDeps{
		downloader: jpmaqs.NewDownloader(source, e.logger),
		files:      exporter.NewCSVWriter(e.paths),
		logger:     e.logger,
	}
	cleanup := func() {}
	if opts.Save {
		st, err := store.New(e.cfg.Store, e.logger)
		if err != nil {
			return deps, cleanup, err
		}
		deps.store = st
		cleanup = func() { st.Close() }
	}
	if opts.Upload {
		if e.cfg.Export.S3Bucket == "" {
			return deps, cleanup, fmt.Errorf("--upload needs MSY_EXPORT_S3_BUCKET")
		}
		up, err := exporter.NewS3Uploader(ctx, exporter.S3Config{
			Bucket: e.cfg.Export.S3Bucket,
			Prefix: e.cfg.Export.S3Prefix,
			Region: e.cfg.Export.S3Region,
		})
		if err != nil {
			return deps, cleanup, err
		}
		deps.uploader = up
	}
	return deps, cleanup, nil
}

// runDownload downloads, then saves, writes and uploads as requested, and
// prints a one-line summary per step to out.
func runDownload(ctx context.Context, deps downloadDeps, opts downloadOptions, out io.Writer) error {
	req, err := opts.request()
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := deps.downloader.Download(ctx, req)
	if err != nil {
		return err
	}
	f := res.Frame
	fmt.Fprintf(out, "downloaded %d observations for %d tickers in %s\n",
		len(f), len(f.Tickers()), time.Since(started).Round(time.Millisecond))
	for _, expr := range res.Unavailable {
		fmt.Fprintf(out, "unavailable: %s\n", expr)
	}

	if deps.store != nil {
		if err := deps.store.Save(ctx, f); err != nil {
			return fmt.Errorf("save frame: %w", err)
		}
		fmt.Fprintf(out, "saved %d observations\n", len(f))
	}

	if opts.Output == "" {
		return nil
	}
	path := deps.files.Path(opts.Output)
	switch {
	case strings.EqualFold(filepath.Ext(path), ".xlsx"):
		err = exporter.SaveXLSX(path, f, req.Metrics)
	case opts.Wide != "":
		err = deps.files.ExportWide(path, f, opts.Wide)
	default:
		err = deps.files.ExportFrame(path, f, req.Metrics)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "wrote %s\n", path)

	if opts.Upload {
		if deps.uploader == nil {
			return fmt.Errorf("no S3 uploader configured")
		}
		key, err := deps.uploader.UploadFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "uploaded s3 key %s\n", key)
	}
	deps.logger.InfoContext(ctx, "download finished",
		slog.Int("observations", len(f)),
		slog.String("output", path))
	return nil
}
