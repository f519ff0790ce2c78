// Command jpmaqs-download fetches JPMaQS series from DataQuery and writes
// them as a quantamental data frame.
//
//	jpmaqs-download --cids USD,EUR --xcats FXXR_NSA --start 2020-01-01 -o fx.csv
//	jpmaqs-download --tickers USD_EQXR_NSA --metrics all -o eq.xlsx --upload
//	jpmaqs-download catalogue
//	jpmaqs-download heartbeat
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"macrosynergy/internal/config"
	"macrosynergy/internal/dataquery"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/jpmaqs"
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
		cfg.Logging.Output = "stdout"
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	paths, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	return &env{cfg: cfg, paths: paths, logger: logger}, nil
}

func (e *env) client() (*dataquery.Client, error) {
	client, err := jpmaqs.NewClient(e.cfg.DataQuery, e.paths, e.logger)
	if err != nil {
		return nil, fmt.Errorf("dataquery client: %w", err)
	}
	return client, nil
}

func newRootCmd() *cobra.Command {
	opts := downloadOptions{}
	root := &cobra.Command{
		Use:   "jpmaqs-download",
		Short: "Download JPMaQS quantamental data",
		Long: `Download JPMaQS series from the DataQuery API and write them as a
quantamental data frame (CSV or XLSX, long or wide), optionally saving them
to the configured store and uploading the file to S3.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.request(); err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			deps, cleanup, err := e.downloadDeps(cmd.Context(), client, opts)
			if err != nil {
				return err
			}
			defer cleanup()
			return runDownload(cmd.Context(), deps, opts, cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringSliceVar(&opts.Tickers, "tickers", nil, "tickers, e.g. USD_FXXR_NSA")
	f.StringSliceVar(&opts.Cids, "cids", nil, "cross-sections combined with --xcats")
	f.StringSliceVar(&opts.Xcats, "xcats", nil, "categories; without --cids the default JPMaQS cids are used")
	f.StringSliceVar(&opts.Metrics, "metrics", []string{"value"}, "value, grading, eop_lag, mop_lag or all")
	f.StringVar(&opts.Start, "start", "", "first date (YYYY-MM-DD), default 2000-01-01")
	f.StringVar(&opts.End, "end", "", "last date (YYYY-MM-DD), default today")
	f.StringVarP(&opts.Output, "output", "o", "", "output file (.csv or .xlsx); relative paths go under the exports directory")
	f.StringVar(&opts.Wide, "wide", "", "write a wide CSV of this metric instead of the long layout")
	f.BoolVar(&opts.Save, "save", false, "save the frame to the configured store")
	f.BoolVar(&opts.Upload, "upload", false, "upload the output file to the configured S3 bucket")

	root.AddCommand(newCatalogueCmd(), newHeartbeatCmd())
	return root
}

func newCatalogueCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "List the tickers of a DataQuery group",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			tickers, err := client.Catalogue(cmd.Context(), group)
			if err != nil {
				return err
			}
			for _, t := range tickers {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", dataquery.JPMaQSGroupID, "DataQuery group id")
	return cmd
}

func newHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Check that DataQuery accepts the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			if err := client.Heartbeat(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DataQuery at %s is reachable\n", client.BaseURL())
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("jpmaqs-download failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
