// Command simulate-qdf writes synthetic quantamental data frames.
//
//	simulate-qdf lines --cids AUD,CAD --xcats XR,CRY --style sine -o lines.csv
//	simulate-qdf ar --cids AUD,CAD,GBP --xcats XR --ar 0.9 --back-coef 0.5 --wide value
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"macrosynergy/internal/simulate"
)

type commonOptions struct {
	Cids   []string
	Xcats  []string
	Start  string
	End    string
	Seed   uint64
	Output string
	Wide   string
}

func (o *commonOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&o.Cids, "cids", []string{"AUD", "CAD", "GBP", "USD"}, "cross-sections")
	f.StringSliceVar(&o.Xcats, "xcats", []string{"XR", "CRY"}, "categories")
	f.StringVar(&o.Start, "start", "2020-01-01", "first date (YYYY-MM-DD)")
	f.StringVar(&o.End, "end", "2020-12-31", "last date (YYYY-MM-DD)")
	f.Uint64Var(&o.Seed, "seed", 1, "random seed")
	f.StringVarP(&o.Output, "output", "o", "", "output file (.csv or .xlsx), stdout when empty")
	f.StringVar(&o.Wide, "wide", "", "write a wide CSV of this metric instead of the long layout")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simulate-qdf",
		Short:        "Generate synthetic quantamental data frames",
		SilenceUsage: true,
	}
	root.AddCommand(newLinesCmd(), newARCmd())
	return root
}

func newLinesCmd() *cobra.Command {
	var opts commonOptions
	var style string
	cmd := &cobra.Command{
		Use:   "lines",
		Short: "Fill every ticker with a deterministic line",
		Long: "Fill every ticker with a line of one style: " +
			strings.Join(append(simulate.Styles, simulate.StyleAny), ", ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := opts.dates()
			if err != nil {
				return err
			}
			frame, err := simulate.New(opts.Seed).MakeTestDF(opts.Cids, opts.Xcats, start, end, style)
			if err != nil {
				return err
			}
			return writeFrame(cmd.OutOrStdout(), frame, opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&style, "style", simulate.StyleLinear, "line style")
	return cmd
}

func newARCmd() *cobra.Command {
	var opts commonOptions
	var params arParams
	cmd := &cobra.Command{
		Use:   "ar",
		Short: "Simulate autoregressive series with an optional common factor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cids, xcats, err := params.specs(opts)
			if err != nil {
				return err
			}
			frame, err := simulate.New(opts.Seed).MakeQDF(cids, xcats, params.BackAR)
			if err != nil {
				return err
			}
			return writeFrame(cmd.OutOrStdout(), frame, opts)
		},
	}
	opts.bind(cmd)
	f := cmd.Flags()
	f.Float64Var(&params.Mean, "mean", 0, "mean of every series")
	f.Float64Var(&params.SD, "sd", 1, "standard deviation of every series")
	f.Float64Var(&params.AR, "ar", 0.5, "autocorrelation coefficient")
	f.Float64Var(&params.BackCoef, "back-coef", 0, "loading on the common background factor")
	f.Float64Var(&params.BackAR, "back-ar", 0.5, "autocorrelation of the background factor")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("simulate-qdf failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
