package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/store"
)

// Analysis kinds, used as metric labels and span names.
const (
	AnalysisZnScores        = "zn_scores"
	AnalysisLinearComposite = "linear_composite"
	AnalysisHistoricVol     = "historic_vol"
)

// AnalysisResult summarises a computed frame.
type AnalysisResult struct {
	Kind         string    `json:"kind"`
	Xcats        []string  `json:"xcats"`
	Tickers      []string  `json:"tickers"`
	Observations int       `json:"observations"`
	InputRows    int       `json:"input_rows"`
	Saved        bool      `json:"saved"`
	Duration     string    `json:"duration"`
	Frame        qdf.Frame `json:"-"`
}

// Summary is the result as a job result map.
func (r *AnalysisResult) Summary() map[string]interface{} {
	return map[string]interface{}{
		"kind":         r.Kind,
		"xcats":        r.Xcats,
		"tickers":      len(r.Tickers),
		"observations": r.Observations,
		"saved":        r.Saved,
	}
}

// AnalysisService runs panel computations over stored observations.
type AnalysisService struct {
	store   store.Store
	metrics *infrastructure.BusinessMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewAnalysisService creates the service. metrics may be nil.
func NewAnalysisService(st store.Store, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &AnalysisService{
		store:   st,
		metrics: metrics,
		tracer:  otel.Tracer("macrosynergy.services"),
		logger:  logger.With(slog.String("component", "analysis_service")),
	}
}

// ZnScores computes zn-scores for one category.
func (s *AnalysisService) ZnScores(ctx context.Context, req ZnScoreRequest) (*AnalysisResult, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}
	flt, err := req.Filter()
	if err != nil {
		return nil, err
	}
	opts.Logger = s.logger
	return s.run(ctx, AnalysisZnScores, flt, req.Save, func(f qdf.Frame) (qdf.Frame, error) {
		return panel.MakeZnScores(f, opts)
	})
}

// LinearComposite combines categories into a new one.
func (s *AnalysisService) LinearComposite(ctx context.Context, req CompositeRequest) (*AnalysisResult, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}
	flt, err := req.Filter()
	if err != nil {
		return nil, err
	}
	opts.Logger = s.logger
	return s.run(ctx, AnalysisLinearComposite, flt, req.Save, func(f qdf.Frame) (qdf.Frame, error) {
		return panel.LinearComposite(f, opts)
	})
}

// HistoricVol estimates annualised return volatility for one category.
func (s *AnalysisService) HistoricVol(ctx context.Context, req VolRequest) (*AnalysisResult, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}
	flt, err := req.Filter()
	if err != nil {
		return nil, err
	}
	opts.Logger = s.logger
	return s.run(ctx, AnalysisHistoricVol, flt, req.Save, func(f qdf.Frame) (qdf.Frame, error) {
		return panel.HistoricVol(f, opts)
	})
}

func (s *AnalysisService) run(ctx context.Context, kind string, flt store.Filter, save bool, compute func(qdf.Frame) (qdf.Frame, error)) (res *AnalysisResult, err error) {
	ctx, span := s.tracer.Start(ctx, "analysis."+kind,
		trace.WithAttributes(
			attribute.String("analysis.kind", kind),
			attribute.StringSlice("analysis.xcats", flt.Xcats),
		))
	start := time.Now()
	defer func() {
		infrastructure.RecordAnalysis(ctx, s.metrics, kind, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	input, err := s.store.Load(ctx, flt)
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, apperrors.NewNotFoundError("observations for " + strings.Join(flt.Xcats, ", "))
	}

	out, err := compute(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	res = &AnalysisResult{
		Kind:         kind,
		Xcats:        out.Xcats(),
		Tickers:      out.Tickers(),
		Observations: len(out),
		InputRows:    len(input),
		Frame:        out,
	}
	if save && len(out) > 0 {
		if err := s.store.Save(ctx, out); err != nil {
			return nil, err
		}
		infrastructure.RecordObservationsSaved(ctx, s.metrics, kind, len(out))
		res.Saved = true
	}
	res.Duration = time.Since(start).String()
	span.SetAttributes(attribute.Int("analysis.observations", len(out)))

	s.logger.InfoContext(ctx, "analysis complete",
		slog.String("kind", kind),
		slog.Int("input_rows", len(input)),
		slog.Int("observations", len(out)),
		slog.Bool("saved", res.Saved),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}
