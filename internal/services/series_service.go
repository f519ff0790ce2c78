package services

import (
	"context"
	"log/slog"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/store"
)

// SeriesService reads stored observations.
type SeriesService struct {
	store  store.Store
	logger *slog.Logger
}

// NewSeriesService creates a series service.
func NewSeriesService(st store.Store, logger *slog.Logger) *SeriesService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &SeriesService{store: st, logger: logger.With(slog.String("component", "series_service"))}
}

// Series returns one entry per stored ticker matching q.
func (s *SeriesService) Series(ctx context.Context, q SeriesQuery) ([]Series, error) {
	if len(q.Tickers) == 0 && len(q.Cids) == 0 && len(q.Xcats) == 0 {
		return nil, apperrors.NewAppValidationError("tickers, cids or xcats are required")
	}
	flt, err := q.Filter()
	if err != nil {
		return nil, err
	}
	f, err := s.store.Load(ctx, flt)
	if err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return nil, apperrors.NewNotFoundError("series")
	}
	out := ToSeries(f, q.Metric)
	s.logger.DebugContext(ctx, "series loaded",
		slog.Int("tickers", len(out)),
		slog.Int("observations", len(f)))
	return out, nil
}

// Tickers lists every stored ticker.
func (s *SeriesService) Tickers(ctx context.Context) ([]string, error) {
	return s.store.Tickers(ctx)
}
