// Package store persists quantamental observations. Memory keeps them in
// process; Postgres archives them in a PostgreSQL table through gorm.
package store

import (
	"context"
	"log/slog"
	"time"

	"macrosynergy/internal/config"
	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Filter selects stored observations. Empty fields match everything.
type Filter struct {
	Tickers []string
	Cids    []string
	Xcats   []string
	Start   time.Time
	End     time.Time
}

// Store saves and queries observations. Saving an observation that already
// exists for its ticker and date replaces it.
type Store interface {
	Save(ctx context.Context, f qdf.Frame) error
	Load(ctx context.Context, flt Filter) (qdf.Frame, error)
	Tickers(ctx context.Context) ([]string, error)
	Close() error
}

// New opens the store selected by cfg.
func New(cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		return Connect(cfg.DSN, logger)
	}
	return nil, apperrors.NewConfigError("unknown store driver "+cfg.Driver, nil)
}

func (flt Filter) matches(o qdf.Observation, tickers, cids, xcats map[string]bool) bool {
	if len(tickers) > 0 && !tickers[o.Ticker()] {
		return false
	}
	if len(cids) > 0 && !cids[o.Cid] {
		return false
	}
	if len(xcats) > 0 && !xcats[o.Xcat] {
		return false
	}
	if !flt.Start.IsZero() && o.RealDate.Before(flt.Start) {
		return false
	}
	if !flt.End.IsZero() && o.RealDate.After(flt.End) {
		return false
	}
	return true
}

func set(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
