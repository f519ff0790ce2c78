package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"macrosynergy/internal/qdf"
)

type obsKey struct {
	ticker string
	date   time.Time
}

// Memory is a concurrency-safe in-process store.
type Memory struct {
	mu   sync.RWMutex
	rows map[obsKey]qdf.Observation
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[obsKey]qdf.Observation)}
}

func (m *Memory) Save(_ context.Context, f qdf.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range f {
		o.RealDate = qdf.Truncate(o.RealDate)
		m.rows[obsKey{o.Ticker(), o.RealDate}] = o
	}
	return nil
}

func (m *Memory) Load(ctx context.Context, flt Filter) (qdf.Frame, error) {
	tickers, cids, xcats := set(flt.Tickers), set(flt.Cids), set(flt.Xcats)
	m.mu.RLock()
	out := make(qdf.Frame, 0, len(m.rows))
	for _, o := range m.rows {
		if flt.matches(o, tickers, cids, xcats) {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.Sort()
	return out, nil
}

func (m *Memory) Tickers(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	out := []string{}
	for k := range m.rows {
		if !seen[k.ticker] {
			seen[k.ticker] = true
			out = append(out, k.ticker)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Len returns the number of stored observations.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Memory) Close() error { return nil }
