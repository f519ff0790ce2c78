package panel

import (
	"log/slog"
	"math"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// CompositeOptions configures LinearComposite. Nil Weights mean equal
// weights and nil Signs mean all positive.
type CompositeOptions struct {
	Xcats   []string
	Weights []float64
	Signs   []float64
	Cids    []string
	Start   time.Time
	End     time.Time
	// CompleteXcats only produces values on dates where every category is
	// present; otherwise weights are re-normalised over what is available.
	CompleteXcats bool
	NewXcat       string

	Logger *slog.Logger
}

// LinearComposite combines categories into a new one per cross-section and
// date as the signed, weighted average of the available categories.
func LinearComposite(f qdf.Frame, opts CompositeOptions) (qdf.Frame, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := len(opts.Xcats)
	if n == 0 {
		return nil, apperrors.NewAppValidationError("at least one category is required")
	}
	weights := opts.Weights
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
	}
	signs := opts.Signs
	if signs == nil {
		signs = make([]float64, n)
		for i := range signs {
			signs[i] = 1
		}
	}
	if len(weights) != n || len(signs) != n {
		return nil, apperrors.Validationf("xcats, weights and signs must have the same length (%d, %d, %d)", n, len(weights), len(signs))
	}

	total := 0.0
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, apperrors.Validationf("weights must be non-negative, got %v", weights)
		}
		total += w
	}
	if total == 0 {
		return nil, apperrors.NewAppValidationError("weights must not all be zero")
	}
	if math.Abs(total-1) > 1e-9 {
		logger.Warn("weights do not sum to 1, rescaling", slog.Float64("sum", total))
	}
	norm := make([]float64, n)
	for i, w := range weights {
		norm[i] = w / total
	}

	coerced := make([]float64, n)
	changed := false
	for i, s := range signs {
		switch {
		case s > 0:
			coerced[i] = 1
		case s < 0:
			coerced[i] = -1
		default:
			return nil, apperrors.Validationf("sign for %s must be non-zero", opts.Xcats[i])
		}
		if coerced[i] != s {
			changed = true
		}
	}
	if changed {
		logger.Warn("signs coerced to 1 or -1", slog.Any("signs", signs))
	}

	newXcat := opts.NewXcat
	if newXcat == "" {
		newXcat = "NEW"
	}

	sub := qdf.Reduce(f, qdf.Filter{Cids: opts.Cids, Xcats: opts.Xcats, Start: opts.Start, End: opts.End})
	type key struct {
		cid  string
		date time.Time
	}
	rows := make(map[key][]float64)
	pos := make(map[string]int, n)
	for i, x := range opts.Xcats {
		pos[x] = i
	}
	for _, o := range sub {
		k := key{o.Cid, o.RealDate}
		r, ok := rows[k]
		if !ok {
			r = nans(n)
			rows[k] = r
		}
		r[pos[o.Xcat]] = o.Value
	}

	out := make(qdf.Frame, 0, len(rows))
	for k, r := range rows {
		sum, wsum, complete := 0.0, 0.0, true
		for i, v := range r {
			if math.IsNaN(v) {
				complete = false
				continue
			}
			sum += norm[i] * coerced[i] * v
			wsum += norm[i]
		}
		if wsum == 0 || (opts.CompleteXcats && !complete) {
			continue
		}
		out = append(out, qdf.NewObservation(k.cid, newXcat, k.date, sum/wsum))
	}
	out.Sort()
	return out, nil
}
