package qdf

import (
	apperrors "macrosynergy/internal/errors"
)

// ApplySlip lags the tickers formed by cids x xcats by slip observations:
// each value moves slip rows later within its ticker and the first slip
// rows become NaN. Other tickers are returned unchanged.
func ApplySlip(f Frame, slip int, cids, xcats []string) (Frame, error) {
	if slip < 0 {
		return nil, apperrors.Validationf("slip must be a non-negative integer, got %d", slip)
	}
	targets := make(map[string]bool, len(cids)*len(xcats))
	for _, cid := range cids {
		for _, xcat := range xcats {
			targets[Ticker(cid, xcat)] = true
		}
	}
	groups := GroupByTicker(f)
	for t := range targets {
		if _, ok := groups[t]; !ok {
			return nil, apperrors.Validationf("ticker %s targeted for slippage is not in the frame", t)
		}
	}
	if slip == 0 {
		out := f.Clone()
		out.Sort()
		return out, nil
	}

	out := make(Frame, 0, len(f))
	for t, g := range groups {
		if !targets[t] {
			out = append(out, g...)
			continue
		}
		shifted := g.Clone()
		for i := range shifted {
			if i < slip {
				shifted[i].clearMetrics()
				continue
			}
			shifted[i].copyMetrics(g[i-slip])
		}
		out = append(out, shifted...)
	}
	out.Sort()
	return out, nil
}
