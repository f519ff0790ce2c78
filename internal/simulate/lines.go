package simulate

import (
	"math"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Line styles for MakeTestDF.
const (
	StyleLinear           = "linear"
	StyleDecreasingLinear = "decreasing-linear"
	StyleSharpHill        = "sharp-hill"
	StyleFourBitSine      = "four-bit-sine"
	StyleSine             = "sine"
	StyleAny              = "any"
)

// Styles lists the deterministic line styles.
var Styles = []string{StyleLinear, StyleDecreasingLinear, StyleSharpHill, StyleFourBitSine, StyleSine}

func normalizeStyle(style string) string {
	return strings.Join(strings.Fields(strings.ToLower(style)), "-")
}

// Lines returns n values of an easily recognisable shape scaled to (0, 100].
func Lines(n int, style string) ([]float64, error) {
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	scale := 100 / float64(n)
	q := n / 4
	switch normalizeStyle(style) {
	case StyleLinear:
		for i := range out {
			out[i] = float64(i+1) * scale
		}
	case StyleDecreasingLinear:
		for i := range out {
			out[i] = float64(n-i) * scale
		}
	case StyleSharpHill:
		// Climb to n/4, jump to 3n/4 and fall back to n/4, then climb from
		// 3n/4 to the end.
		seg := make([]float64, 0, n+2)
		for v := 1; v <= q; v++ {
			seg = append(seg, float64(v))
		}
		for v := 3 * q; v >= q; v-- {
			seg = append(seg, float64(v))
		}
		for v := 3 * q; v <= n; v++ {
			seg = append(seg, float64(v))
		}
		for i := range out {
			out[i] = seg[i] * scale
		}
	case StyleFourBitSine:
		// Sine quantised to 16 levels.
		for i := range out {
			s := math.Sin(float64(i+1)*math.Pi/(float64(n)/2))*50 + 50
			out[i] = math.Round(s/100*15) * 100 / 15
		}
	case StyleSine:
		for i := range out {
			out[i] = math.Sin(float64(i+1)*math.Pi/(float64(n)/2))*50 + 50
		}
	default:
		return nil, apperrors.Validationf("unknown line style %q", style)
	}
	return out, nil
}

// MakeTestDF fills every cid x xcat ticker over the business days of
// [start, end] with a line of the given style. StyleAny picks one style at
// random for the whole frame.
func (s *Simulator) MakeTestDF(cids, xcats []string, start, end time.Time, style string) (qdf.Frame, error) {
	if normalizeStyle(style) == StyleAny {
		style = Styles[s.rng.IntN(len(Styles))]
	}
	days := qdf.BusinessDays(start, end)
	vals, err := Lines(len(days), style)
	if err != nil {
		return nil, err
	}
	out := make(qdf.Frame, 0, len(cids)*len(xcats)*len(days))
	for _, cid := range cids {
		for _, xcat := range xcats {
			for i, d := range days {
				out = append(out, qdf.NewObservation(cid, xcat, d, vals[i]))
			}
		}
	}
	out.Sort()
	return out, nil
}
