package testutil

import (
	"math"
	"testing"
)

// AssertFloatsNear compares two float slices element-wise, treating NaN as
// equal to NaN.
func AssertFloatsNear(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length mismatch: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if math.IsNaN(w) || math.IsNaN(g) {
			if math.IsNaN(w) != math.IsNaN(g) {
				t.Errorf("index %d: want %v, got %v", i, w, g)
			}
			continue
		}
		if math.Abs(w-g) > tol {
			t.Errorf("index %d: want %v, got %v (tol %v)", i, w, g, tol)
		}
	}
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
