package panel

import (
	"math"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// convergeMargin is the tolerance above the maximum weight accepted as
// converged.
const convergeMargin = 0.001

const maxConvergeIterations = 10_000

// ConvergeRow caps the weights of a row at maxWeight and spreads the excess
// evenly over the active (non-NaN) entries until no weight exceeds
// maxWeight by more than the margin. The row should sum to one.
func ConvergeRow(row []float64, maxWeight float64) []float64 {
	out := append([]float64(nil), row...)
	active := 0
	for _, v := range out {
		if !math.IsNaN(v) {
			active++
		}
	}
	if active == 0 {
		return out
	}

	for iter := 0; iter < maxConvergeIterations; iter++ {
		var over []int
		for i, v := range out {
			if v-maxWeight > convergeMargin {
				over = append(over, i)
			}
		}
		if len(over) == 0 {
			break
		}
		var excess float64
		if len(over) == 1 {
			k := over[0]
			excess = out[k] - maxWeight
			out[k] = maxWeight
		} else {
			for _, k := range over {
				out[k] = maxWeight
			}
			sum := 0.0
			for _, v := range out {
				if !math.IsNaN(v) {
					sum += v
				}
			}
			excess = 1 - sum
		}
		share := excess / float64(active)
		for i, v := range out {
			if !math.IsNaN(v) {
				out[i] = v + share
			}
		}
	}
	return out
}

// MaxWeight applies the weight cap to every row of a weight matrix. Rows
// where equal weighting already exceeds the cap receive equal weights.
func MaxWeight(w *qdf.Wide, maxWeight float64) (*qdf.Wide, error) {
	if maxWeight <= 0 || maxWeight > 1 {
		return nil, apperrors.Validationf("max_weight must be in (0, 1], got %v", maxWeight)
	}
	out := w.Clone()
	for i, row := range out.Values {
		active := 0
		exceeds := false
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			active++
			if v > maxWeight {
				exceeds = true
			}
		}
		switch {
		case active == 0:
		case 1/float64(active) > maxWeight:
			for j, v := range row {
				if !math.IsNaN(v) {
					row[j] = 1 / float64(active)
				}
			}
		case exceeds:
			out.Values[i] = ConvergeRow(row, maxWeight)
		}
	}
	return out, nil
}
