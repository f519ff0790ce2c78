package signal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Statistic names of a RelationStats row.
const (
	StatAccuracy         = "accuracy"
	StatBalancedAccuracy = "bal_accuracy"
	StatPosSigr          = "pos_sigr"
	StatPosRetr          = "pos_retr"
	StatPosPrec          = "pos_prec"
	StatNegPrec          = "neg_prec"
	StatPearson          = "pearson"
	StatPearsonPval      = "pearson_pval"
	StatKendall          = "kendall"
	StatKendallPval      = "kendall_pval"
)

// Statistics lists the statistic names in table order.
var Statistics = []string{
	StatAccuracy, StatBalancedAccuracy, StatPosSigr, StatPosRetr, StatPosPrec,
	StatNegPrec, StatPearson, StatPearsonPval, StatKendall, StatKendallPval,
}

// RelationStats summarises how a signal relates to subsequent returns.
type RelationStats struct {
	Ret    string
	Sig    string
	Freq   string
	AggSig string
	Obs    int

	Accuracy         float64
	BalancedAccuracy float64
	PosSigr          float64
	PosRetr          float64
	PosPrec          float64
	NegPrec          float64
	Pearson          float64
	PearsonPval      float64
	Kendall          float64
	KendallPval      float64
}

// Stat returns the named statistic.
func (r RelationStats) Stat(name string) (float64, bool) {
	switch name {
	case StatAccuracy:
		return r.Accuracy, true
	case StatBalancedAccuracy:
		return r.BalancedAccuracy, true
	case StatPosSigr:
		return r.PosSigr, true
	case StatPosRetr:
		return r.PosRetr, true
	case StatPosPrec:
		return r.PosPrec, true
	case StatNegPrec:
		return r.NegPrec, true
	case StatPearson:
		return r.Pearson, true
	case StatPearsonPval:
		return r.PearsonPval, true
	case StatKendall:
		return r.Kendall, true
	case StatKendallPval:
		return r.KendallPval, true
	}
	return math.NaN(), false
}

// relationStats computes the statistics of paired signal and return
// observations. Positive means strictly above zero.
func relationStats(sig, ret []float64) RelationStats {
	n := len(sig)
	r := RelationStats{Obs: n}
	if n == 0 {
		nan := math.NaN()
		r.Accuracy, r.BalancedAccuracy, r.PosSigr, r.PosRetr = nan, nan, nan, nan
		r.PosPrec, r.NegPrec, r.Pearson, r.PearsonPval = nan, nan, nan, nan
		r.Kendall, r.KendallPval = nan, nan
		return r
	}

	var tp, tn, fp, fn float64
	for i := range sig {
		ps, pr := sig[i] > 0, ret[i] > 0
		switch {
		case ps && pr:
			tp++
		case ps && !pr:
			fp++
		case !ps && pr:
			fn++
		default:
			tn++
		}
	}
	total := float64(n)
	r.Accuracy = (tp + tn) / total
	r.PosSigr = (tp + fp) / total
	r.PosRetr = (tp + fn) / total
	r.PosPrec = ratio(tp, tp+fp)
	r.NegPrec = ratio(tn, tn+fn)
	r.BalancedAccuracy = (ratio(tp, tp+fn) + ratio(tn, tn+fp)) / 2

	r.Pearson, r.PearsonPval = pearson(sig, ret)
	r.Kendall, r.KendallPval = kendallTauB(sig, ret)
	return r
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// pearson returns the correlation and its two-sided p-value from the t
// distribution with n-2 degrees of freedom.
func pearson(x, y []float64) (float64, float64) {
	n := len(x)
	if n < 3 {
		return math.NaN(), math.NaN()
	}
	rho := stat.Correlation(x, y, nil)
	if math.IsNaN(rho) {
		return rho, math.NaN()
	}
	if math.Abs(rho) >= 1 {
		return rho, 0
	}
	dof := float64(n - 2)
	t := rho * math.Sqrt(dof/(1-rho*rho))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	return rho, 2 * dist.Survival(math.Abs(t))
}

// kendallTauB returns Kendall's tau-b and the two-sided p-value of its
// normal approximation under independence. Discordant pairs are counted as
// inversions of a merge sort (Knight's algorithm), O(n log n).
func kendallTauB(x, y []float64) (float64, float64) {
	n := len(x)
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if x[i] != x[j] {
			return x[i] < x[j]
		}
		return y[i] < y[j]
	})

	// Pairs tied in x, and pairs tied in both x and y.
	var tiedX, tiedXY float64
	runX, runXY := 1, 1
	for k := 1; k < n; k++ {
		i, j := idx[k-1], idx[k]
		switch {
		case x[i] != x[j]:
			tiedX += pairs(runX)
			tiedXY += pairs(runXY)
			runX, runXY = 1, 1
		case y[i] != y[j]:
			runX++
			tiedXY += pairs(runXY)
			runXY = 1
		default:
			runX++
			runXY++
		}
	}
	tiedX += pairs(runX)
	tiedXY += pairs(runXY)

	ys := make([]float64, n)
	for k, i := range idx {
		ys[k] = y[i]
	}
	swaps := countInversions(ys, make([]float64, n))

	var tiedY float64
	run := 1
	for k := 1; k < n; k++ {
		if ys[k] == ys[k-1] {
			run++
			continue
		}
		tiedY += pairs(run)
		run = 1
	}
	tiedY += pairs(run)

	total := pairs(n)
	denom := math.Sqrt((total - tiedX) * (total - tiedY))
	if denom == 0 {
		return math.NaN(), math.NaN()
	}
	tau := (total - tiedX - tiedY + tiedXY - 2*swaps) / denom
	nf := float64(n)
	z := 3 * tau * math.Sqrt(nf*(nf-1)) / math.Sqrt(2*(2*nf+5))
	norm := distuv.UnitNormal
	return tau, 2 * norm.Survival(math.Abs(z))
}

func pairs(n int) float64 {
	return float64(n) * float64(n-1) / 2
}

// countInversions sorts a in place, using buf as scratch, and returns the
// number of pairs i < j with a[i] > a[j].
func countInversions(a, buf []float64) float64 {
	n := len(a)
	if n < 2 {
		return 0
	}
	mid := n / 2
	inv := countInversions(a[:mid], buf[:mid]) + countInversions(a[mid:], buf[mid:])
	i, j, k := 0, mid, 0
	for i < mid && j < n {
		if a[j] < a[i] {
			buf[k] = a[j]
			inv += float64(mid - i)
			j++
		} else {
			buf[k] = a[i]
			i++
		}
		k++
	}
	k += copy(buf[k:], a[i:mid])
	copy(buf[k:], a[j:])
	copy(a, buf[:n])
	return inv
}
