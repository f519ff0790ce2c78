package panel

import (
	"container/heap"
	"math"
	"sort"
)

// nanMean averages the non-NaN values, NaN when there are none.
func nanMean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// nanMedian returns the median of the non-NaN values, averaging the two
// middle values for even counts.
func nanMedian(values []float64) float64 {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	sort.Float64s(valid)
	mid := len(valid) / 2
	if len(valid)%2 == 0 {
		return (valid[mid-1] + valid[mid]) / 2
	}
	return valid[mid]
}

// validValues drops NaN entries.
func validValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// winsorize clips v to [-thresh, thresh]; thresh 0 disables clipping.
func winsorize(v, thresh float64) float64 {
	if thresh <= 0 || math.IsNaN(v) {
		return v
	}
	return math.Max(-thresh, math.Min(thresh, v))
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// float heaps for the running median
type minHeap []float64

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

type maxHeap struct{ minHeap }

func (h maxHeap) Less(i, j int) bool { return h.minHeap[i] > h.minHeap[j] }

// runningMedian keeps the lower half in a max-heap and the upper half in a
// min-heap so that inserts are O(log n).
type runningMedian struct {
	lo maxHeap
	hi minHeap
}

func (r *runningMedian) Add(v float64) {
	if r.lo.Len() == 0 || v <= r.lo.minHeap[0] {
		heap.Push(&r.lo, v)
	} else {
		heap.Push(&r.hi, v)
	}
	if r.lo.Len() > r.hi.Len()+1 {
		heap.Push(&r.hi, heap.Pop(&r.lo))
	} else if r.hi.Len() > r.lo.Len() {
		heap.Push(&r.lo, heap.Pop(&r.hi))
	}
}

func (r *runningMedian) Len() int { return r.lo.Len() + r.hi.Len() }

func (r *runningMedian) Median() float64 {
	switch {
	case r.Len() == 0:
		return math.NaN()
	case r.lo.Len() > r.hi.Len():
		return r.lo.minHeap[0]
	default:
		return (r.lo.minHeap[0] + r.hi[0]) / 2
	}
}
