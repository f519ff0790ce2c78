// Package learning holds panel-aware model selection tools: time series
// splitters over (cid, date) samples and feature selectors.
package learning

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// PanelKey identifies one sample of a panel.
type PanelKey struct {
	Cid      string
	RealDate time.Time
}

// Dataset is a feature matrix and target vector over panel samples ordered
// by cid and date. Rows never contain NaN.
type Dataset struct {
	Index    []PanelKey
	Features []string
	X        *mat.Dense
	Y        []float64
}

// NewDataset pivots the features and the target of f into a Dataset,
// keeping only samples where all of them are present. The target may be
// empty for feature-only data.
func NewDataset(f qdf.Frame, features []string, target string, cids []string) (*Dataset, error) {
	if len(features) == 0 {
		return nil, apperrors.NewAppValidationError("at least one feature is required")
	}
	xcats := append([]string(nil), features...)
	if target != "" {
		xcats = append(xcats, target)
	}
	sub := qdf.Reduce(f, qdf.Filter{Cids: cids, Xcats: xcats})

	pos := make(map[string]int, len(xcats))
	for i, x := range xcats {
		pos[x] = i
	}
	rows := make(map[PanelKey][]float64)
	for _, o := range sub {
		k := PanelKey{o.Cid, o.RealDate}
		r, ok := rows[k]
		if !ok {
			r = make([]float64, len(xcats))
			for i := range r {
				r[i] = math.NaN()
			}
			rows[k] = r
		}
		r[pos[o.Xcat]] = o.Value
	}

	keys := make([]PanelKey, 0, len(rows))
	for k, r := range rows {
		complete := true
		for _, v := range r {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, apperrors.NewAppValidationError("no complete samples for the requested categories")
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Cid != keys[j].Cid {
			return keys[i].Cid < keys[j].Cid
		}
		return keys[i].RealDate.Before(keys[j].RealDate)
	})

	d := &Dataset{
		Index:    keys,
		Features: append([]string(nil), features...),
		X:        mat.NewDense(len(keys), len(features), nil),
	}
	if target != "" {
		d.Y = make([]float64, len(keys))
	}
	for i, k := range keys {
		r := rows[k]
		for j := range features {
			d.X.Set(i, j, r[j])
		}
		if target != "" {
			d.Y[i] = r[len(features)]
		}
	}
	return d, nil
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int { return len(d.Index) }

// Subset returns the samples at the given row positions.
func (d *Dataset) Subset(rows []int) *Dataset {
	out := &Dataset{
		Index:    make([]PanelKey, len(rows)),
		Features: d.Features,
		X:        mat.NewDense(max(len(rows), 1), len(d.Features), nil),
	}
	if d.Y != nil {
		out.Y = make([]float64, len(rows))
	}
	for k, i := range rows {
		out.Index[k] = d.Index[i]
		out.X.SetRow(k, d.X.RawRowView(i))
		if d.Y != nil {
			out.Y[k] = d.Y[i]
		}
	}
	return out
}

// Columns returns a dataset restricted to the named features.
func (d *Dataset) Columns(names []string) (*Dataset, error) {
	idx := make([]int, len(names))
	for k, n := range names {
		idx[k] = -1
		for j, f := range d.Features {
			if f == n {
				idx[k] = j
			}
		}
		if idx[k] < 0 {
			return nil, apperrors.Validationf("feature %s not in dataset", n)
		}
	}
	out := &Dataset{
		Index:    d.Index,
		Features: append([]string(nil), names...),
		Y:        d.Y,
	}
	if len(names) == 0 {
		return out, nil
	}
	out.X = mat.NewDense(d.Rows(), len(names), nil)
	for i := 0; i < d.Rows(); i++ {
		for k, j := range idx {
			out.X.Set(i, k, d.X.At(i, j))
		}
	}
	return out, nil
}

// dates returns the sorted unique sample dates.
func dates(index []PanelKey) []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, k := range index {
		if !seen[k.RealDate] {
			seen[k.RealDate] = true
			out = append(out, k.RealDate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// rowsBetween returns the positions of samples dated within [from, to].
func rowsBetween(index []PanelKey, from, to time.Time) []int {
	var out []int
	for i, k := range index {
		if !k.RealDate.Before(from) && !k.RealDate.After(to) {
			out = append(out, i)
		}
	}
	return out
}
