package qdf

import (
	"math"
	"slices"
	"time"
)

// Wide is a date-by-column matrix. Values[i][j] holds column j on Dates[i];
// NaN marks a missing observation.
type Wide struct {
	Dates   []time.Time
	Columns []string
	Values  [][]float64
}

// NewWide allocates a NaN-filled matrix.
func NewWide(dates []time.Time, columns []string) *Wide {
	values := make([][]float64, len(dates))
	for i := range values {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}
	return &Wide{
		Dates:   slices.Clone(dates),
		Columns: slices.Clone(columns),
		Values:  values,
	}
}

// Rows returns the number of dates.
func (w *Wide) Rows() int { return len(w.Dates) }

// Cols returns the number of columns.
func (w *Wide) Cols() int { return len(w.Columns) }

// ColumnIndex returns the position of name, or -1.
func (w *Wide) ColumnIndex(name string) int {
	return slices.Index(w.Columns, name)
}

// Col returns a copy of column j.
func (w *Wide) Col(j int) []float64 {
	out := make([]float64, len(w.Dates))
	for i := range w.Values {
		out[i] = w.Values[i][j]
	}
	return out
}

// Column returns a copy of the named column, nil if absent.
func (w *Wide) Column(name string) []float64 {
	j := w.ColumnIndex(name)
	if j < 0 {
		return nil
	}
	return w.Col(j)
}

// SetCol overwrites column j.
func (w *Wide) SetCol(j int, vals []float64) {
	for i := range w.Values {
		w.Values[i][j] = vals[i]
	}
}

// AddColumn appends a column and returns its index.
func (w *Wide) AddColumn(name string, vals []float64) int {
	w.Columns = append(w.Columns, name)
	for i := range w.Values {
		v := math.NaN()
		if vals != nil {
			v = vals[i]
		}
		w.Values[i] = append(w.Values[i], v)
	}
	return len(w.Columns) - 1
}

// Clone deep-copies the matrix.
func (w *Wide) Clone() *Wide {
	out := &Wide{
		Dates:   slices.Clone(w.Dates),
		Columns: slices.Clone(w.Columns),
		Values:  make([][]float64, len(w.Values)),
	}
	for i, row := range w.Values {
		out.Values[i] = slices.Clone(row)
	}
	return out
}

// Select returns the listed columns in the given order; missing columns are
// NaN.
func (w *Wide) Select(columns []string) *Wide {
	out := NewWide(w.Dates, columns)
	for k, c := range columns {
		j := w.ColumnIndex(c)
		if j < 0 {
			continue
		}
		for i := range w.Values {
			out.Values[i][k] = w.Values[i][j]
		}
	}
	return out
}

// Reindex maps the matrix onto dates; dates not present become NaN rows.
func (w *Wide) Reindex(dates []time.Time) *Wide {
	pos := make(map[time.Time]int, len(w.Dates))
	for i, d := range w.Dates {
		pos[d] = i
	}
	out := NewWide(dates, w.Columns)
	for i, d := range dates {
		if k, ok := pos[d]; ok {
			copy(out.Values[i], w.Values[k])
		}
	}
	return out
}

// FirstValid returns the index of the first non-NaN value in column j, or -1.
func (w *Wide) FirstValid(j int) int {
	for i := range w.Values {
		if !math.IsNaN(w.Values[i][j]) {
			return i
		}
	}
	return -1
}

// LastValid returns the index of the last non-NaN value in column j, or -1.
func (w *Wide) LastValid(j int) int {
	for i := len(w.Values) - 1; i >= 0; i-- {
		if !math.IsNaN(w.Values[i][j]) {
			return i
		}
	}
	return -1
}

// ForwardFill replaces NaN cells with the last valid value of their column,
// carrying it at most limit rows; limit <= 0 means no limit.
func (w *Wide) ForwardFill(limit int) *Wide {
	out := w.Clone()
	for j := range out.Columns {
		last, age := math.NaN(), 0
		for i := range out.Values {
			v := out.Values[i][j]
			if !math.IsNaN(v) {
				last, age = v, 0
				continue
			}
			age++
			if limit > 0 && age > limit {
				continue
			}
			out.Values[i][j] = last
		}
	}
	return out
}

// DropEmptyRows removes dates on which every column is NaN.
func (w *Wide) DropEmptyRows() *Wide {
	out := &Wide{Columns: slices.Clone(w.Columns)}
	for i, row := range w.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				out.Dates = append(out.Dates, w.Dates[i])
				out.Values = append(out.Values, slices.Clone(row))
				break
			}
		}
	}
	return out
}

// Pivot widens one category of f to a date-by-cid matrix for metric.
func Pivot(f Frame, xcat, metric string) *Wide {
	sub := make(Frame, 0, len(f))
	for _, o := range f {
		if o.Xcat == xcat {
			sub = append(sub, o)
		}
	}
	return pivot(sub, metric, func(o Observation) string { return o.Cid })
}

// PivotTickers widens f to a date-by-ticker matrix for metric.
func PivotTickers(f Frame, metric string) *Wide {
	return pivot(f, metric, Observation.Ticker)
}

func pivot(f Frame, metric string, key func(Observation) string) *Wide {
	dates := f.Dates()
	columns := uniqueSorted(f, key)
	w := NewWide(dates, columns)
	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}
	col := make(map[string]int, len(columns))
	for j, c := range columns {
		col[c] = j
	}
	for _, o := range f {
		w.Values[row[o.RealDate]][col[key(o)]] = o.Metric(metric)
	}
	return w
}

// Long converts a date-by-cid matrix back to a value frame for xcat,
// dropping NaN cells.
func (w *Wide) Long(xcat string) Frame {
	out := make(Frame, 0, len(w.Dates)*len(w.Columns))
	for j, cid := range w.Columns {
		for i, d := range w.Dates {
			if v := w.Values[i][j]; !math.IsNaN(v) {
				out = append(out, NewObservation(cid, xcat, d, v))
			}
		}
	}
	out.Sort()
	return out
}

// TickersToFrame converts a date-by-ticker matrix to a value frame,
// dropping NaN cells.
func TickersToFrame(w *Wide) (Frame, error) {
	out := make(Frame, 0, len(w.Dates)*len(w.Columns))
	for j, ticker := range w.Columns {
		cid, xcat, err := SplitTicker(ticker)
		if err != nil {
			return nil, err
		}
		for i, d := range w.Dates {
			if v := w.Values[i][j]; !math.IsNaN(v) {
				out = append(out, NewObservation(cid, xcat, d, v))
			}
		}
	}
	out.Sort()
	return out, nil
}
