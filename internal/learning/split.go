package learning

import (
	"time"

	apperrors "macrosynergy/internal/errors"
)

// Fold holds the row positions of one train/test split.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter produces train/test folds over panel samples.
type Splitter interface {
	Split(index []PanelKey) ([]Fold, error)
}

// PanelTimeSeriesSplit makes sequential train/test splits of panel samples
// based on their observation dates. Either NSplits fixes the number of
// splits, or TrainIntervals expands the training set by that many dates per
// split after an initial set of MinPeriods dates from the first date on
// which MinCids cross-sections are available.
type PanelTimeSeriesSplit struct {
	NSplits        int
	TrainIntervals int
	TestSize       int
	// MaxPeriods caps the training window to the most recent dates; 0 keeps
	// all of them.
	MaxPeriods int
	MinPeriods int
	MinCids    int
}

// NewIntervalSplit returns an expanding splitter with the usual settings.
func NewIntervalSplit(trainIntervals int) PanelTimeSeriesSplit {
	return PanelTimeSeriesSplit{
		TrainIntervals: trainIntervals,
		TestSize:       21,
		MinPeriods:     500,
		MinCids:        4,
	}
}

// Validate checks the configuration.
func (s PanelTimeSeriesSplit) Validate() error {
	if (s.NSplits > 0) == (s.TrainIntervals > 0) {
		return apperrors.NewAppValidationError("either n_splits or train_intervals must be specified, but not both")
	}
	if s.NSplits < 0 || s.TrainIntervals < 0 || s.MaxPeriods < 0 {
		return apperrors.NewAppValidationError("split parameters must not be negative")
	}
	if s.TestSize < 1 {
		return apperrors.Validationf("test_size must be positive, got %d", s.TestSize)
	}
	if s.TrainIntervals > 0 {
		if s.MinPeriods < 1 {
			return apperrors.Validationf("min_periods must be positive, got %d", s.MinPeriods)
		}
		if s.MinCids < 1 {
			return apperrors.Validationf("min_cids must be positive, got %d", s.MinCids)
		}
	}
	return nil
}

// Split returns the folds for the samples in index.
func (s PanelTimeSeriesSplit) Split(index []PanelKey) ([]Fold, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	times := dates(index)
	if len(times) <= s.TestSize {
		return nil, apperrors.Validationf("%d dates leave nothing to train on with test_size %d", len(times), s.TestSize)
	}
	if s.NSplits > 0 {
		return s.splitFixed(index, times)
	}
	return s.splitIntervals(index, times)
}

// NSplitsFor returns the number of folds Split produces for index.
func (s PanelTimeSeriesSplit) NSplitsFor(index []PanelKey) (int, error) {
	if s.NSplits > 0 {
		return s.NSplits, s.Validate()
	}
	folds, err := s.Split(index)
	if err != nil {
		return 0, err
	}
	return len(folds), nil
}

func (s PanelTimeSeriesSplit) splitFixed(index []PanelKey, times []time.Time) ([]Fold, error) {
	train := times[:len(times)-s.TestSize]
	if len(train) < s.NSplits {
		return nil, apperrors.Validationf("%d training dates cannot make %d splits", len(train), s.NSplits)
	}
	var folds []Fold
	for _, chunk := range arraySplit(len(train), s.NSplits) {
		from, to := chunk[0], chunk[1]-1
		if s.MaxPeriods > 0 && to-from+1 > s.MaxPeriods {
			from = to + 1 - s.MaxPeriods
		}
		testEnd := min(to+s.TestSize, len(times)-1)
		folds = append(folds, Fold{
			Train: rowsBetween(index, times[from], times[to]),
			Test:  rowsBetween(index, times[to+1], times[testEnd]),
		})
	}
	return folds, nil
}

func (s PanelTimeSeriesSplit) splitIntervals(index []PanelKey, times []time.Time) ([]Fold, error) {
	if s.MinPeriods > len(times) {
		return nil, apperrors.Validationf("min_periods %d exceeds the %d available dates", s.MinPeriods, len(times))
	}
	counts := make(map[time.Time]int)
	for _, k := range index {
		counts[k.RealDate]++
	}
	first := -1
	for i, t := range times {
		if counts[t] >= s.MinCids {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, apperrors.Validationf("no date has %d cross-sections", s.MinCids)
	}
	end := first + s.MinPeriods - 1
	if end >= len(times)-1 {
		return nil, apperrors.Validationf("not enough dates after %s for an initial training set of %d periods",
			times[first].Format(time.DateOnly), s.MinPeriods)
	}

	last := len(times) - 1
	folds := []Fold{{
		Train: rowsBetween(index, times[0], times[end]),
		Test:  rowsBetween(index, times[end+1], times[min(end+s.TestSize, last)]),
	}}
	for end+s.TrainIntervals < len(times) {
		end += s.TrainIntervals
		if end == last {
			break
		}
		from := 0
		if s.MaxPeriods > 0 && end+1 > s.MaxPeriods {
			from = end + 1 - s.MaxPeriods
		}
		folds = append(folds, Fold{
			Train: rowsBetween(index, times[from], times[end]),
			Test:  rowsBetween(index, times[end+1], times[min(end+s.TestSize, last)]),
		})
	}

	// The final fold always tests on the last TestSize dates.
	residual := len(times) - s.TestSize
	if end != residual-1 && residual > 0 {
		from := 0
		if s.MaxPeriods > 0 && residual-s.MaxPeriods > 0 {
			from = residual - s.MaxPeriods
		}
		folds = append(folds, Fold{
			Train: rowsBetween(index, times[from], times[residual-1]),
			Test:  rowsBetween(index, times[residual], times[last]),
		})
	}
	return folds, nil
}

// KFoldPanelSplit splits the dates into NSplits contiguous blocks, each
// tested once against training on all others.
type KFoldPanelSplit struct {
	NSplits int
}

// Split returns one fold per block.
func (s KFoldPanelSplit) Split(index []PanelKey) ([]Fold, error) {
	if s.NSplits < 2 {
		return nil, apperrors.Validationf("n_splits must be at least 2, got %d", s.NSplits)
	}
	times := dates(index)
	if len(times) < s.NSplits {
		return nil, apperrors.Validationf("%d dates cannot make %d splits", len(times), s.NSplits)
	}
	var folds []Fold
	for _, chunk := range arraySplit(len(times), s.NSplits) {
		from, to := times[chunk[0]], times[chunk[1]-1]
		var f Fold
		for i, k := range index {
			if !k.RealDate.Before(from) && !k.RealDate.After(to) {
				f.Test = append(f.Test, i)
			} else {
				f.Train = append(f.Train, i)
			}
		}
		folds = append(folds, f)
	}
	return folds, nil
}

// ForwardPanelSplit splits the dates into NSplits+1 contiguous blocks and
// trains on all blocks up to one, testing on the next.
type ForwardPanelSplit struct {
	NSplits int
}

// Split returns NSplits expanding folds.
func (s ForwardPanelSplit) Split(index []PanelKey) ([]Fold, error) {
	if s.NSplits < 2 {
		return nil, apperrors.Validationf("n_splits must be at least 2, got %d", s.NSplits)
	}
	times := dates(index)
	if len(times) < s.NSplits+1 {
		return nil, apperrors.Validationf("%d dates cannot make %d splits", len(times), s.NSplits)
	}
	chunks := arraySplit(len(times), s.NSplits+1)
	folds := make([]Fold, 0, s.NSplits)
	for i := 0; i < s.NSplits; i++ {
		next := chunks[i+1]
		folds = append(folds, Fold{
			Train: rowsBetween(index, times[0], times[chunks[i][1]-1]),
			Test:  rowsBetween(index, times[next[0]], times[next[1]-1]),
		})
	}
	return folds, nil
}

// arraySplit divides n items into k contiguous [from, to) chunks whose
// sizes differ by at most one, larger chunks first.
func arraySplit(n, k int) [][2]int {
	out := make([][2]int, k)
	size, extra := n/k, n%k
	from := 0
	for i := range out {
		l := size
		if i < extra {
			l++
		}
		out[i] = [2]int{from, from + l}
		from += l
	}
	return out
}
