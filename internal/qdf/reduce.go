package qdf

import (
	"time"
)

// Filter selects a slice of a frame. Empty Cids or Xcats select everything;
// zero Start or End leave that side open.
type Filter struct {
	Cids          []string
	Xcats         []string
	Start         time.Time
	End           time.Time
	Blacklist     Blacklist
	IntersectCids bool
}

func (flt Filter) inRange(t time.Time) bool {
	if !flt.Start.IsZero() && t.Before(flt.Start) {
		return false
	}
	if !flt.End.IsZero() && t.After(flt.End) {
		return false
	}
	return true
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// Reduce filters f by cids, categories and date range and removes
// blacklisted rows. With IntersectCids only cross-sections present for every
// selected category survive.
func Reduce(f Frame, flt Filter) Frame {
	cids, xcats := toSet(flt.Cids), toSet(flt.Xcats)
	out := make(Frame, 0, len(f))
	for _, o := range f {
		if cids != nil && !cids[o.Cid] {
			continue
		}
		if xcats != nil && !xcats[o.Xcat] {
			continue
		}
		if !flt.inRange(o.RealDate) || flt.Blacklist.Excludes(o.Cid, o.RealDate) {
			continue
		}
		out = append(out, o)
	}
	if flt.IntersectCids {
		out = intersectCids(out)
	}
	out.Sort()
	return out
}

func intersectCids(f Frame) Frame {
	perXcat := make(map[string]map[string]bool)
	for _, o := range f {
		if perXcat[o.Xcat] == nil {
			perXcat[o.Xcat] = make(map[string]bool)
		}
		perXcat[o.Xcat][o.Cid] = true
	}
	keep := func(cid string) bool {
		for _, cs := range perXcat {
			if !cs[cid] {
				return false
			}
		}
		return true
	}
	out := make(Frame, 0, len(f))
	for _, o := range f {
		if keep(o.Cid) {
			out = append(out, o)
		}
	}
	return out
}

// CommonCids returns the cross-sections present for every listed category.
func CommonCids(f Frame, xcats []string) []string {
	return Reduce(f, Filter{Xcats: xcats, IntersectCids: true}).Cids()
}

// ReduceByTicker keeps the listed tickers within [start, end] outside the
// blacklist. An empty ticker list keeps every ticker.
func ReduceByTicker(f Frame, tickers []string, start, end time.Time, blacklist Blacklist) Frame {
	set := toSet(tickers)
	flt := Filter{Start: start, End: end}
	out := make(Frame, 0, len(f))
	for _, o := range f {
		if set != nil && !set[o.Ticker()] {
			continue
		}
		if !flt.inRange(o.RealDate) || blacklist.Excludes(o.Cid, o.RealDate) {
			continue
		}
		out = append(out, o)
	}
	out.Sort()
	return out
}
