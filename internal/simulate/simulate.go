// Package simulate generates synthetic quantamental data frames for tests,
// demos and the simulate-qdf command.
package simulate

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// CidSpec holds cross-section parameters.
type CidSpec struct {
	Earliest time.Time
	Latest   time.Time
	MeanAdd  float64
	SDMult   float64
}

// XcatSpec holds category parameters. BackCoef scales the communal
// background factor added to every series of the category.
type XcatSpec struct {
	Earliest time.Time
	Latest   time.Time
	MeanAdd  float64
	SDMult   float64
	ARCoef   float64
	BackCoef float64
}

// Simulator draws from a seeded PCG source so runs are reproducible.
type Simulator struct {
	rng *rand.Rand
}

// New returns a simulator seeded with seed.
func New(seed uint64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// AR draws n observations of x_t = ar*x_{t-1} + e_t with standard normal
// shocks and rescales the sample to the requested mean and standard
// deviation.
func (s *Simulator) AR(n int, mean, sd, ar float64) []float64 {
	out := make([]float64, n)
	prev := 0.0
	for i := range out {
		prev = ar*prev + s.rng.NormFloat64()
		out[i] = prev
	}
	return rescale(out, mean, sd)
}

func rescale(x []float64, mean, sd float64) []float64 {
	if len(x) == 0 {
		return x
	}
	var m float64
	for _, v := range x {
		m += v
	}
	m /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	std := math.Sqrt(ss / float64(len(x)))
	for i, v := range x {
		if std == 0 {
			x[i] = mean
			continue
		}
		x[i] = mean + sd*(v-m)/std
	}
	return x
}

func seriesDays(c CidSpec, x XcatSpec) []time.Time {
	start, end := c.Earliest, c.Latest
	if x.Earliest.After(start) {
		start = x.Earliest
	}
	if x.Latest.Before(end) {
		end = x.Latest
	}
	return qdf.BusinessDays(start, end)
}

func validateSpecs(cids map[string]CidSpec, xcats map[string]XcatSpec) error {
	if len(cids) == 0 || len(xcats) == 0 {
		return apperrors.NewAppValidationError("at least one cross-section and one category are required")
	}
	for cid, c := range cids {
		if c.Latest.Before(c.Earliest) {
			return apperrors.Validationf("cross-section %s: latest date before earliest date", cid)
		}
	}
	for xcat, x := range xcats {
		if x.Latest.Before(x.Earliest) {
			return apperrors.Validationf("category %s: latest date before earliest date", xcat)
		}
	}
	return nil
}

// MakeQDF simulates a value frame for every cross-section and category. Each
// series spans the business days shared by its cid and xcat ranges. backAR
// is the autocorrelation of the communal background factor.
func (s *Simulator) MakeQDF(cids map[string]CidSpec, xcats map[string]XcatSpec, backAR float64) (qdf.Frame, error) {
	if err := validateSpecs(cids, xcats); err != nil {
		return nil, err
	}
	cidNames, xcatNames := sortedKeys(cids), sortedKeys(xcats)

	var background map[time.Time]float64
	for _, x := range xcats {
		if x.BackCoef != 0 {
			background = s.background(cids, xcats, backAR)
			break
		}
	}

	var out qdf.Frame
	for _, cid := range cidNames {
		for _, xcat := range xcatNames {
			c, x := cids[cid], xcats[xcat]
			days := seriesDays(c, x)
			vals := s.AR(len(days), c.MeanAdd+x.MeanAdd, c.SDMult*x.SDMult, x.ARCoef)
			for i, d := range days {
				v := vals[i]
				if x.BackCoef != 0 {
					v += x.BackCoef * background[d]
				}
				out = append(out, qdf.NewObservation(cid, xcat, d, v))
			}
		}
	}
	out.Sort()
	return out, nil
}

// background covers the full business-day span of all specs.
func (s *Simulator) background(cids map[string]CidSpec, xcats map[string]XcatSpec, backAR float64) map[time.Time]float64 {
	var start, end time.Time
	first := true
	visit := func(e, l time.Time) {
		if first || e.Before(start) {
			start = e
		}
		if first || l.After(end) {
			end = l
		}
		first = false
	}
	for _, c := range cids {
		visit(c.Earliest, c.Latest)
	}
	for _, x := range xcats {
		visit(x.Earliest, x.Latest)
	}
	days := qdf.BusinessDays(start, end)
	vals := s.AR(len(days), 0, 1, backAR)
	out := make(map[time.Time]float64, len(days))
	for i, d := range days {
		out[d] = vals[i]
	}
	return out
}

// MakeQDFBlack builds binary series that are 1 inside the blackout periods of
// each cross-section and 0 elsewhere. Periods starting on a weekend begin on
// the following Monday; periods outside a series' range are skipped.
func MakeQDFBlack(cids map[string]CidSpec, xcats map[string]XcatSpec, blackout qdf.Blacklist) (qdf.Frame, error) {
	if err := validateSpecs(cids, xcats); err != nil {
		return nil, err
	}
	periods := make(map[string][]qdf.Period)
	for _, key := range sortedKeys(blackout) {
		cid := qdf.BlacklistCid(key)
		periods[cid] = append(periods[cid], blackout[key])
	}

	var out qdf.Frame
	for _, cid := range sortedKeys(cids) {
		for _, xcat := range sortedKeys(xcats) {
			days := seriesDays(cids[cid], xcats[xcat])
			if len(days) == 0 {
				continue
			}
			vals := make([]float64, len(days))
			for _, p := range periods[cid] {
				if p.Start.Before(days[0]) || p.End.After(days[len(days)-1]) {
					continue
				}
				active := qdf.Period{Start: qdf.RollForward(p.Start), End: p.End}
				for i, d := range days {
					if active.Contains(d) {
						vals[i] = 1
					}
				}
			}
			for i, d := range days {
				out = append(out, qdf.NewObservation(cid, xcat, d, vals[i]))
			}
		}
	}
	out.Sort()
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
