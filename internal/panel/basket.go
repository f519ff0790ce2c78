package panel

import (
	"log/slog"
	"math"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

// Weighting methods for baskets.
const (
	WeightEqual     = "equal"
	WeightFixed     = "fixed"
	WeightInvSD     = "invsd"
	WeightValues    = "values"
	WeightInvValues = "inv_values"
)

// BasketSpec describes one basket built from the contracts of a Basket.
type BasketSpec struct {
	Name       string
	WeightMeth string
	// Weights are the fixed weights, one per contract.
	Weights []float64
	// WeightXcat is the category read per contract cid for the values
	// methods.
	WeightXcat   string
	LbackMeth    string
	LbackPeriods int
	HalfLife     int
	RemoveZeros  bool
	// MaxWeight caps individual weights; 0 or 1 disables the cap.
	MaxWeight float64
}

// DefaultBasketSpec returns an equally weighted basket named name.
func DefaultBasketSpec(name string) BasketSpec {
	return BasketSpec{
		Name:         name,
		WeightMeth:   WeightEqual,
		LbackMeth:    LbackMA,
		LbackPeriods: 21,
		HalfLife:     11,
		RemoveZeros:  true,
	}
}

type basketResult struct {
	returns *qdf.Wide
	weights *qdf.Wide
}

// Basket computes weighted performance of a set of contracts. Contracts are
// given as "<cid>_<asset>" and their returns are read from tickers
// "<contract><ret>", carries from "<contract><cry>", so that contract AUD_FX
// with ret XR_NSA reads AUD_FXXR_NSA.
type Basket struct {
	contracts []string
	ret       string
	cry       []string
	frame     qdf.Frame
	retWide   *qdf.Wide
	baskets   map[string]basketResult
	logger    *slog.Logger
}

// NewBasket selects the return and carry series of the contracts from f.
func NewBasket(f qdf.Frame, contracts []string, ret string, cry []string, start, end time.Time, blacklist qdf.Blacklist) (*Basket, error) {
	if len(contracts) == 0 {
		return nil, apperrors.NewAppValidationError("at least one contract is required")
	}
	if ret == "" {
		return nil, apperrors.NewAppValidationError("return category is required")
	}
	for _, c := range contracts {
		if !strings.Contains(c, "_") {
			return nil, apperrors.Validationf("contract %q must have the form CID_ASSET", c)
		}
	}

	tickers := make([]string, 0, len(contracts)*(1+len(cry)))
	for _, c := range contracts {
		tickers = append(tickers, c+ret)
		for _, cr := range cry {
			tickers = append(tickers, c+cr)
		}
	}
	sub := qdf.ReduceByTicker(f, tickers, start, end, blacklist)
	if len(sub) == 0 {
		return nil, apperrors.Validationf("no data for contracts %v", contracts)
	}

	wide := qdf.PivotTickers(sub, qdf.MetricValue)
	var missing []string
	for _, c := range contracts {
		if wide.ColumnIndex(c+ret) < 0 {
			missing = append(missing, c+ret)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validationf("return tickers not available: %v", missing)
	}

	return &Basket{
		contracts: append([]string(nil), contracts...),
		ret:       ret,
		cry:       append([]string(nil), cry...),
		frame:     f,
		retWide:   wide,
		baskets:   make(map[string]basketResult),
		logger:    slog.Default().With(slog.String("component", "basket")),
	}, nil
}

// WithLogger replaces the basket's logger.
func (b *Basket) WithLogger(l *slog.Logger) *Basket {
	b.logger = l.With(slog.String("component", "basket"))
	return b
}

// series returns the date × contract matrix for the given suffix.
func (b *Basket) series(suffix string) *qdf.Wide {
	cols := make([]string, len(b.contracts))
	for i, c := range b.contracts {
		cols[i] = c + suffix
	}
	w := b.retWide.Select(cols)
	w.Columns = append([]string(nil), b.contracts...)
	return w
}

// MakeBasket computes the weights and performance of the basket described by
// spec and stores them under spec.Name.
func (b *Basket) MakeBasket(spec BasketSpec) error {
	if spec.Name == "" {
		return apperrors.NewAppValidationError("basket name is required")
	}
	if spec.MaxWeight < 0 || spec.MaxWeight > 1 {
		return apperrors.Validationf("max_weight must be in (0, 1], got %v", spec.MaxWeight)
	}

	rets := b.series(b.ret)
	weights, err := b.weights(rets, spec)
	if err != nil {
		return err
	}
	weights = maskAndNormalize(weights, rets)
	if spec.MaxWeight > 0 && spec.MaxWeight < 1 {
		if weights, err = MaxWeight(weights, spec.MaxWeight); err != nil {
			return err
		}
	}
	if err := checkWeights(weights); err != nil {
		return err
	}

	out := qdf.NewWide(weights.Dates, nil)
	out.AddColumn(b.ret, weightedSum(weights, rets.Reindex(weights.Dates)))
	for _, cr := range b.cry {
		out.AddColumn(cr, weightedSum(weights, b.series(cr).Reindex(weights.Dates)))
	}
	b.baskets[spec.Name] = basketResult{returns: out, weights: weights}
	b.logger.Debug("basket computed",
		slog.String("basket", spec.Name),
		slog.String("weight_meth", spec.WeightMeth),
		slog.Int("dates", weights.Rows()),
	)
	return nil
}

// Returns yields the basket's return and carry series as tickers
// "<name>_<ret>" and "<name>_<cry>".
func (b *Basket) Returns(name string) (qdf.Frame, error) {
	res, ok := b.baskets[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("basket " + name)
	}
	w := res.returns.Clone()
	for j, c := range w.Columns {
		w.Columns[j] = name + "_" + c
	}
	return qdf.TickersToFrame(w)
}

// Weights yields the contract weights as tickers "<contract>_<name>_WGTS".
func (b *Basket) Weights(name string) (qdf.Frame, error) {
	res, ok := b.baskets[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("basket " + name)
	}
	w := res.weights.Clone()
	for j, c := range w.Columns {
		w.Columns[j] = c + "_" + name + "_WGTS"
	}
	return qdf.TickersToFrame(w)
}

func (b *Basket) weights(rets *qdf.Wide, spec BasketSpec) (*qdf.Wide, error) {
	switch spec.WeightMeth {
	case WeightEqual, "":
		return EqualWeights(rets), nil
	case WeightFixed:
		return FixedWeights(rets, spec.Weights)
	case WeightInvSD:
		return InverseWeights(rets, spec.LbackMeth, spec.LbackPeriods, spec.HalfLife, spec.RemoveZeros)
	case WeightValues, WeightInvValues:
		return b.valueWeights(rets, spec)
	default:
		return nil, apperrors.Validationf("unknown weight method %q", spec.WeightMeth)
	}
}

// EqualWeights gives each contract with a return on a date the weight
// 1/active.
func EqualWeights(rets *qdf.Wide) *qdf.Wide {
	out := qdf.NewWide(rets.Dates, rets.Columns)
	for i, row := range rets.Values {
		active := 0
		for _, v := range row {
			if !math.IsNaN(v) {
				active++
			}
		}
		for j, v := range row {
			if !math.IsNaN(v) {
				out.Values[i][j] = 1 / float64(active)
			}
		}
	}
	return out
}

// FixedWeights distributes the given weights over the contracts available on
// each date.
func FixedWeights(rets *qdf.Wide, weights []float64) (*qdf.Wide, error) {
	if len(weights) != rets.Cols() {
		return nil, apperrors.Validationf("got %d fixed weights for %d contracts", len(weights), rets.Cols())
	}
	out := qdf.NewWide(rets.Dates, rets.Columns)
	for i, row := range rets.Values {
		for j, v := range row {
			if !math.IsNaN(v) {
				out.Values[i][j] = weights[j]
			}
		}
	}
	return normalizeRows(out), nil
}

// InverseWeights weights contracts inversely to their trailing return
// volatility. Dates without a full lookback window carry no weights.
func InverseWeights(rets *qdf.Wide, lbackMeth string, lback, halfLife int, removeZeros bool) (*qdf.Wide, error) {
	est, err := newVolEstimator(lback, lbackMeth, halfLife, removeZeros, 0)
	if err != nil {
		return nil, err
	}
	out := qdf.NewWide(rets.Dates, rets.Columns)
	for j := range rets.Columns {
		col := rets.Col(j)
		inv := nans(len(col))
		for i := range col {
			sd := est.at(col, i) * AnnualizationFactor
			if sd > 0 {
				inv[i] = 1 / sd
			}
		}
		out.SetCol(j, inv)
	}
	return normalizeRows(out), nil
}

// valueWeights reads the weight category for each contract's cid and uses
// the values, or their inverses, as weights.
func (b *Basket) valueWeights(rets *qdf.Wide, spec BasketSpec) (*qdf.Wide, error) {
	if spec.WeightXcat == "" {
		return nil, apperrors.Validationf("weight method %s requires a weight category", spec.WeightMeth)
	}
	cids := make([]string, len(b.contracts))
	for i, c := range b.contracts {
		cids[i], _, _ = qdf.SplitTicker(c)
	}
	src := qdf.Pivot(qdf.Reduce(b.frame, qdf.Filter{Cids: cids, Xcats: []string{spec.WeightXcat}}), spec.WeightXcat, qdf.MetricValue).
		Reindex(rets.Dates)

	out := qdf.NewWide(rets.Dates, rets.Columns)
	for j, cid := range cids {
		col := src.Column(cid)
		if col == nil {
			return nil, apperrors.Validationf("weight category %s missing for %s", spec.WeightXcat, cid)
		}
		for i, v := range col {
			if math.IsNaN(v) || v <= 0 {
				continue
			}
			if spec.WeightMeth == WeightInvValues {
				v = 1 / v
			}
			out.Values[i][j] = v
		}
	}
	return normalizeRows(out), nil
}

// maskAndNormalize keeps weights only where a return exists, rescales rows
// to sum to one and drops rows without weights.
func maskAndNormalize(weights, rets *qdf.Wide) *qdf.Wide {
	out := weights.Clone()
	for i := range out.Values {
		for j := range out.Values[i] {
			if math.IsNaN(rets.Values[i][j]) {
				out.Values[i][j] = math.NaN()
			}
		}
	}
	return normalizeRows(out).DropEmptyRows()
}

func normalizeRows(w *qdf.Wide) *qdf.Wide {
	for _, row := range w.Values {
		sum := 0.0
		for _, v := range row {
			if !math.IsNaN(v) {
				sum += v
			}
		}
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if sum == 0 {
				row[j] = math.NaN()
				continue
			}
			row[j] = v / sum
		}
	}
	return w
}

// checkWeights rejects rows whose weights sum above one.
func checkWeights(w *qdf.Wide) error {
	for i, row := range w.Values {
		sum := 0.0
		for _, v := range row {
			if !math.IsNaN(v) {
				sum += v
			}
		}
		if sum > 1+1e-6 {
			return apperrors.Validationf("weights on %s sum to %v", qdf.FormatDate(w.Dates[i]), sum)
		}
	}
	return nil
}

// weightedSum returns Σ w·x per row over contracts where both are present,
// NaN for rows without any.
func weightedSum(weights, x *qdf.Wide) []float64 {
	out := nans(weights.Rows())
	for i := range weights.Values {
		sum, n := 0.0, 0
		for j, w := range weights.Values[i] {
			v := x.Values[i][j]
			if math.IsNaN(w) || math.IsNaN(v) {
				continue
			}
			sum += w * v
			n++
		}
		if n > 0 {
			out[i] = sum
		}
	}
	return out
}

// BasketPerformance builds a single basket and returns its performance
// frame, with the weights appended when returnWeights is set.
func BasketPerformance(f qdf.Frame, contracts []string, ret string, cry []string, blacklist qdf.Blacklist, spec BasketSpec, returnWeights bool) (qdf.Frame, error) {
	if spec.Name == "" {
		spec.Name = "GLB_ALL"
	}
	b, err := NewBasket(f, contracts, ret, cry, time.Time{}, time.Time{}, blacklist)
	if err != nil {
		return nil, err
	}
	if err := b.MakeBasket(spec); err != nil {
		return nil, err
	}
	out, err := b.Returns(spec.Name)
	if err != nil {
		return nil, err
	}
	if returnWeights {
		wgts, err := b.Weights(spec.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, wgts...)
	}
	return out, nil
}
