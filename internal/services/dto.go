package services

import (
	"math"
	"slices"
	"time"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/jpmaqs"
	"macrosynergy/internal/panel"
	"macrosynergy/internal/qdf"
	"macrosynergy/internal/store"
)

// PeriodDTO is an inclusive ISO date range.
type PeriodDTO struct {
	Start string `json:"start" validate:"required,iso8601"`
	End   string `json:"end" validate:"required,iso8601"`
}

// DateRange is embedded by requests restricted to a sample period.
type DateRange struct {
	Start string `json:"start,omitempty" validate:"omitempty,iso8601"`
	End   string `json:"end,omitempty" validate:"omitempty,iso8601"`
}

// Parse returns the range as times. Empty bounds are zero.
func (d DateRange) Parse() (time.Time, time.Time, error) {
	start, err := qdf.ParseDate(d.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := qdf.ParseDate(d.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, apperrors.Validationf("end %s is before start %s", d.End, d.Start)
	}
	return start, end, nil
}

func blacklistFrom(in map[string]PeriodDTO) (qdf.Blacklist, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(qdf.Blacklist, len(in))
	for key, p := range in {
		r, err := (DateRange{Start: p.Start, End: p.End}).parseBounded(key)
		if err != nil {
			return nil, err
		}
		out[key] = r
	}
	return out, nil
}

func (d DateRange) parseBounded(key string) (qdf.Period, error) {
	start, end, err := d.Parse()
	if err != nil {
		return qdf.Period{}, err
	}
	if start.IsZero() || end.IsZero() {
		return qdf.Period{}, apperrors.Validationf("blacklist period %s needs start and end", key)
	}
	return qdf.Period{Start: start, End: end}, nil
}

// ZnScoreRequest computes zn-scores for one category.
type ZnScoreRequest struct {
	Xcat string   `json:"xcat" validate:"required,xcat"`
	Cids []string `json:"cids,omitempty" validate:"omitempty,dive,cid"`
	DateRange
	Blacklist  map[string]PeriodDTO `json:"blacklist,omitempty" validate:"omitempty,dive"`
	Sequential *bool                `json:"sequential,omitempty"`
	MinObs     *int                 `json:"min_obs,omitempty" validate:"omitempty,gte=0"`
	IIS        *bool                `json:"iis,omitempty"`
	Neutral    string               `json:"neutral,omitempty" validate:"omitempty,oneof=zero mean median"`
	EstFreq    string               `json:"est_freq,omitempty" validate:"omitempty,oneof=D W M Q A"`
	Thresh     float64              `json:"thresh,omitempty" validate:"omitempty,gte=1"`
	PanWeight  *float64             `json:"pan_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Postfix    string               `json:"postfix,omitempty" validate:"omitempty,xcat"`
	// Save writes the scores back to the store.
	Save bool `json:"save,omitempty"`
}

// Options converts the request, starting from the package defaults.
func (r ZnScoreRequest) Options() (panel.ZnOptions, error) {
	opts := panel.DefaultZnOptions(r.Xcat)
	opts.Cids = r.Cids
	var err error
	if opts.Start, opts.End, err = r.DateRange.Parse(); err != nil {
		return opts, err
	}
	if opts.Blacklist, err = blacklistFrom(r.Blacklist); err != nil {
		return opts, err
	}
	if r.Sequential != nil {
		opts.Sequential = *r.Sequential
	}
	if r.MinObs != nil {
		opts.MinObs = *r.MinObs
	}
	if r.IIS != nil {
		opts.IIS = *r.IIS
	}
	if r.Neutral != "" {
		opts.Neutral = r.Neutral
	}
	if r.EstFreq != "" {
		opts.EstFreq = qdf.Freq(r.EstFreq)
	}
	opts.Thresh = r.Thresh
	if r.PanWeight != nil {
		opts.PanWeight = *r.PanWeight
	}
	if r.Postfix != "" {
		opts.Postfix = r.Postfix
	}
	return opts, nil
}

// Filter selects the observations the computation reads.
func (r ZnScoreRequest) Filter() (store.Filter, error) {
	start, end, err := r.DateRange.Parse()
	return store.Filter{Cids: r.Cids, Xcats: []string{r.Xcat}, Start: start, End: end}, err
}

// CompositeRequest combines categories into a new one.
type CompositeRequest struct {
	Xcats   []string  `json:"xcats" validate:"required,min=1,dive,xcat"`
	Weights []float64 `json:"weights,omitempty"`
	Signs   []float64 `json:"signs,omitempty"`
	Cids    []string  `json:"cids,omitempty" validate:"omitempty,dive,cid"`
	DateRange
	CompleteXcats bool   `json:"complete_xcats,omitempty"`
	NewXcat       string `json:"new_xcat,omitempty" validate:"omitempty,xcat"`
	Save          bool   `json:"save,omitempty"`
}

// Options converts the request.
func (r CompositeRequest) Options() (panel.CompositeOptions, error) {
	start, end, err := r.DateRange.Parse()
	if err != nil {
		return panel.CompositeOptions{}, err
	}
	if len(r.Weights) > 0 && len(r.Weights) != len(r.Xcats) {
		return panel.CompositeOptions{}, apperrors.Validationf("%d weights for %d categories", len(r.Weights), len(r.Xcats))
	}
	if len(r.Signs) > 0 && len(r.Signs) != len(r.Xcats) {
		return panel.CompositeOptions{}, apperrors.Validationf("%d signs for %d categories", len(r.Signs), len(r.Xcats))
	}
	return panel.CompositeOptions{
		Xcats:         r.Xcats,
		Weights:       r.Weights,
		Signs:         r.Signs,
		Cids:          r.Cids,
		Start:         start,
		End:           end,
		CompleteXcats: r.CompleteXcats,
		NewXcat:       r.NewXcat,
	}, nil
}

// Filter selects the observations the computation reads.
func (r CompositeRequest) Filter() (store.Filter, error) {
	start, end, err := r.DateRange.Parse()
	return store.Filter{Cids: r.Cids, Xcats: r.Xcats, Start: start, End: end}, err
}

// VolRequest estimates historic return volatility for one category.
type VolRequest struct {
	Xcat string   `json:"xcat" validate:"required,xcat"`
	Cids []string `json:"cids,omitempty" validate:"omitempty,dive,cid"`
	DateRange
	LbackPeriods int                  `json:"lback_periods,omitempty" validate:"omitempty,gte=1"`
	LbackMeth    string               `json:"lback_meth,omitempty" validate:"omitempty,oneof=ma xma"`
	HalfLife     int                  `json:"half_life,omitempty" validate:"omitempty,gte=1"`
	EstFreq      string               `json:"est_freq,omitempty" validate:"omitempty,oneof=D W M Q A"`
	Blacklist    map[string]PeriodDTO `json:"blacklist,omitempty" validate:"omitempty,dive"`
	RemoveZeros  *bool                `json:"remove_zeros,omitempty"`
	NanTolerance *float64             `json:"nan_tolerance,omitempty" validate:"omitempty,gte=0,lte=1"`
	Postfix      string               `json:"postfix,omitempty" validate:"omitempty,xcat"`
	Save         bool                 `json:"save,omitempty"`
}

// Options converts the request, starting from the package defaults.
func (r VolRequest) Options() (panel.VolOptions, error) {
	opts := panel.DefaultVolOptions(r.Xcat)
	opts.Cids = r.Cids
	var err error
	if opts.Start, opts.End, err = r.DateRange.Parse(); err != nil {
		return opts, err
	}
	if opts.Blacklist, err = blacklistFrom(r.Blacklist); err != nil {
		return opts, err
	}
	if r.LbackPeriods > 0 {
		opts.LbackPeriods = r.LbackPeriods
	}
	if r.LbackMeth != "" {
		opts.LbackMeth = r.LbackMeth
	}
	if r.HalfLife > 0 {
		opts.HalfLife = r.HalfLife
	}
	if r.EstFreq != "" {
		opts.EstFreq = qdf.Freq(r.EstFreq)
	}
	if r.RemoveZeros != nil {
		opts.RemoveZeros = *r.RemoveZeros
	}
	if r.NanTolerance != nil {
		opts.NanTolerance = *r.NanTolerance
	}
	if r.Postfix != "" {
		opts.Postfix = r.Postfix
	}
	return opts, nil
}

// Filter selects the observations the computation reads.
func (r VolRequest) Filter() (store.Filter, error) {
	start, end, err := r.DateRange.Parse()
	return store.Filter{Cids: r.Cids, Xcats: []string{r.Xcat}, Start: start, End: end}, err
}

// Export formats for downloaded frames.
const (
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

// DownloadRequest downloads JPMaQS series into the store. Xcats without
// Cids cover the default cross-sections; metric "all" requests every metric.
type DownloadRequest struct {
	Tickers []string `json:"tickers,omitempty" validate:"omitempty,dive,ticker"`
	Cids    []string `json:"cids,omitempty" validate:"omitempty,dive,cid"`
	Xcats   []string `json:"xcats,omitempty" validate:"omitempty,dive,xcat"`
	Metrics []string `json:"metrics,omitempty" validate:"omitempty,dive,oneof=all value grading eop_lag mop_lag"`
	DateRange
	// Export additionally writes the frame to the exports directory.
	Export string `json:"export,omitempty" validate:"omitempty,oneof=csv xlsx"`
	// Upload sends the exported file to S3; requires Export.
	Upload bool `json:"upload,omitempty"`
}

// JPMaQS converts the request for the downloader.
func (r DownloadRequest) JPMaQS() (jpmaqs.Request, error) {
	start, end, err := r.DateRange.Parse()
	if err != nil {
		return jpmaqs.Request{}, err
	}
	if len(r.Tickers) == 0 && len(r.Xcats) == 0 {
		return jpmaqs.Request{}, apperrors.NewAppValidationError("tickers or xcats are required")
	}
	if r.Upload && r.Export == "" {
		return jpmaqs.Request{}, apperrors.NewAppValidationError("upload requires an export format")
	}
	metrics := r.Metrics
	if slices.Contains(metrics, "all") {
		metrics = qdf.Metrics
	}
	return jpmaqs.Request{
		Tickers: r.Tickers,
		Cids:    r.Cids,
		Xcats:   r.Xcats,
		Metrics: metrics,
		Start:   start,
		End:     end,
	}, nil
}

// SeriesQuery selects stored observations.
type SeriesQuery struct {
	Tickers []string `json:"tickers,omitempty" validate:"omitempty,dive,ticker"`
	Cids    []string `json:"cids,omitempty" validate:"omitempty,dive,cid"`
	Xcats   []string `json:"xcats,omitempty" validate:"omitempty,dive,xcat"`
	DateRange
	Metric string `json:"metric,omitempty" validate:"omitempty,oneof=value grading eop_lag mop_lag"`
}

// Filter converts the query for the store.
func (q SeriesQuery) Filter() (store.Filter, error) {
	start, end, err := q.DateRange.Parse()
	return store.Filter{Tickers: q.Tickers, Cids: q.Cids, Xcats: q.Xcats, Start: start, End: end}, err
}

// Series is one ticker's observations of a single metric. Missing values
// are null.
type Series struct {
	Ticker string     `json:"ticker"`
	Cid    string     `json:"cid"`
	Xcat   string     `json:"xcat"`
	Metric string     `json:"metric"`
	Dates  []string   `json:"dates"`
	Values []*float64 `json:"values"`
}

// ToSeries groups a frame by ticker, in the frame's ticker order.
func ToSeries(f qdf.Frame, metric string) []Series {
	if metric == "" {
		metric = qdf.MetricValue
	}
	sorted := f.Clone()
	sorted.Sort()
	var out []Series
	for _, o := range sorted {
		if len(out) == 0 || out[len(out)-1].Ticker != o.Ticker() {
			out = append(out, Series{Ticker: o.Ticker(), Cid: o.Cid, Xcat: o.Xcat, Metric: metric})
		}
		s := &out[len(out)-1]
		s.Dates = append(s.Dates, qdf.FormatDate(o.RealDate))
		s.Values = append(s.Values, nullable(o.Metric(metric)))
	}
	return out
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
