package dataquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "macrosynergy/internal/errors"
)

// Config configures a Client.
type Config struct {
	Auth Authenticator
	// BaseURL overrides the root implied by Auth.
	BaseURL     string
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	// Delay is the minimum spacing between requests.
	Delay      time.Duration
	MaxRetries int
	Proxy      string
	Logger     *slog.Logger
}

// DefaultConfig returns the API limits for auth.
func DefaultConfig(auth Authenticator) Config {
	return Config{
		Auth:        auth,
		Timeout:     5 * time.Minute,
		BatchSize:   BatchLimit,
		Concurrency: 8,
		Delay:       APIDelay,
		MaxRetries:  MaxRetries,
	}
}

// Client talks to DataQuery.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *clientMetrics
}

// NewClient builds an HTTP client for cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Auth == nil {
		return nil, apperrors.NewAppValidationError("an authenticator is required")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = BatchLimit
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		return nil, apperrors.Validationf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "dataquery"))

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, apperrors.NewConfigError("invalid proxy URL", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if err := cfg.Auth.Configure(transport); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.Auth.BaseURL()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		tracer:  otel.Tracer("macrosynergy/dataquery"),
		metrics: newClientMetrics(),
	}, nil
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string { return c.baseURL }

// get performs an authorised GET and validates the response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = c.baseURL + endpoint
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := c.cfg.Auth.Authorize(ctx, req); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "macrosynergy-go/1.0")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.record(ctx, endpoint, 0, time.Since(start))
		return nil, apperrors.NewNetworkError("request to "+req.URL.Path+" failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	c.metrics.record(ctx, endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, apperrors.NewNetworkError("read response", err)
	}
	return ValidateResponse(resp, body)
}

// Heartbeat checks that the API accepts the session.
func (c *Client) Heartbeat(ctx context.Context) error {
	resp, err := c.get(ctx, HeartbeatEndpoint, url.Values{"data": {"NO_REFERENCE_DATA"}})
	if err != nil {
		return err
	}
	if code := resp.Info.CodeString(); code != "200" {
		return apperrors.NewHeartbeatError(fmt.Sprintf("heartbeat returned code %q", code), nil)
	}
	return nil
}

// CheckConnection reports whether the heartbeat succeeds, logging the
// reason when it does not.
func (c *Client) CheckConnection(ctx context.Context) bool {
	if err := c.Heartbeat(ctx); err != nil {
		c.logger.ErrorContext(ctx, "connection check failed", slog.String("error", err.Error()))
		return false
	}
	c.logger.DebugContext(ctx, "connection check succeeded")
	return true
}

// fetch collects every page of a listing.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]Instrument, error) {
	var out []Instrument
	next, nextParams := endpoint, params
	for next != "" {
		resp, err := c.get(ctx, next, nextParams)
		if err != nil {
			return nil, err
		}
		if err := checkContent(resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Instruments...)
		next, nextParams = resp.Next(), nil
	}
	return out, nil
}

// Catalogue lists the tickers of a group.
func (c *Client) Catalogue(ctx context.Context, group string) ([]string, error) {
	if group == "" {
		group = JPMaQSGroupID
	}
	instruments, err := c.fetch(ctx, CatalogueEndpoint, url.Values{"group-id": {group}})
	if err != nil {
		return nil, fmt.Errorf("fetch catalogue: %w", err)
	}
	tickers := make([]string, 0, len(instruments))
	for _, in := range instruments {
		if in.InstrumentName != "" {
			tickers = append(tickers, in.InstrumentName)
		}
	}
	c.logger.InfoContext(ctx, "catalogue fetched",
		slog.String("group", group),
		slog.Int("tickers", len(tickers)),
	)
	return tickers, nil
}

// DownloadRequest describes a time-series download.
type DownloadRequest struct {
	Expressions   []string
	StartDate     time.Time
	EndDate       time.Time
	Calendar      string
	Frequency     string
	Conversion    string
	NanTreatment  string
	ReferenceData string
}

func (r DownloadRequest) withDefaults(now time.Time) DownloadRequest {
	if r.StartDate.IsZero() {
		r.StartDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if r.EndDate.IsZero() {
		r.EndDate = now
	}
	if r.Calendar == "" {
		r.Calendar = CalendarAllDays
	}
	if r.Frequency == "" {
		r.Frequency = FrequencyDaily
	}
	if r.Conversion == "" {
		r.Conversion = ConversionLastBusAbs
	}
	if r.NanTreatment == "" {
		r.NanTreatment = NanTreatmentNothing
	}
	if r.ReferenceData == "" {
		r.ReferenceData = NoReferenceData
	}
	return r
}

func (r DownloadRequest) params(expressions []string) url.Values {
	return url.Values{
		"format":        {"JSON"},
		"start-date":    {r.StartDate.Format(DateFormat)},
		"end-date":      {r.EndDate.Format(DateFormat)},
		"calendar":      {r.Calendar},
		"frequency":     {r.Frequency},
		"conversion":    {r.Conversion},
		"nan_treatment": {r.NanTreatment},
		"data":          {r.ReferenceData},
		"expressions":   expressions,
	}
}

// ValidateDownloadArgs checks a download request against the client limits.
func ValidateDownloadArgs(req DownloadRequest, batchSize int, delay time.Duration) error {
	if len(req.Expressions) == 0 {
		return apperrors.NewAppValidationError("expressions must not be empty")
	}
	for _, e := range req.Expressions {
		if strings.TrimSpace(e) == "" {
			return apperrors.NewAppValidationError("expressions must not contain empty strings")
		}
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		return apperrors.Validationf("end date %s is before start date %s",
			req.EndDate.Format(time.DateOnly), req.StartDate.Format(time.DateOnly))
	}
	if batchSize < 1 {
		return apperrors.Validationf("batch size must be positive, got %d", batchSize)
	}
	if delay < 0 {
		return apperrors.Validationf("delay must not be negative, got %s", delay)
	}
	return nil
}

// Download fetches every expression in batches, retrying failed batches up
// to MaxRetries times. Expressions the API does not know come back as
// empty series.
func (c *Client) Download(ctx context.Context, req DownloadRequest) ([]TimeSeries, error) {
	if err := ValidateDownloadArgs(req, c.cfg.BatchSize, c.cfg.Delay); err != nil {
		return nil, err
	}
	batchSize := c.cfg.BatchSize
	if batchSize > BatchLimit {
		c.logger.WarnContext(ctx, "batch size above the API limit; using the limit",
			slog.Int("requested", batchSize), slog.Int("limit", BatchLimit))
		batchSize = BatchLimit
	}
	if c.cfg.Delay < APIDelay {
		c.logger.WarnContext(ctx, "request delay below the recommended minimum",
			slog.Duration("delay", c.cfg.Delay), slog.Duration("minimum", APIDelay))
	}
	req = req.withDefaults(time.Now().UTC())

	trackingID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "dataquery.Download", trace.WithAttributes(
		attribute.String("tracking_id", trackingID),
		attribute.Int("expressions", len(req.Expressions)),
	))
	defer span.End()
	logger := c.logger.With(slog.String("tracking_id", trackingID))
	logger.InfoContext(ctx, "download started",
		slog.Int("expressions", len(req.Expressions)),
		slog.String("start", req.StartDate.Format(time.DateOnly)),
		slog.String("end", req.EndDate.Format(time.DateOnly)),
	)

	var out []TimeSeries
	pending := req.Expressions
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > c.cfg.MaxRetries {
			err := apperrors.NewDownloadError(
				fmt.Sprintf("%d expressions failed after %d retries", len(pending), c.cfg.MaxRetries), nil).
				WithContext("tracking_id", trackingID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "retries exhausted")
			return nil, err
		}
		if attempt > 0 {
			logger.WarnContext(ctx, "retrying failed downloads",
				slog.Int("retry", attempt),
				slog.Int("expressions", len(pending)),
			)
		}
		got, failed, err := c.downloadBatches(ctx, req, pending, batchSize, logger)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, got...)
		pending = failed
	}

	logger.InfoContext(ctx, "download finished", slog.Int("series", len(out)))
	return out, nil
}

// downloadBatches runs one pass over the expressions. Batches that fail
// with a retryable error are returned for the next pass; authentication
// and cancellation abort the pass.
func (c *Client) downloadBatches(ctx context.Context, req DownloadRequest, expressions []string, batchSize int, logger *slog.Logger) ([]TimeSeries, []string, error) {
	batches := chunk(expressions, batchSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	var mu sync.Mutex
	var out []TimeSeries
	var failed []string
	for _, batch := range batches {
		g.Go(func() error {
			series, err := c.downloadBatch(gctx, req, batch)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out = append(out, series...)
				return nil
			}
			if fatal(err) {
				return err
			}
			logger.WarnContext(gctx, "batch failed",
				slog.Int("expressions", len(batch)),
				slog.String("error", err.Error()),
			)
			failed = append(failed, batch...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return out, failed, nil
}

func (c *Client) downloadBatch(ctx context.Context, req DownloadRequest, batch []string) ([]TimeSeries, error) {
	instruments, err := c.fetch(ctx, TimeseriesEndpoint, req.params(batch))
	if apperrors.IsNoContentError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []TimeSeries
	for _, in := range instruments {
		if len(in.Attributes) == 0 {
			return nil, apperrors.NewInvalidResponseError("instrument without attributes", nil)
		}
		for _, a := range in.Attributes {
			ts, err := parseAttribute(a)
			if err != nil {
				return nil, err
			}
			out = append(out, ts)
		}
	}
	return out, nil
}

// fatal errors stop a download instead of being retried.
func fatal(err error) bool {
	return apperrors.IsAuthenticationError(err) ||
		apperrors.IsHeartbeatError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		out = append(out, items[i:min(i+size, len(items))])
	}
	return out
}
