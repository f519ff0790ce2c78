package dataquery

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type clientMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// newClientMetrics registers instruments on the global meter provider. A
// failed registration disables metrics.
func newClientMetrics() *clientMetrics {
	meter := otel.Meter("macrosynergy/dataquery")
	requests, err := meter.Int64Counter(
		"dataquery_requests_total",
		metric.WithDescription("Total number of DataQuery requests"),
	)
	if err != nil {
		return nil
	}
	latency, err := meter.Float64Histogram(
		"dataquery_request_duration_seconds",
		metric.WithDescription("DataQuery request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil
	}
	return &clientMetrics{requests: requests, latency: latency}
}

func (m *clientMetrics) record(ctx context.Context, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, d.Seconds(), attrs)
}
