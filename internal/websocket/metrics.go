package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "macrosynergy.websocket"

// hubMetrics holds the hub's instruments. A nil *hubMetrics records nothing.
type hubMetrics struct {
	connections     metric.Int64Counter
	active          metric.Int64UpDownCounter
	duration        metric.Float64Histogram
	messagesSent    metric.Int64Counter
	bytesSent       metric.Int64Counter
	droppedMessages metric.Int64Counter
}

func newHubMetrics() *hubMetrics {
	meter := otel.Meter(meterName)
	var m hubMetrics
	var err error

	if m.connections, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil
	}
	if m.active, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections")); err != nil {
		return nil
	}
	if m.duration, err = meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("WebSocket connection lifetime"), metric.WithUnit("s")); err != nil {
		return nil
	}
	if m.messagesSent, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to clients")); err != nil {
		return nil
	}
	if m.bytesSent, err = meter.Int64Counter("websocket_message_bytes_total",
		metric.WithDescription("Bytes queued to clients"), metric.WithUnit("By")); err != nil {
		return nil
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_dropped_messages_total",
		metric.WithDescription("Messages dropped because a buffer was full")); err != nil {
		return nil
	}
	return &m
}

func (m *hubMetrics) connected(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *hubMetrics) disconnected(ctx context.Context, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
	m.duration.Record(ctx, lifetime.Seconds())
}

func (m *hubMetrics) sent(ctx context.Context, eventType string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", eventType))
	m.messagesSent.Add(ctx, 1, attrs)
	m.bytesSent.Add(ctx, int64(size), attrs)
}

func (m *hubMetrics) dropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
