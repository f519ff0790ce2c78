package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestRuntimeCollector_Collect(t *testing.T) {
	c, err := NewRuntimeCollector(noop.NewMeterProvider().Meter("test"), 0)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, c.interval)

	stats := c.Collect(context.Background())
	assert.Positive(t, stats.Goroutines)
	assert.Positive(t, stats.CPUCount)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
	assert.False(t, stats.Timestamp.IsZero())
}

func TestRuntimeCollector_StartStop(t *testing.T) {
	c, err := NewRuntimeCollector(noop.NewMeterProvider().Meter("test"), 5*time.Millisecond)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestRuntimeCollector_ContextCancel(t *testing.T) {
	c, err := NewRuntimeCollector(noop.NewMeterProvider().Meter("test"), time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector ignored context cancellation")
	}
}
