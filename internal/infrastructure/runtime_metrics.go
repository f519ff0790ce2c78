package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a snapshot of the Go runtime, reported by /health.
type RuntimeStats struct {
	Goroutines    int           `json:"goroutines"`
	HeapAllocMB   uint64        `json:"heap_alloc_mb"`
	SystemMB      uint64        `json:"system_mb"`
	GCCount       uint32        `json:"gc_count"`
	LastGCPause   time.Duration `json:"last_gc_pause_ns"`
	CPUCount      int           `json:"cpu_count"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RuntimeCollector samples runtime statistics on an interval and records them
// as gauges.
type RuntimeCollector struct {
	goroutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	gcPause    metric.Float64Histogram
	uptime     metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewRuntimeCollector registers the runtime gauges on meter.
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	goroutines, err := meter.Int64Gauge("runtime_goroutines",
		metric.WithDescription("Number of active goroutines"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	heapAlloc, err := meter.Int64Gauge("runtime_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"), metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	gcPause, err := meter.Float64Histogram("runtime_gc_pause_seconds",
		metric.WithDescription("Most recent garbage collection pause"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	uptime, err := meter.Float64Gauge("process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}

	return &RuntimeCollector{
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		gcPause:    gcPause,
		uptime:     uptime,
		startTime:  time.Now(),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}, nil
}

// Collect takes a snapshot and records it.
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   mem.HeapAlloc / 1024 / 1024,
		SystemMB:      mem.Sys / 1024 / 1024,
		GCCount:       mem.NumGC,
		LastGCPause:   time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		CPUCount:      runtime.NumCPU(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Timestamp:     time.Now().UTC(),
	}

	c.goroutines.Record(ctx, int64(stats.Goroutines))
	c.heapAlloc.Record(ctx, int64(mem.HeapAlloc))
	c.uptime.Record(ctx, stats.UptimeSeconds)
	if stats.LastGCPause > 0 {
		c.gcPause.Record(ctx, stats.LastGCPause.Seconds())
	}
	return stats
}

// Start collects until ctx is done or Stop is called.
func (c *RuntimeCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends a running Start loop. It is safe to call more than once.
func (c *RuntimeCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
