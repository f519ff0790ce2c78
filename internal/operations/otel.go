package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"macrosynergy/internal/infrastructure"
)

const (
	TracerName = "macrosynergy.operations"
)

// JobTracer wraps job execution in spans and records job metrics. Metrics
// may be nil.
type JobTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewJobTracer uses the global tracer provider.
func NewJobTracer(metrics *infrastructure.BusinessMetrics) *JobTracer {
	return &JobTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// StartJob opens the span for one job run.
func (t *JobTracer) StartJob(ctx context.Context, job *Job) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "job."+job.Type,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.type", job.Type),
		),
	)
	infrastructure.RecordActiveJobChange(ctx, t.metrics, 1, job.Type)
	return ctx, span
}

// RecordProgress adds a progress event to the job span.
func (t *JobTracer) RecordProgress(ctx context.Context, progress int, message string) {
	infrastructure.AddSpanEvent(ctx, "job.progress", map[string]interface{}{
		"progress": progress,
		"message":  message,
	})
}

// EndJob closes the span and records the outcome.
func (t *JobTracer) EndJob(ctx context.Context, span trace.Span, job *Job, duration time.Duration, err error) {
	defer span.End()

	infrastructure.RecordActiveJobChange(ctx, t.metrics, -1, job.Type)
	span.SetAttributes(
		attribute.String("job.status", string(job.Status)),
		attribute.Float64("job.duration_seconds", duration.Seconds()),
	)

	if job.Status == JobStatusCancelled {
		infrastructure.RecordJobCancellation(ctx, t.metrics, job.Type, job.Message)
		span.SetStatus(codes.Error, "job cancelled")
		return
	}
	infrastructure.RecordJobMetrics(ctx, t.metrics, job.Type, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "job completed")
}
