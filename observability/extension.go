// Package observability provides a metrics extension that records
// lifecycle counters and durations for every processed job. Register
// it as a camber extension to automatically track completion counts,
// failure rates, and queue overflow events.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/camber-run/camber/ext"
	"github.com/camber-run/camber/job"
)

// meterName is the instrumentation scope name for camber observability.
const meterName = "github.com/camber-run/camber/observability"

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobProcessed  = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.QueueOverflow = (*MetricsExtension)(nil)
	_ ext.ErrorReported = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle metrics with OpenTelemetry
// instruments. Without a configured global MeterProvider the
// instruments are noop and the extension is free.
type MetricsExtension struct {
	processed metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	overflow  metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, for testing or multi-provider setups.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On instrument-creation errors the OTel API returns noop
	// instruments, so the extension degrades gracefully.
	m.processed, _ = meter.Int64Counter("camber.jobs.processed",
		metric.WithDescription("Jobs handed to a handler"),
		metric.WithUnit("{job}"))
	m.completed, _ = meter.Int64Counter("camber.jobs.completed",
		metric.WithDescription("Jobs that finished successfully"),
		metric.WithUnit("{job}"))
	m.failed, _ = meter.Int64Counter("camber.jobs.failed",
		metric.WithDescription("Jobs that finished in error"),
		metric.WithUnit("{job}"))
	m.overflow, _ = meter.Int64Counter("camber.queue.overflow",
		metric.WithDescription("Ready queue inserts rejected for capacity"),
		metric.WithUnit("{event}"))
	m.errors, _ = meter.Int64Counter("camber.processor.errors",
		metric.WithDescription("Processor-level errors not tied to one job"),
		metric.WithUnit("{error}"))
	m.duration, _ = meter.Float64Histogram("camber.jobs.duration",
		metric.WithDescription("Job execution time in seconds"),
		metric.WithUnit("s"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobProcessed implements ext.JobProcessed.
func (m *MetricsExtension) OnJobProcessed(ctx context.Context, j *job.Job) error {
	m.processed.Add(ctx, 1, nameAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, nameAttr(j))
	m.duration.Record(ctx, elapsed.Seconds(), nameAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, nameAttr(j))
	return nil
}

// OnQueueOverflow implements ext.QueueOverflow.
func (m *MetricsExtension) OnQueueOverflow(ctx context.Context, o ext.Overflow) error {
	m.overflow.Add(ctx, 1, metric.WithAttributes(attribute.String("job_name", o.Name)))
	return nil
}

// OnError implements ext.ErrorReported.
func (m *MetricsExtension) OnError(ctx context.Context, _ error) error {
	m.errors.Add(ctx, 1)
	return nil
}

func nameAttr(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_name", j.Name))
}
