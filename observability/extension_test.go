package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/camber-run/camber/ext"
	"github.com/camber-run/camber/job"
	"github.com/camber-run/camber/observability"
)

func TestMetricsExtension_Name(t *testing.T) {
	m := observability.NewMetricsExtension()
	if m.Name() != "observability-metrics" {
		t.Errorf("Name = %q", m.Name())
	}
}

func TestMetricsExtension_HooksAreNoopSafe(t *testing.T) {
	// With a noop meter every hook must succeed without a provider.
	m := observability.NewMetricsExtensionWithMeter(noop.NewMeterProvider().Meter("test"))
	ctx := context.Background()
	j := job.New("t", nil)

	if err := m.OnJobProcessed(ctx, j); err != nil {
		t.Errorf("OnJobProcessed error: %v", err)
	}
	if err := m.OnJobCompleted(ctx, j, time.Second); err != nil {
		t.Errorf("OnJobCompleted error: %v", err)
	}
	if err := m.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Errorf("OnJobFailed error: %v", err)
	}
	if err := m.OnQueueOverflow(ctx, ext.Overflow{Name: "t", QueueSize: 1, MaxSize: 1}); err != nil {
		t.Errorf("OnQueueOverflow error: %v", err)
	}
	if err := m.OnError(ctx, errors.New("boom")); err != nil {
		t.Errorf("OnError error: %v", err)
	}
}
