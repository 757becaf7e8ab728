package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/camber-run/camber/job"
	"github.com/camber-run/camber/middleware"
)

func TestMetrics_PassThrough(t *testing.T) {
	mw := middleware.MetricsWithMeter(noop.NewMeterProvider().Meter("test"))

	boom := errors.New("fail")
	if err := mw(context.Background(), job.New("m", nil), func(context.Context) error { return nil }); err != nil {
		t.Errorf("success path err = %v", err)
	}
	if err := mw(context.Background(), job.New("m", nil), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("failure path err = %v, want %v", err, boom)
	}
}

func TestTracing_PassThrough(t *testing.T) {
	mw := middleware.TracingWithTracer(tracenoop.NewTracerProvider().Tracer("test"))

	called := false
	err := mw(context.Background(), job.New("t", nil), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("tracing middleware should pass through (called=%v, err=%v)", called, err)
	}
}
