package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/camber-run/camber/ext"
	"github.com/camber-run/camber/job"
)

// recorder implements every hook and records invocations.
type recorder struct {
	processed int
	completed int
	failed    int
	overflow  []ext.Overflow
	errs      []error
	ready     int
	shutdown  int

	hookErr error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnReady(context.Context) error { r.ready++; return r.hookErr }

func (r *recorder) OnJobProcessed(context.Context, *job.Job) error {
	r.processed++
	return r.hookErr
}

func (r *recorder) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	r.completed++
	return r.hookErr
}

func (r *recorder) OnJobFailed(context.Context, *job.Job, error) error {
	r.failed++
	return r.hookErr
}

func (r *recorder) OnQueueOverflow(_ context.Context, o ext.Overflow) error {
	r.overflow = append(r.overflow, o)
	return r.hookErr
}

func (r *recorder) OnError(_ context.Context, err error) error {
	r.errs = append(r.errs, err)
	return r.hookErr
}

func (r *recorder) OnShutdown(context.Context) error { r.shutdown++; return r.hookErr }

// readyOnly implements only the Ready hook.
type readyOnly struct{ ready int }

func (r *readyOnly) Name() string                 { return "ready-only" }
func (r *readyOnly) OnReady(context.Context) error { r.ready++; return nil }

func newRegistry() *ext.Registry {
	return ext.NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistry_EmitsToRegisteredHooks(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}
	reg.Register(rec)

	ctx := context.Background()
	j := job.New("t", nil)

	reg.EmitReady(ctx)
	reg.EmitJobProcessed(ctx, j)
	reg.EmitJobCompleted(ctx, j, time.Second)
	reg.EmitJobFailed(ctx, j, errors.New("boom"))
	reg.EmitQueueOverflow(ctx, ext.Overflow{Name: "t", QueueSize: 10, MaxSize: 10})
	reg.EmitError(ctx, errors.New("discovery failed"))
	reg.EmitShutdown(ctx)

	if rec.ready != 1 || rec.processed != 1 || rec.completed != 1 || rec.failed != 1 || rec.shutdown != 1 {
		t.Errorf("hook counts = %+v, want 1 each", rec)
	}
	if len(rec.overflow) != 1 || rec.overflow[0].QueueSize != 10 {
		t.Errorf("overflow = %+v", rec.overflow)
	}
	if len(rec.errs) != 1 {
		t.Errorf("errs = %v, want 1", rec.errs)
	}
}

func TestRegistry_PartialExtension(t *testing.T) {
	reg := newRegistry()
	ro := &readyOnly{}
	reg.Register(ro)

	// Emitting events the extension does not implement is a no-op.
	reg.EmitJobProcessed(context.Background(), job.New("t", nil))
	reg.EmitReady(context.Background())

	if ro.ready != 1 {
		t.Errorf("ready = %d, want 1", ro.ready)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{hookErr: errors.New("hook exploded")}
	reg.Register(rec)

	// Must not panic or propagate.
	reg.EmitJobCompleted(context.Background(), job.New("t", nil), 0)
	if rec.completed != 1 {
		t.Errorf("completed = %d, want 1", rec.completed)
	}
}

func TestRegistry_NotifiesAllRegisteredExtensions(t *testing.T) {
	reg := newRegistry()
	first := &readyOnly{}
	second := &recorder{}
	reg.Register(first)
	reg.Register(second)

	if len(reg.Extensions()) != 2 {
		t.Fatalf("Extensions = %d, want 2", len(reg.Extensions()))
	}
	reg.EmitReady(context.Background())
	if first.ready != 1 || second.ready != 1 {
		t.Error("both extensions should observe EmitReady")
	}
}
