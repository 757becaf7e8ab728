package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/camber-run/camber"
	"github.com/camber-run/camber/job"
)

func testDefinition(handler job.HandlerFunc, opts ...job.Option) *job.Definition {
	return job.NewDefinition("test", handler, opts...)
}

func TestHandle_RunOnce(t *testing.T) {
	runs := 0
	def := testDefinition(func(context.Context, *job.Job) error {
		runs++
		return nil
	})
	h := job.NewHandle(job.New("test", nil), def)

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if err := h.Run(context.Background()); !errors.Is(err, camber.ErrAlreadyRan) {
		t.Fatalf("second Run = %v, want ErrAlreadyRan", err)
	}
	if runs != 1 {
		t.Errorf("handler ran %d times, want 1", runs)
	}
}

func TestHandle_RunSetsLastRunAt(t *testing.T) {
	def := testDefinition(func(context.Context, *job.Job) error { return nil })
	j := job.New("test", nil)
	h := job.NewHandle(j, def)

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if j.LastRunAt == nil {
		t.Error("LastRunAt not set by Run")
	}
}

func TestHandle_CancelStopsHandler(t *testing.T) {
	started := make(chan struct{})
	def := testDefinition(func(ctx context.Context, _ *job.Job) error {
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
	h := job.NewHandle(job.New("test", nil), def)

	reason := errors.New("lease lost")
	result := make(chan error, 1)
	go func() { result <- h.Run(context.Background()) }()

	<-started
	h.Cancel(reason)

	select {
	case err := <-result:
		if !errors.Is(err, reason) {
			t.Errorf("Run = %v, want %v", err, reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not observe cancellation")
	}
}

func TestHandle_CancelBeforeRun(t *testing.T) {
	def := testDefinition(func(ctx context.Context, _ *job.Job) error {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(5 * time.Second):
			return errors.New("handler should have started cancelled")
		}
	})
	h := job.NewHandle(job.New("test", nil), def)

	reason := errors.New("expired before start")
	h.Cancel(reason)

	if err := h.Run(context.Background()); !errors.Is(err, reason) {
		t.Errorf("Run = %v, want %v", err, reason)
	}
}

func TestHandle_CancelReasonOverridesNilResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	def := testDefinition(func(context.Context, *job.Job) error {
		close(started)
		<-release
		return nil // handler swallows the cancellation
	})
	h := job.NewHandle(job.New("test", nil), def)

	reason := errors.New("watchdog fired")
	result := make(chan error, 1)
	go func() { result <- h.Run(context.Background()) }()

	<-started
	h.Cancel(reason)
	close(release)

	if err := <-result; !errors.Is(err, reason) {
		t.Errorf("Run = %v, want %v", err, reason)
	}
}

func TestHandle_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	stale := now.Add(-2 * time.Minute)
	fresh := now.Add(-10 * time.Second)

	def := testDefinition(func(context.Context, *job.Job) error { return nil },
		job.WithLockLifetime(time.Minute))

	tests := []struct {
		name     string
		lockedAt *time.Time
		want     bool
	}{
		{"unclaimed", nil, true},
		{"stale claim", &stale, true},
		{"fresh claim", &fresh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New("test", nil)
			j.LockedAt = tt.lockedAt
			h := job.NewHandle(j, def)
			if got := h.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandle_ArmTimerOnce(t *testing.T) {
	def := testDefinition(func(context.Context, *job.Job) error { return nil })
	h := job.NewHandle(job.New("test", nil), def)

	if !h.ArmTimer() {
		t.Fatal("first ArmTimer should succeed")
	}
	if h.ArmTimer() {
		t.Fatal("second ArmTimer should fail while armed")
	}
	h.DisarmTimer()
	if !h.ArmTimer() {
		t.Fatal("ArmTimer should succeed after DisarmTimer")
	}
}

func TestHandle_DoneClosesAfterRun(t *testing.T) {
	def := testDefinition(func(context.Context, *job.Job) error { return nil })
	h := job.NewHandle(job.New("test", nil), def)

	select {
	case <-h.Done():
		t.Fatal("Done closed before Run")
	default:
	}

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Run")
	}
}
