package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/camber-run/camber/job"
	"github.com/camber-run/camber/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(mk("outer"), mk("inner"))
	err := chain(context.Background(), job.New("t", nil), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), job.New("t", nil), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("empty chain should call the handler directly (called=%v, err=%v)", called, err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(discardLogger())
	err := mw(context.Background(), job.New("boom", nil), func(context.Context) error {
		panic("kaput")
	})
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Errorf("err = %v, want panic converted to error", err)
	}
}

func TestRecover_PassesThroughErrors(t *testing.T) {
	boom := errors.New("plain failure")
	mw := middleware.Recover(discardLogger())
	err := mw(context.Background(), job.New("t", nil), func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestTimeout_EnforcesDeadline(t *testing.T) {
	mw := middleware.Timeout(10*time.Millisecond, discardLogger())
	err := mw(context.Background(), job.New("slow", nil), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Timeout(0, discardLogger())
	err := mw(context.Background(), job.New("t", nil), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			return errors.New("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestLogging_PropagatesResult(t *testing.T) {
	boom := errors.New("handler error")
	mw := middleware.Logging(discardLogger())

	if err := mw(context.Background(), job.New("t", nil), func(context.Context) error { return nil }); err != nil {
		t.Errorf("success path err = %v", err)
	}
	if err := mw(context.Background(), job.New("t", nil), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("failure path err = %v, want %v", err, boom)
	}
}
