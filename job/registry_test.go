package job_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/camber-run/camber/job"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := job.NewRegistry()
	def := job.NewDefinition("emails", func(context.Context, *job.Job) error { return nil })
	reg.Register(def)

	got, ok := reg.Get("emails")
	if !ok {
		t.Fatal("Get should find registered definition")
	}
	if got.Name != "emails" {
		t.Errorf("Name = %q, want %q", got.Name, "emails")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get should not find unregistered name")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := job.NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(job.NewDefinition(name, func(context.Context, *job.Job) error { return nil }))
	}

	names := reg.Names()
	sort.Strings(names)
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
}

func TestNewDefinition_Defaults(t *testing.T) {
	def := job.NewDefinition("d", func(context.Context, *job.Job) error { return nil })
	if def.Opts.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", def.Opts.Concurrency)
	}
	if def.Opts.LockLifetime != 10*time.Minute {
		t.Errorf("LockLifetime = %v, want 10m", def.Opts.LockLifetime)
	}
	if def.Opts.LockLimit != 0 {
		t.Errorf("LockLimit = %d, want 0 (no limit)", def.Opts.LockLimit)
	}
}

func TestNewDefinition_ClampsPriority(t *testing.T) {
	def := job.NewDefinition("d", func(context.Context, *job.Job) error { return nil },
		job.WithPriority(100))
	if def.Opts.Priority != job.MaxPriority {
		t.Errorf("Priority = %d, want %d", def.Opts.Priority, job.MaxPriority)
	}

	def = job.NewDefinition("d", func(context.Context, *job.Job) error { return nil },
		job.WithPriority(-100))
	if def.Opts.Priority != job.MinPriority {
		t.Errorf("Priority = %d, want %d", def.Opts.Priority, job.MinPriority)
	}
}

func TestTyped_DecodesPayload(t *testing.T) {
	type payload struct {
		To string `json:"to"`
	}

	var got payload
	handler := job.Typed(func(_ context.Context, _ *job.Job, p payload) error {
		got = p
		return nil
	})

	j := job.New("emails", []byte(`{"to":"ops@example.com"}`))
	if err := handler(context.Background(), j); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got.To != "ops@example.com" {
		t.Errorf("payload.To = %q, want %q", got.To, "ops@example.com")
	}
}

func TestTyped_InvalidPayload(t *testing.T) {
	handler := job.Typed(func(_ context.Context, _ *job.Job, _ struct{ N int }) error {
		return nil
	})
	j := job.New("emails", []byte(`{not json`))
	if err := handler(context.Background(), j); err == nil {
		t.Error("handler should fail on malformed data")
	}
}
