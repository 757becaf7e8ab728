package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/camber-run/camber/job"
	"github.com/camber-run/camber/queue"
)

func handleAt(t *testing.T, name string, nextRunAt time.Time, priority int) *job.Handle {
	t.Helper()
	j := job.New(name, nil)
	j.NextRunAt = &nextRunAt
	j.Priority = priority
	def := job.NewDefinition(name, func(context.Context, *job.Job) error { return nil })
	return job.NewHandle(j, def)
}

func allowAll(string) bool { return true }

func TestReadyQueue_OrdersByTimeThenPriority(t *testing.T) {
	base := time.Now().UTC()
	q := queue.NewReadyQueue()

	late := handleAt(t, "a", base.Add(time.Minute), 0)
	earlyLow := handleAt(t, "b", base, -5)
	earlyHigh := handleAt(t, "c", base, 10)

	for _, h := range []*job.Handle{late, earlyLow, earlyHigh} {
		if !q.Insert(h) {
			t.Fatal("Insert failed")
		}
	}

	got := q.Handles()
	want := []*job.Handle{earlyHigh, earlyLow, late}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d = %s, want %s", i, got[i].Job().Name, want[i].Job().Name)
		}
	}
}

func TestReadyQueue_FIFOAmongEqualKeys(t *testing.T) {
	at := time.Now().UTC()
	q := queue.NewReadyQueue()

	first := handleAt(t, "first", at, 0)
	second := handleAt(t, "second", at, 0)
	q.Insert(first)
	q.Insert(second)

	got := q.Handles()
	if got[0] != first || got[1] != second {
		t.Error("equal keys should preserve insertion order")
	}
}

func TestReadyQueue_CapacityAndOverflow(t *testing.T) {
	at := time.Now().UTC()
	var overflowSize, overflowMax int
	q := queue.NewReadyQueue(
		queue.WithCapacity(2),
		queue.WithOverflowFunc(func(size, maxSize int) {
			overflowSize, overflowMax = size, maxSize
		}),
	)

	q.Insert(handleAt(t, "a", at, 0))
	q.Insert(handleAt(t, "b", at, 0))

	if q.Insert(handleAt(t, "c", at, 0)) {
		t.Fatal("Insert into a full queue should fail")
	}
	if overflowSize != 2 || overflowMax != 2 {
		t.Errorf("overflow reported (%d, %d), want (2, 2)", overflowSize, overflowMax)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestReadyQueue_PopReturnsRightmost(t *testing.T) {
	base := time.Now().UTC()
	q := queue.NewReadyQueue()

	urgent := handleAt(t, "urgent", base, 10)
	idle := handleAt(t, "idle", base.Add(time.Hour), -10)
	q.Insert(urgent)
	q.Insert(idle)

	if got := q.Pop(); got != idle {
		t.Errorf("Pop = %s, want idle (least urgent)", got.Job().Name)
	}
	if got := q.Pop(); got != urgent {
		t.Errorf("Pop = %s, want urgent", got.Job().Name)
	}
	if q.Pop() != nil {
		t.Error("Pop on empty queue should return nil")
	}
}

func TestReadyQueue_Remove(t *testing.T) {
	at := time.Now().UTC()
	q := queue.NewReadyQueue()

	h := handleAt(t, "a", at, 0)
	q.Insert(h)

	if !q.Remove(h) {
		t.Fatal("Remove should find the handle")
	}
	if q.Remove(h) {
		t.Fatal("second Remove should report missing")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestReadyQueue_RemoveByID(t *testing.T) {
	at := time.Now().UTC()
	q := queue.NewReadyQueue()

	h := handleAt(t, "a", at, 0)
	q.Insert(h)

	// A distinct handle wrapping the same record matches by id.
	twin := job.NewHandle(h.Job(), h.Definition())
	if !q.Remove(twin) {
		t.Fatal("Remove should match by job id")
	}
}

func TestReadyQueue_PickNextRunnable_RightwardBias(t *testing.T) {
	base := time.Now().UTC()
	q := queue.NewReadyQueue()

	high := handleAt(t, "high", base, 10)
	low := handleAt(t, "low", base, -10)
	q.Insert(high)
	q.Insert(low)

	// The rightmost (least urgent) runnable is picked so the
	// higher-priority job is preserved for the next pass.
	if got := q.PickNextRunnable(allowAll, nil); got != low {
		t.Errorf("picked %s, want low", got.Job().Name)
	}
}

func TestReadyQueue_PickNextRunnable_RespectsCeilingAndExclusion(t *testing.T) {
	base := time.Now().UTC()
	q := queue.NewReadyQueue()

	a := handleAt(t, "blocked", base, 0)
	b := handleAt(t, "open", base.Add(time.Second), 0)
	c := handleAt(t, "open", base.Add(2*time.Second), 0)
	q.Insert(a)
	q.Insert(b)
	q.Insert(c)

	canRun := func(name string) bool { return name != "blocked" }
	excluded := map[string]struct{}{c.Job().ID.String(): {}}

	if got := q.PickNextRunnable(canRun, excluded); got != b {
		t.Errorf("picked %v, want the non-excluded open job", got.Job().Name)
	}

	blockAll := func(string) bool { return false }
	if got := q.PickNextRunnable(blockAll, nil); got != nil {
		t.Errorf("picked %v, want nil when all names are at ceiling", got.Job().Name)
	}
}

func TestReadyQueue_Utilization(t *testing.T) {
	at := time.Now().UTC()
	q := queue.NewReadyQueue(queue.WithCapacity(4))

	q.Insert(handleAt(t, "a", at, 0))
	q.Insert(handleAt(t, "b", at, 0))

	if got := q.Utilization(); got != 0.5 {
		t.Errorf("Utilization = %v, want 0.5", got)
	}
	if !q.IsNearCapacity(0.5) {
		t.Error("IsNearCapacity(0.5) should be true at half full")
	}
	if q.IsNearCapacity(0.75) {
		t.Error("IsNearCapacity(0.75) should be false at half full")
	}
}
