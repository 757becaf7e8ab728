package queue

import (
	"sort"
	"sync"

	"github.com/camber-run/camber/job"
)

// DefaultCapacity bounds the ready queue when no capacity is given.
const DefaultCapacity = 10000

// OverflowFunc is invoked when an insert is rejected because the queue
// is full.
type OverflowFunc func(queueSize, maxSize int)

// ReadyQueue is a bounded holding area for claimed jobs awaiting
// dispatch, ordered by (NextRunAt ASC, Priority DESC, FIFO). Index 0
// is the most urgent job. It is safe for concurrent use.
type ReadyQueue struct {
	mu         sync.Mutex
	handles    []*job.Handle
	capacity   int
	onOverflow OverflowFunc
}

// ReadyQueueOption configures a ReadyQueue.
type ReadyQueueOption func(*ReadyQueue)

// WithCapacity bounds the queue. Non-positive values fall back to
// DefaultCapacity.
func WithCapacity(n int) ReadyQueueOption {
	return func(q *ReadyQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithOverflowFunc sets the callback fired on rejected inserts.
func WithOverflowFunc(fn OverflowFunc) ReadyQueueOption {
	return func(q *ReadyQueue) { q.onOverflow = fn }
}

// NewReadyQueue creates an empty ready queue.
func NewReadyQueue(opts ...ReadyQueueOption) *ReadyQueue {
	q := &ReadyQueue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// less orders a before b: earlier NextRunAt first, higher Priority on
// ties. A nil NextRunAt sorts last.
func less(a, b *job.Job) bool {
	switch {
	case a.NextRunAt == nil && b.NextRunAt == nil:
	case a.NextRunAt == nil:
		return false
	case b.NextRunAt == nil:
		return true
	case !a.NextRunAt.Equal(*b.NextRunAt):
		return a.NextRunAt.Before(*b.NextRunAt)
	}
	return a.Priority > b.Priority
}

// Insert places h at its ordered position. Among equal keys insertion
// order is preserved. Returns false without inserting when the queue
// is full; the caller must then release the claim to prevent leakage.
func (q *ReadyQueue) Insert(h *job.Handle) bool {
	q.mu.Lock()

	if len(q.handles) >= q.capacity {
		size, capacity := len(q.handles), q.capacity
		overflow := q.onOverflow
		q.mu.Unlock()
		if overflow != nil {
			overflow(size, capacity)
		}
		return false
	}

	// Smallest index whose element sorts strictly after h; inserting
	// there keeps FIFO order among equal keys.
	i := sort.Search(len(q.handles), func(i int) bool {
		return less(h.Job(), q.handles[i].Job())
	})
	q.handles = append(q.handles, nil)
	copy(q.handles[i+1:], q.handles[i:])
	q.handles[i] = h

	q.mu.Unlock()
	return true
}

// Pop returns and removes the rightmost element: the least urgent job
// that has nevertheless arrived.
func (q *ReadyQueue) Pop() *job.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.handles) == 0 {
		return nil
	}
	last := len(q.handles) - 1
	h := q.handles[last]
	q.handles[last] = nil
	q.handles = q.handles[:last]
	return h
}

// Remove deletes h from the queue, matching by identity first and by
// job ID second. Returns false when not found.
func (q *ReadyQueue) Remove(h *job.Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, existing := range q.handles {
		if existing == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		want := h.Job().ID.String()
		for i, existing := range q.handles {
			if existing.Job().ID.String() == want {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false
	}

	copy(q.handles[idx:], q.handles[idx+1:])
	q.handles[len(q.handles)-1] = nil
	q.handles = q.handles[:len(q.handles)-1]
	return true
}

// PickNextRunnable scans from right to left and returns the first job
// whose name canRun reports true for and whose id is not excluded.
// The rightward bias dispatches smaller-priority, later-time jobs
// first so higher-priority arrivals are preserved for the next pass.
// The returned handle stays in the queue.
func (q *ReadyQueue) PickNextRunnable(canRun func(name string) bool, excluded map[string]struct{}) *job.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(q.handles) - 1; i >= 0; i-- {
		h := q.handles[i]
		if _, skip := excluded[h.Job().ID.String()]; skip {
			continue
		}
		if canRun(h.Job().Name) {
			return h
		}
	}
	return nil
}

// Len returns the number of queued jobs.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handles)
}

// Cap returns the queue capacity.
func (q *ReadyQueue) Cap() int { return q.capacity }

// Utilization returns the fill ratio in [0, 1].
func (q *ReadyQueue) Utilization() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return float64(len(q.handles)) / float64(q.capacity)
}

// IsNearCapacity reports whether utilization meets or exceeds the
// given threshold, for back-pressure decisions.
func (q *ReadyQueue) IsNearCapacity(threshold float64) bool {
	return q.Utilization() >= threshold
}

// Handles returns a snapshot of the queued handles in order.
func (q *ReadyQueue) Handles() []*job.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.Handle, len(q.handles))
	copy(out, q.handles)
	return out
}
