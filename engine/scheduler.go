package engine

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// WorkItem is one schedulable unit in the primary frontier: one flow
// entry's turn to run, carrying the deterministic OrderKey that fixes
// its position in the queue (adapted from the teacher's
// graph.WorkItem/Frontier, generalized from per-node state to an opaque
// payload since a flow's top-level entries are a fixed list rather than
// a branching graph).
type WorkItem struct {
	OrderKey uint64
	Index    int
	Payload  any
}

// ComputeOrderKey derives a deterministic sort key from a parent
// identifier and a child index, so parallel/foreach children (and
// top-level entries, keyed off their own index) always sort the same
// way regardless of dispatch or completion order (adapted verbatim in
// spirit from the teacher's graph.ComputeOrderKey; see SPEC_FULL.md §4
// "Deterministic order keys").
func ComputeOrderKey(parentID string, childIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentID))
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, uint32(childIndex))
	h.Write(idx)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

type workHeap []WorkItem

func (h workHeap) Len() int            { return len(h) }
func (h workHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the single serial priority queue that drives every
// top-level entry evaluation within one run at concurrency 1 (spec.md
// §4.5 "Scheduling primitive"). It combines a min-heap (deterministic
// ordering by OrderKey) with a buffered channel (bounded capacity,
// backpressure), reused from the teacher's graph.Frontier design.
type Frontier struct {
	heap     workHeap
	queue    chan WorkItem
	capacity int
	mu       sync.Mutex

	totalEnqueued      atomic.Int64
	totalDequeued      atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth     atomic.Int32
}

// NewFrontier builds a Frontier with the given buffered capacity.
func NewFrontier(capacity int) *Frontier {
	f := &Frontier{heap: make(workHeap, 0), queue: make(chan WorkItem, capacity), capacity: capacity}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds item to the frontier, blocking if the buffered channel is
// at capacity (backpressure) until space frees up or ctx is cancelled.
func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	heap.Push(&f.heap, item)
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	for {
		peak := f.peakQueueDepth.Load()
		if depth <= peak || f.peakQueueDepth.CompareAndSwap(peak, depth) {
			break
		}
	}
	if depth >= int32(f.capacity) {
		f.backpressureEvents.Add(1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- item:
		f.totalEnqueued.Add(1)
		return nil
	}
}

// Dequeue blocks until the minimum-OrderKey item is available or ctx is
// cancelled.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	var zero WorkItem
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.heap.Len() == 0 {
			return zero, context.Canceled
		}
		item := heap.Pop(&f.heap).(WorkItem)
		f.totalDequeued.Add(1)
		return item, nil
	}
}

// Len reports the current queue depth.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// SchedulerMetrics is a point-in-time snapshot of frontier activity
// (SPEC_FULL.md §4 "Scheduler metrics snapshot").
type SchedulerMetrics struct {
	QueueDepth         int32
	QueueCapacity      int32
	TotalEnqueued      int64
	TotalDequeued      int64
	BackpressureEvents int32
	PeakQueueDepth     int32
}

// Metrics returns a snapshot of this frontier's counters.
func (f *Frontier) Metrics() SchedulerMetrics {
	f.mu.Lock()
	depth := int32(f.heap.Len())
	f.mu.Unlock()
	return SchedulerMetrics{
		QueueDepth:         depth,
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:     f.peakQueueDepth.Load(),
	}
}
