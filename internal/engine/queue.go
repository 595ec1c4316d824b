package engine

import (
	"container/heap"
	"sync"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// eventKind distinguishes the things that can happen to a call.
type eventKind int

const (
	// eventCallStart begins executing a submitted or sub-call.
	eventCallStart eventKind = iota + 1
	// eventReply delivers a resolved sub-call's outcome to its caller.
	eventReply
	// eventDeadline expires a bounded wait on the caller side.
	eventDeadline
	// eventSegmentEnd commits a work-accruing segment at its virtual
	// end and performs its boundary action.
	eventSegmentEnd
)

// event is one timeline entry. dueAt is virtual milliseconds; seq breaks
// ties so that delivery order is total and replayable.
type event struct {
	kind  eventKind
	dueAt int64
	seq   int64

	// callID targets the call the event concerns: the call to start, or
	// the suspended caller to resume.
	callID string
	// subID is the awaited sub-call (reply, deadline). A resume event
	// whose subID no longer matches the caller's pending wait is stale
	// and dropped.
	subID string
	// outcome is the callee's resolution (reply only).
	outcome *ir.OutcomeRecord
}

// timeline is the engine's event queue, ordered by (dueAt, seq).
//
// Unlike a plain FIFO, bounded waits need events scheduled into the
// virtual future: a deadline is pushed at submit time but must not fire
// before everything due earlier. A min-heap gives that ordering while
// keeping external Push safe from any goroutine; only the single-writer
// loop pops.
type timeline struct {
	mu     sync.Mutex
	heap   eventHeap
	closed bool
	signal chan struct{} // buffered size 1, coalesces wakeups
}

func newTimeline() *timeline {
	return &timeline{
		heap:   make(eventHeap, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push schedules an event. Safe from any goroutine.
// Returns false if the timeline is closed.
func (t *timeline) Push(e event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	heap.Push(&t.heap, e)
	select {
	case t.signal <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the earliest event without blocking.
func (t *timeline) TryPop() (event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.heap) == 0 {
		return event{}, false
	}
	return heap.Pop(&t.heap).(event), true
}

// Len returns the number of pending events.
func (t *timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.heap)
}

// Wait returns the wakeup channel. It closes when the timeline closes.
func (t *timeline) Wait() <-chan struct{} {
	return t.signal
}

// Close rejects further pushes and wakes any waiter.
func (t *timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.signal)
}

// eventHeap orders events by (dueAt, seq).
type eventHeap []event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].dueAt != h[j].dueAt {
		return h[i].dueAt < h[j].dueAt
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = event{} // release outcome pointer to GC
	*h = old[:n-1]
	return e
}
