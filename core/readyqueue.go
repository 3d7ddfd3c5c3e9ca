package core

import "sync"

// readyQueue is a per-worker queue of fibers that are Scheduled and waiting
// for CPU time. The owning worker pushes and pops from the bottom without
// contention; other workers that have run out of work steal from the top.
//
// This is the Chase-Lev work-stealing deque shape the spec's own design
// notes point at. Go's GC and escape analysis make the original's lock-free
// array-based deque more trouble than it's worth here, so this adapts the
// same two-ended-access idea onto a mutex-guarded slice: owner operations
// are always uncontended in the common case (no concurrent steal), and
// steals are rare enough relative to push/pop that a shared lock is not the
// bottleneck it would be for the mailbox.
type readyQueue struct {
	mu    sync.Mutex
	items []*FiberControlBlock
}

func newReadyQueue() *readyQueue {
	return &readyQueue{}
}

// PushBottom adds a fiber to the end the owner pops from.
func (q *readyQueue) PushBottom(fcb *FiberControlBlock) {
	q.mu.Lock()
	q.items = append(q.items, fcb)
	q.mu.Unlock()
}

// PopBottom removes and returns the most recently pushed fiber, the end
// the owning worker works from, giving it LIFO locality on its own queue.
func (q *readyQueue) PopBottom() (*FiberControlBlock, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil, false
	}
	fcb := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return fcb, true
}

// StealTop removes and returns the oldest fiber in the queue, the end a
// thief steals from, so a thief and the owner touch opposite ends and only
// contend on the shared lock, never on ordering.
func (q *readyQueue) StealTop() (*FiberControlBlock, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	fcb := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fcb, true
}

// Len reports the current queue depth. The value may be stale by the time
// the caller uses it; FiberScheduler.QueueDepths reads it for observability
// sampling, never as a correctness check.
func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
