package io

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/pawel-n/fiberize/core"
	"github.com/pawel-n/fiberize/path"
)

// scheduledFire is one entry in the timer's min-heap: a point in time and
// the callback to run once it arrives.
type scheduledFire struct {
	at      time.Time
	fire    func(time.Time)
	heapPos int
}

type fireHeap []*scheduledFire

func (h fireHeap) Len() int           { return len(h) }
func (h fireHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h fireHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapPos = i
	h[j].heapPos = j
}

func (h *fireHeap) Push(x any) {
	n := len(*h)
	item := x.(*scheduledFire)
	item.heapPos = n
	*h = append(*h, item)
}

func (h *fireHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapPos = -1
	*h = old[:n-1]
	return item
}

// TimerService is a demo I/O adapter: a timer that honors the io.Mode
// contract end to end. It is not part of the core; the core only specifies
// the mode tags it consumes (see Mode, Result), but it shows one concrete
// way an external adapter satisfies that contract using the core's own
// Promise/Await machinery, with no core changes needed to support it.
//
// Adapted from the teacher's core/delay_manager.go: a mutex-guarded min-heap
// of pending fires, a background goroutine that sleeps until the soonest one
// is due, and a buffered wakeup channel so a newly scheduled fire that beats
// the current soonest one is never missed.
type TimerService struct {
	mu     sync.Mutex
	pq     fireHeap
	wakeup chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTimerService creates a TimerService and starts its background loop.
func NewTimerService() *TimerService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &TimerService{
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&s.pq)
	go s.loop()
	return s
}

// Stop shuts down the background loop. Fires already scheduled are
// discarded without running.
func (s *TimerService) Stop() {
	s.cancel()
}

func (s *TimerService) scheduleAt(at time.Time, fire func(time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &scheduledFire{at: at, fire: fire}
	heap.Push(&s.pq, item)

	if item.heapPos == 0 {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
}

func (s *TimerService) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		var due *scheduledFire
		if s.pq.Len() > 0 {
			next := s.pq[0]
			wait = time.Until(next.at)
			if wait <= 0 {
				due = heap.Pop(&s.pq).(*scheduledFire)
			}
		} else {
			wait = time.Hour
		}
		s.mu.Unlock()

		if due != nil {
			due.fire(time.Now())
			continue
		}

		timer.Reset(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.wakeup:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// scheduleFuture schedules a fire after d and returns the future it settles.
func (s *TimerService) scheduleFuture(d time.Duration) *core.FutureControlBlock[time.Time] {
	promise := core.NewPromise[time.Time](path.NewAnonymous())
	s.scheduleAt(time.Now().Add(d), func(firedAt time.Time) {
		promise.Fulfill(firedAt)
	})
	return promise.Block()
}

// After fires after d, honoring mode:
//
//	Block -> sleeps the calling goroutine directly and returns the value.
//	Await -> schedules the fire, then suspends ctx's fiber (via core.Await)
//	         until it settles, returning the value the same way Block does.
//	Async -> schedules the fire and returns immediately with its Future.
//
// ctx is only consulted in Await mode; pass nil for Block or Async.
func (s *TimerService) After(mode Mode, ctx *core.EventContext, d time.Duration) Result[time.Time, core.FutureControlBlock[time.Time]] {
	switch mode {
	case Block:
		time.Sleep(d)
		return BlockResult[time.Time, core.FutureControlBlock[time.Time]](time.Now())
	case Await:
		block := s.scheduleFuture(d)
		value, _ := core.Await(ctx, block)
		return AwaitResult[time.Time, core.FutureControlBlock[time.Time]](value)
	case Async:
		return AsyncResult[time.Time, core.FutureControlBlock[time.Time]](s.scheduleFuture(d))
	default:
		panic("io: unknown Mode")
	}
}

// RetryAfter runs attempt, retrying with backoff delays governed by policy
// whenever it returns a non-nil error, until it succeeds or policy's retry
// budget runs out. The delay between attempts is honored the same way d is
// in After: a Block caller sleeps the calling goroutine directly, while an
// Await or Async caller has each delay scheduled through this TimerService's
// own heap, so backing off never blocks a fiber's worker.
func (s *TimerService) RetryAfter(mode Mode, ctx *core.EventContext, policy RetryPolicy, attempt func() (time.Time, error)) Result[time.Time, core.FutureControlBlock[time.Time]] {
	switch mode {
	case Block:
		return BlockResult[time.Time, core.FutureControlBlock[time.Time]](s.retryBlocking(policy, attempt))
	case Await:
		block := s.scheduleRetryFuture(policy, attempt)
		value, _ := core.Await(ctx, block)
		return AwaitResult[time.Time, core.FutureControlBlock[time.Time]](value)
	case Async:
		return AsyncResult[time.Time, core.FutureControlBlock[time.Time]](s.scheduleRetryFuture(policy, attempt))
	default:
		panic("io: unknown Mode")
	}
}

func (s *TimerService) retryBlocking(policy RetryPolicy, attempt func() (time.Time, error)) time.Time {
	for n := 0; ; n++ {
		value, err := attempt()
		if err == nil || n >= policy.MaxRetries {
			return value
		}
		time.Sleep(policy.DelayFor(n))
	}
}

// scheduleRetryFuture chains attempts through this service's own scheduleAt
// heap rather than a background goroutine sleeping in a loop, so a pending
// retry shows up the same way a plain After fire would to anything watching
// the heap.
func (s *TimerService) scheduleRetryFuture(policy RetryPolicy, attempt func() (time.Time, error)) *core.FutureControlBlock[time.Time] {
	promise := core.NewPromise[time.Time](path.NewAnonymous())

	var tryOnce func(n int)
	tryOnce = func(n int) {
		value, err := attempt()
		if err == nil || n >= policy.MaxRetries {
			if err != nil {
				promise.Fail(err)
				return
			}
			promise.Fulfill(value)
			return
		}
		s.scheduleAt(time.Now().Add(policy.DelayFor(n)), func(time.Time) {
			tryOnce(n + 1)
		})
	}
	tryOnce(0)

	return promise.Block()
}
