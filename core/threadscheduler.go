package core

import "context"

// ThreadScheduler runs a single ThreadControlBlock on its own dedicated
// goroutine instead of a shared work-stealing pool. It is what backs a
// system's main fiber. Fibers spawned with SpawnOptions.Pinned are
// FiberControlBlocks and go through their pinned Scheduler's Push instead.
//
// Grounded on fiberize/src/fiberize/detail/threadscheduler.cpp: one thread,
// one fiber, blocking between mailbox drains instead of yielding the CPU
// back to a pool.
type ThreadScheduler struct {
	tcb  *ThreadControlBlock
	body func()
}

// NewThreadScheduler pairs a ThreadControlBlock with the body its dedicated
// goroutine should run.
func NewThreadScheduler(tcb *ThreadControlBlock, body func()) *ThreadScheduler {
	return &ThreadScheduler{tcb: tcb, body: body}
}

// Run starts the body on a dedicated goroutine and blocks the caller until
// the body returns or ctx is canceled; on cancellation Run returns without
// waiting for the body. Unlike FiberScheduler, there is no context switch
// here: the body runs directly, and EventContext.Yield blocks on the
// ThreadControlBlock's wake channel rather than handing a baton to a
// worker.
func (s *ThreadScheduler) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil && s.tcb.onPanic != nil {
				s.tcb.onPanic(s.tcb.Path, r)
			}
			s.tcb.Kill()
		}()
		s.tcb.BeginRun()
		s.body()
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

// Push is unused by ThreadScheduler in the usual send path: a
// ThreadControlBlock wakes itself through ThreadControlBlock.Enable, and a
// ThreadScheduler has no ready queue to place a FiberControlBlock on. It
// panics to surface a caller that routes a fiber here loudly.
func (s *ThreadScheduler) Push(fcb *FiberControlBlock) {
	panic("fiberize: ThreadScheduler.Push called; a ThreadControlBlock wakes through ThreadControlBlock.Enable, not the Scheduler interface")
}
