package core

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// FiberScheduler is the shared work-stealing pool: N workers, each with its
// own readyQueue, each pulling from the bottom of its own queue first and
// stealing from the top of another worker's queue when its own runs dry.
//
// Initial placement of a newly spawned fiber is round-robin (PushRoundRobin,
// called once by System.Spawn) so a burst of spawns fans out evenly without
// needing to look at queue depth. Re-enabling a fiber that went idle and was
// later sent an event (Push, satisfying the Scheduler interface) places it
// on a uniformly random worker instead: round-robin there would make the
// worker a sender happened to send from an accidental hot spot, and a steal
// already exists as the fallback load balancer.
type FiberScheduler struct {
	workers []*fiberWorker
	wake    chan struct{}
	next    uint64 // round-robin cursor, advanced only from PushRoundRobin

	// onFiberDone is invoked by a worker immediately after jumping into a
	// fiber whose body has finished (Status() == Dead). System wires this
	// to its fiber-finished bookkeeping.
	onFiberDone func(*FiberControlBlock)

	metrics Metrics
}

type fiberWorker struct {
	id    int
	queue *readyQueue
	sched *FiberScheduler
}

// NewFiberScheduler creates a scheduler with the given number of workers.
// Workers do not start running until Run is called.
func NewFiberScheduler(workers int) *FiberScheduler {
	if workers < 1 {
		workers = 1
	}
	s := &FiberScheduler{
		wake: make(chan struct{}, 1),
	}
	for i := 0; i < workers; i++ {
		s.workers = append(s.workers, &fiberWorker{id: i, queue: newReadyQueue(), sched: s})
	}
	return s
}

// OnFiberDone registers the callback invoked whenever a worker observes a
// fiber's body finish.
func (s *FiberScheduler) OnFiberDone(f func(*FiberControlBlock)) {
	s.onFiberDone = f
}

// SetMetrics installs the Metrics sink observed for steal attempts, worker
// idle periods, and scheduling latency.
func (s *FiberScheduler) SetMetrics(m Metrics) {
	s.metrics = m
}

// NumWorkers returns how many workers this scheduler runs.
func (s *FiberScheduler) NumWorkers() int {
	return len(s.workers)
}

// QueueDepths returns each worker's current ready-queue length, indexed by
// worker id. Meant for periodic observability sampling, not for scheduling
// decisions.
func (s *FiberScheduler) QueueDepths() []int {
	depths := make([]int, len(s.workers))
	for i, w := range s.workers {
		depths[i] = w.queue.Len()
	}
	return depths
}

// Run starts all workers and blocks until ctx is canceled or a worker
// returns an error. It is the scheduler's equivalent of the teacher's
// errgroup-joined worker pool.
func (s *FiberScheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			w.run(ctx)
			return nil
		})
	}
	return g.Wait()
}

// PushRoundRobin places fcb on the next worker in round-robin order. Used
// only for a fiber's first placement, at spawn time.
func (s *FiberScheduler) PushRoundRobin(fcb *FiberControlBlock) {
	idx := int(s.next % uint64(len(s.workers)))
	s.next++
	fcb.SetOwner(s)
	fcb.scheduledAt = time.Now()
	s.workers[idx].queue.PushBottom(fcb)
	s.notify()
}

// Push places fcb on a uniformly random worker. This is the Scheduler
// interface method, invoked whenever a send re-enables an idle fiber.
func (s *FiberScheduler) Push(fcb *FiberControlBlock) {
	idx := rand.Intn(len(s.workers))
	fcb.SetOwner(s)
	fcb.scheduledAt = time.Now()
	s.workers[idx].queue.PushBottom(fcb)
	s.notify()
}

func (s *FiberScheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// steal tries a handful of random victims other than self, returning the
// first fiber it manages to steal.
func (s *FiberScheduler) steal(self *fiberWorker) (*FiberControlBlock, bool) {
	n := len(s.workers)
	if n < 2 {
		return nil, false
	}
	attempts := n - 1
	if attempts > 4 {
		attempts = 4
	}
	for i := 0; i < attempts; i++ {
		victim := s.workers[rand.Intn(n)]
		if victim == self {
			continue
		}
		fcb, ok := victim.queue.StealTop()
		if s.metrics != nil {
			s.metrics.StealAttempted(ok)
		}
		if ok {
			return fcb, true
		}
	}
	return nil, false
}

func (w *fiberWorker) run(ctx context.Context) {
	for {
		fcb, ok := w.queue.PopBottom()
		if !ok {
			fcb, ok = w.sched.steal(w)
		}
		if !ok {
			if w.sched.metrics != nil {
				w.sched.metrics.WorkerParked()
			}
			select {
			case <-ctx.Done():
				return
			case <-w.sched.wake:
			case <-time.After(stealPollInterval):
			}
			continue
		}
		w.runFiber(fcb)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *fiberWorker) runFiber(fcb *FiberControlBlock) {
	if w.sched.metrics != nil && !fcb.scheduledAt.IsZero() {
		w.sched.metrics.SchedulingLatencyObserved(time.Since(fcb.scheduledAt))
	}
	fcb.BeginRun()
	jumpIntoFiber(fcb)

	if fcb.Status() == Dead && w.sched.onFiberDone != nil {
		w.sched.onFiberDone(fcb)
	}
}
