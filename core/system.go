package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pawel-n/fiberize/logging"
	"github.com/pawel-n/fiberize/path"
)

// System is the runtime: a pool of workers, a main fiber pinned to its own
// goroutine, and the bookkeeping needed to spawn fibers, route dead letters
// and shut everything down cleanly.
//
// Grounded on fiberize/include/fiberize/system.hpp and
// fiberize/src/fiberize/system.cpp: a system owns exactly one
// ThreadScheduler for main, one FiberScheduler for everything else, and an
// identity (a uuid in both the original and here) used to namespace
// anything that needs to tell one running system apart from another.
type System struct {
	id  string
	cfg SystemConfig

	scheduler *FiberScheduler

	mainTCB       *ThreadControlBlock
	mainScheduler *ThreadScheduler

	running       atomic.Int64
	everRan       atomic.Bool
	finishedFired atomic.Bool
	shuttingDown  atomic.Bool

	allFibersFinishedRef FiberRef
	allFibersFinishedPath path.Path

	deadLetters atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	workersDone chan struct{}
	workersErr  error
}

// New creates a System from cfg, filling in defaults for anything left
// unset.
func New(cfg SystemConfig) *System {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.DefaultMailbox == nil {
		cfg.DefaultMailbox = func() Mailbox { return NewMutexMailbox() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NilMetrics{}
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = DefaultPanicHandler(cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sys := &System{
		id:          uuid.NewString(),
		cfg:         cfg,
		scheduler:   NewFiberScheduler(cfg.Workers),
		ctx:         ctx,
		cancel:      cancel,
		workersDone: make(chan struct{}),
	}
	sys.scheduler.OnFiberDone(sys.fiberFinished)
	sys.scheduler.SetMetrics(cfg.Metrics)
	sys.allFibersFinishedPath = path.Named("system/all-fibers-finished")

	mainPath := path.Named("main")
	sys.mainTCB = NewThreadControlBlock(mainPath, cfg.DefaultMailbox())
	sys.mainTCB.SetPanicHandler(sys.handlePanic)
	sys.mainTCB.SetMetrics(cfg.Metrics)
	sys.mainTCB.Context = NewEventContext(sys.mainTCB)
	sys.allFibersFinishedRef = NewLocalFiberRef(sys.mainTCB, mainPath)

	return sys
}

// ID is this system's unique identity, used to namespace identifiers for
// anything shared across multiple systems in the same process.
func (s *System) ID() string { return s.id }

func (s *System) handlePanic(p path.Path, recovered any) {
	s.cfg.Metrics.FiberPanicked()
	s.cfg.PanicHandler(p, recovered)
}

// Start launches the worker pool in the background. It returns immediately;
// call Join (or Shutdown then Join) to wait for it to stop.
func (s *System) Start() {
	go func() {
		s.workersErr = s.scheduler.Run(s.ctx)
		close(s.workersDone)
	}()
}

// Join blocks until the worker pool has stopped, returning any error a
// worker surfaced.
func (s *System) Join() error {
	<-s.workersDone
	return s.workersErr
}

// Shutdown marks the system as shutting down and cancels the worker pool and
// the main fiber's run loop. It does not wait for them to stop; call Join
// afterward if you need that. Once Shutdown has been called, Spawn no longer
// starts new fibers; it hands back a dead letter ref instead.
func (s *System) Shutdown() {
	s.shuttingDown.Store(true)
	s.cancel()
}

// RunMain runs body as the system's pinned main fiber on a dedicated
// goroutine, blocking the calling goroutine until body returns or Shutdown is
// called.
func (s *System) RunMain(body func(ctx *EventContext)) {
	s.mainScheduler = NewThreadScheduler(s.mainTCB, func() {
		body(s.mainTCB.Context)
	})
	s.mainScheduler.Run(s.ctx)
}

// MainRef returns a FiberRef addressing the system's main fiber.
func (s *System) MainRef() FiberRef {
	return s.allFibersFinishedRef
}

// SpawnOptions configures a single Spawn call.
type SpawnOptions struct {
	// Path identifies the new fiber. An anonymous path is generated if
	// unset.
	Path path.Path
	// Mailbox overrides the system's default mailbox constructor for this
	// fiber only.
	Mailbox Mailbox
	// Parent, if set, receives a CrashReport on the new fiber's own path if
	// its body panics past recovery.
	Parent FiberRef
	// Pinned, if set, binds the fiber to this scheduler for every future
	// resumption instead of the system's shared work-stealing pool. The
	// caller is responsible for running it (typically a dedicated
	// single-worker FiberScheduler). A pinned fiber's owner never changes,
	// so every later re-enable, no matter who sends to it, routes back
	// through Pinned.Push and onto that same scheduler.
	Pinned Scheduler
}

// Spawn starts a new fiber running body and returns a FiberRef addressing
// it. An unpinned fiber is placed round-robin across the shared worker
// pool, per FiberScheduler's placement policy; a pinned fiber (see
// SpawnOptions.Pinned) is placed directly on its bound scheduler instead.
func (s *System) Spawn(body func(ctx *EventContext), opts SpawnOptions) FiberRef {
	p := opts.Path
	if p.IsZero() {
		p = path.NewAnonymous()
	}

	if s.shuttingDown.Load() {
		return s.DeadLetter(p)
	}

	mailbox := opts.Mailbox
	if mailbox == nil {
		mailbox = s.cfg.DefaultMailbox()
	}

	owner := Scheduler(s.scheduler)
	if opts.Pinned != nil {
		owner = opts.Pinned
	}

	fcb := NewFiberControlBlock(p, mailbox, owner)
	parent := opts.Parent
	fcb.SetPanicHandler(func(crashedPath path.Path, recovered any) {
		s.handlePanic(crashedPath, recovered)
		if parent != nil {
			parent.Send(crashedPath, CrashReport{Path: crashedPath, Recovered: recovered}, nil)
		}
	})
	fcb.SetMetrics(s.cfg.Metrics)
	fcb.Context = NewEventContext(fcb)

	s.beforeSpawn()
	initFiberStack(fcb, func() {
		body(fcb.Context)
	})

	if fcb.Enable() {
		if opts.Pinned != nil {
			opts.Pinned.Push(fcb)
		} else {
			s.scheduler.PushRoundRobin(fcb)
		}
	}

	return NewLocalFiberRef(fcb, p)
}

// RunFiber spawns a fiber that computes a value of type A and returns a
// FutureControlBlock that settles with that value (or the error the body
// returns) once the body finishes. It is the generic sibling of Spawn for
// callers that want a result back instead of only an event-sending handle.
//
// Declared as a free function, not a method, since Go methods cannot carry
// their own type parameters independent of their receiver's.
func RunFiber[A any](s *System, body func(ctx *EventContext) (A, error)) *FutureControlBlock[A] {
	p := path.NewAnonymous()
	promise := NewPromise[A](p)

	s.Spawn(func(ctx *EventContext) {
		value, err := body(ctx)
		if err != nil {
			promise.Fail(err)
			return
		}
		promise.Fulfill(value)
	}, SpawnOptions{})

	return promise.Block()
}

func (s *System) beforeSpawn() {
	s.everRan.Store(true)
	s.running.Add(1)
	s.cfg.Metrics.FiberSpawned()
}

func (s *System) fiberFinished(fcb *FiberControlBlock) {
	s.cfg.Metrics.FiberFinished()
	s.decrementRunning()
}

// decrementRunning is fiberFinished's bookkeeping minus the metrics call,
// shared with BeginSpawnBatch's placeholder so a batch's own end doesn't get
// double-counted as a fiber finishing.
func (s *System) decrementRunning() {
	if s.running.Add(-1) == 0 && s.everRan.Load() {
		if s.finishedFired.CompareAndSwap(false, true) {
			s.allFibersFinishedRef.Send(s.allFibersFinishedPath, struct{}{}, nil)
		}
	}
}

// BeginSpawnBatch holds a placeholder in the running-fiber count until the
// returned function is called. Without it, a tight fan-out loop of Spawn
// calls can see running transiently hit zero, and thus fire
// AllFibersFinishedPath early, whenever an early fiber in the batch finishes
// before a later Spawn call in the same loop has even run: beforeSpawn only
// bumps running on the spawning goroutine one call at a time, so between two
// Spawn calls the count reflects only what has been spawned so far, not what
// the loop still intends to spawn.
//
// Wrap a fan-out loop with it:
//
//	done := sys.BeginSpawnBatch()
//	for i := 0; i < n; i++ {
//	    sys.Spawn(...)
//	}
//	done()
//
// The returned function must be called exactly once; calling it more than
// once is a no-op after the first call.
func (s *System) BeginSpawnBatch() func() {
	s.everRan.Store(true)
	s.running.Add(1)

	var once sync.Once
	return func() {
		once.Do(s.decrementRunning)
	}
}

// RunningFibers returns the current count of fibers that have been spawned
// but not yet finished.
func (s *System) RunningFibers() int64 {
	return s.running.Load()
}

// AllFibersFinishedPath is the path the system's main fiber should bind a
// handler on to learn when every spawned fiber has finished.
func (s *System) AllFibersFinishedPath() path.Path {
	return s.allFibersFinishedPath
}

// DeadLetter returns a FiberRef that drops everything sent to it, counting
// each drop. Used as the target for a send whose recipient has died or was
// never valid.
func (s *System) DeadLetter(p path.Path) DeadLetterFiberRef {
	return NewDeadLetterFiberRef(p, func(target path.Path, data any) {
		s.deadLetters.Add(1)
		s.cfg.Logger.Warn("dead letter", logging.F("path", target.String()), logging.F("data", fmt.Sprintf("%v", data)))
	})
}

// DeadLetterCount returns how many sends have been routed to a dead letter
// ref over this system's lifetime.
func (s *System) DeadLetterCount() int64 {
	return s.deadLetters.Load()
}

// QueueDepths returns each worker's current ready-queue length, for
// observability sampling.
func (s *System) QueueDepths() []int {
	return s.scheduler.QueueDepths()
}
