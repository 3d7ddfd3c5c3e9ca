package core

import (
	"sync/atomic"
	"time"

	"github.com/pawel-n/fiberize/path"
)

// LifeStatus is the state of a fiber (or fiberized thread) as seen by the
// scheduler. Transitions are driven by enable/disable calls guarded by the
// owning ControlBlock's spinlock:
//
//	Suspended  -- enable() ------> Scheduled
//	Scheduled  -- worker picks up -> Running
//	Running    -- yield() --------> Suspended
//	Running    -- body returns ---> Dead
//
// A fiber parked waiting on its mailbox is Suspended; once something is
// enqueued for it, the sender transitions it to Scheduled and pushes it onto
// a ready queue so a worker will run it.
type LifeStatus int32

const (
	// Suspended means the fiber is idle, off every ready queue, waiting for
	// its mailbox to become non-empty.
	Suspended LifeStatus = iota
	// Scheduled means the fiber has been pushed onto a ready queue and is
	// waiting for a worker to pick it up.
	Scheduled
	// Running means a worker is currently executing the fiber's body.
	Running
	// Dead means the fiber's body has returned or panicked past recovery;
	// the control block is retained only so late sends can be dead-lettered.
	Dead
)

func (s LifeStatus) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ControlBlock is the state every schedulable unit shares: an identity, a
// life status guarded by a short spin-lock, and the bookkeeping needed to
// hand it between a sender and a scheduler without double-scheduling it.
//
// Grounded on fiberize/include/fiberize/detail/controlblock.hpp, which gives
// every fiber a mutex-guarded status plus an "isScheduled" style enable()
// that only the transition Suspended->Scheduled actually wakes.
type ControlBlock struct {
	lock   spinlock
	status atomic.Int32

	// Path identifies this control block's owner for dead-letter reporting
	// and diagnostics; it is not used for routing (routing goes through the
	// FiberRef that was handed out when the fiber was spawned).
	Path path.Path
}

// Status returns the current life status. Safe to call from any goroutine.
func (cb *ControlBlock) Status() LifeStatus {
	return LifeStatus(cb.status.Load())
}

func (cb *ControlBlock) setStatus(s LifeStatus) {
	cb.status.Store(int32(s))
}

// Enable transitions the control block from Suspended to Scheduled and
// reports whether that transition happened. Only the caller that wins this
// transition is responsible for pushing the control block onto a ready
// queue; every other concurrent caller (e.g. two senders racing to wake the
// same idle fiber) sees false and must not enqueue it again.
func (cb *ControlBlock) Enable() bool {
	cb.lock.Lock()
	defer cb.lock.Unlock()

	if LifeStatus(cb.status.Load()) != Suspended {
		return false
	}
	cb.setStatus(Scheduled)
	return true
}

// BeginRun transitions Scheduled -> Running. Called by the worker that
// dequeued this control block, immediately before jumping into its body.
func (cb *ControlBlock) BeginRun() {
	cb.lock.Lock()
	cb.setStatus(Running)
	cb.lock.Unlock()
}

// Suspend transitions Running -> Suspended unconditionally. Exposed for
// callers that have already established, under lock, that there is nothing
// left to drain; ordinary yield paths should use trySuspend instead.
func (cb *ControlBlock) Suspend() {
	cb.lock.Lock()
	cb.setStatus(Suspended)
	cb.lock.Unlock()
}

// trySuspend is the atomic "recheck mailbox, then suspend" a yielding fiber
// or thread must perform: hasWork is evaluated while holding the same lock
// Enable uses, so a send that enqueues an event and then loses the
// Suspended->Scheduled race (because the status hasn't flipped yet) is
// guaranteed to be observed here instead of being silently missed. If
// hasWork reports true, the transition is aborted: the control block is
// left Running and the caller must redrain rather than park.
func (cb *ControlBlock) trySuspend(hasWork func() bool) bool {
	cb.lock.Lock()
	defer cb.lock.Unlock()

	if hasWork() {
		return false
	}
	cb.setStatus(Suspended)
	return true
}

// Kill transitions to Dead unconditionally. Called once, when a fiber's body
// returns or its panic handler finishes reporting a crash.
func (cb *ControlBlock) Kill() {
	cb.lock.Lock()
	cb.setStatus(Dead)
	cb.lock.Unlock()
}

// IsAlive reports whether the control block is anywhere before Dead.
func (cb *ControlBlock) IsAlive() bool {
	return cb.Status() != Dead
}

// FiberControlBlock is the control block for a user fiber: a mailbox to
// receive events into, an EventContext to dispatch them through, and the
// context-switch handle (see contextswitch.go) used to jump between the
// fiber's goroutine and the worker that's currently scheduling it.
type FiberControlBlock struct {
	ControlBlock

	Mailbox Mailbox
	Context *EventContext

	stack *fiberStack

	// owner is the scheduler this fiber is currently assigned to; sends that
	// win Enable() push onto owner's ready queue.
	owner Scheduler

	// onPanic is invoked, if set, when this fiber's body panics.
	onPanic PanicHandler

	// metrics, if set, is observed on every send into this fiber's mailbox.
	metrics Metrics

	// scheduledAt is stamped by the scheduler the instant this fiber is
	// pushed onto a ready queue, so the worker that eventually starts it can
	// report how long it waited.
	scheduledAt time.Time
}

// NewFiberControlBlock allocates a FiberControlBlock bound to the given
// mailbox and scheduler. The caller must still attach a Context and a stack
// (via initFiberStack) before the fiber can run.
func NewFiberControlBlock(p path.Path, mailbox Mailbox, owner Scheduler) *FiberControlBlock {
	fcb := &FiberControlBlock{Mailbox: mailbox, owner: owner}
	fcb.Path = p
	fcb.setStatus(Suspended)
	return fcb
}

// Owner returns the scheduler this fiber is currently assigned to.
func (fcb *FiberControlBlock) Owner() Scheduler {
	return fcb.owner
}

// SetOwner reassigns the fiber to a different scheduler. FiberScheduler's
// Push and PushRoundRobin call it whenever they place the fiber; a steal
// between workers of the same scheduler leaves the owner unchanged.
func (fcb *FiberControlBlock) SetOwner(s Scheduler) {
	fcb.owner = s
}

// SetPanicHandler installs the handler invoked if this fiber's body panics.
func (fcb *FiberControlBlock) SetPanicHandler(h PanicHandler) {
	fcb.onPanic = h
}

// SetMetrics installs the Metrics sink observed on every send into this
// fiber's mailbox.
func (fcb *FiberControlBlock) SetMetrics(m Metrics) {
	fcb.metrics = m
}

func (fcb *FiberControlBlock) mailbox() Mailbox { return fcb.Mailbox }

// park suspends the calling fiber (see EventContext.Yield) until it is
// jumped back into.
func (fcb *FiberControlBlock) park() { yieldFiber(fcb) }

// enqueueAndWake enqueues e and, if this fiber was idle, re-enables it and
// hands it to its scheduler. Called by FiberRef.Send from any goroutine.
//
// A target that has already reached Dead will never dequeue anything again,
// since no worker is going to jump into it, so enqueuing here would leak e's
// payload forever instead of freeing it exactly once. Detected up front and
// routed straight to free(), matching a send to a DeadLetterFiberRef.
func (fcb *FiberControlBlock) enqueueAndWake(e PendingEvent) {
	if fcb.Status() == Dead {
		e.free()
		return
	}
	fcb.Mailbox.Enqueue(e)
	if fcb.metrics != nil {
		fcb.metrics.MailboxDepthObserved(fcb.Mailbox.Len())
	}
	if fcb.Enable() && fcb.owner != nil {
		fcb.owner.Push(fcb)
	}
}

// ThreadControlBlock is the control block for a fiberized OS thread: a
// thread pinned to run exactly one fiber, blocking (rather than yielding to
// a worker pool) whenever that fiber's mailbox is empty. Used for the "main"
// fiber; fibers spawned with SpawnOptions.Pinned use a FiberControlBlock.
//
// Grounded on fiberize/src/fiberize/detail/threadscheduler.cpp, which gives
// a dedicated thread a condition variable it waits on between wakeups
// instead of parking on a shared ready queue.
type ThreadControlBlock struct {
	ControlBlock

	Mailbox Mailbox
	Context *EventContext

	wake    chan struct{}
	onPanic PanicHandler
	metrics Metrics
}

// NewThreadControlBlock allocates a ThreadControlBlock. wake is buffered
// with capacity 1 so a sender that races the thread going to sleep never
// blocks and never loses the wakeup.
func NewThreadControlBlock(p path.Path, mailbox Mailbox) *ThreadControlBlock {
	tcb := &ThreadControlBlock{
		Mailbox: mailbox,
		wake:    make(chan struct{}, 1),
	}
	tcb.Path = p
	tcb.setStatus(Suspended)
	return tcb
}

// Enable for a ThreadControlBlock both performs the Suspended->Scheduled
// transition and, on success, signals the thread's wake channel so it can
// be observed even though ThreadControlBlock has no ready queue to push
// onto.
func (tcb *ThreadControlBlock) Enable() bool {
	ok := tcb.ControlBlock.Enable()
	if ok {
		select {
		case tcb.wake <- struct{}{}:
		default:
		}
	}
	return ok
}

// Wake returns the channel the owning thread should block on between
// mailbox drains.
func (tcb *ThreadControlBlock) Wake() <-chan struct{} {
	return tcb.wake
}

// SetPanicHandler installs the handler invoked if this thread's body panics.
func (tcb *ThreadControlBlock) SetPanicHandler(h PanicHandler) {
	tcb.onPanic = h
}

// SetMetrics installs the Metrics sink observed on every send into this
// thread's mailbox.
func (tcb *ThreadControlBlock) SetMetrics(m Metrics) {
	tcb.metrics = m
}

func (tcb *ThreadControlBlock) mailbox() Mailbox { return tcb.Mailbox }

// park blocks the pinned thread until Enable signals its wake channel. The
// channel's buffer of 1 means a wake that races ahead of a committed
// Suspend is never lost, but Enable only signals when it wins the
// Suspended->Scheduled transition; a send that lands while the thread is
// still Running sets nothing. park closes that window the same way
// FiberControlBlock's yield does: trySuspend rechecks the mailbox under the
// status lock before committing to Suspended, and aborts (returning
// immediately instead of blocking on wake) if something is already there.
func (tcb *ThreadControlBlock) park() {
	if !tcb.trySuspend(func() bool { return tcb.Mailbox.Len() > 0 }) {
		return
	}
	<-tcb.wake
	tcb.BeginRun()
}

// enqueueAndWake enqueues e and re-enables the pinned thread if it was idle.
// ThreadControlBlock.Enable already signals the wake channel on its own, so
// there is no scheduler to push onto.
//
// As with FiberControlBlock, a Dead target is routed straight to free(): it
// has no run loop left to ever dequeue this, so enqueuing would leak the
// payload instead of freeing it exactly once.
func (tcb *ThreadControlBlock) enqueueAndWake(e PendingEvent) {
	if tcb.Status() == Dead {
		e.free()
		return
	}
	tcb.Mailbox.Enqueue(e)
	if tcb.metrics != nil {
		tcb.metrics.MailboxDepthObserved(tcb.Mailbox.Len())
	}
	tcb.Enable()
}

// fiberHost is whatever an EventContext dispatches on behalf of: something
// with a mailbox to drain and a way to suspend until there's more to drain.
// FiberControlBlock and ThreadControlBlock both implement it, which is what
// lets EventContext drive either a pooled, work-stealing fiber or a fiber
// pinned to its own dedicated thread identically.
type fiberHost interface {
	mailbox() Mailbox
	park()
	enqueueAndWake(e PendingEvent)
}

// FutureControlBlock is the control block backing a Future[A]: a value that
// starts unset and is settled exactly once, after which any fiber awaiting
// it is re-enabled.
//
// Grounded on the same controlblock.hpp family of types, specialized the way
// fiberize's C++ FutureControlBlock<A> specializes ControlBlock: the status
// machine is identical, but completion carries a value instead of running a
// body.
type FutureControlBlock[A any] struct {
	ControlBlock

	lock    spinlock
	done    bool
	value   A
	err     error
	waiters []func(A, error)
}

// NewFutureControlBlock allocates an unsettled future.
func NewFutureControlBlock[A any](p path.Path) *FutureControlBlock[A] {
	fcb := &FutureControlBlock[A]{}
	fcb.Path = p
	fcb.setStatus(Suspended)
	return fcb
}

// Settle sets the future's result exactly once and synchronously invokes any
// continuations registered via OnSettle, in registration order. A second
// call to Settle is a no-op: fiberize futures, like their C++ counterpart,
// are single-assignment.
func (fcb *FutureControlBlock[A]) Settle(value A, err error) {
	fcb.lock.Lock()
	if fcb.done {
		fcb.lock.Unlock()
		return
	}
	fcb.done = true
	fcb.value = value
	fcb.err = err
	waiters := fcb.waiters
	fcb.waiters = nil
	fcb.lock.Unlock()

	fcb.Kill()
	for _, w := range waiters {
		w(value, err)
	}
}

// OnSettle registers a continuation to run when the future settles. If it
// has already settled, the continuation runs immediately on the calling
// goroutine.
func (fcb *FutureControlBlock[A]) OnSettle(f func(A, error)) {
	fcb.lock.Lock()
	if fcb.done {
		value, err := fcb.value, fcb.err
		fcb.lock.Unlock()
		f(value, err)
		return
	}
	fcb.waiters = append(fcb.waiters, f)
	fcb.lock.Unlock()
}

// Peek returns the settled value without blocking, reporting false if the
// future has not yet settled.
func (fcb *FutureControlBlock[A]) Peek() (A, error, bool) {
	fcb.lock.Lock()
	defer fcb.lock.Unlock()
	return fcb.value, fcb.err, fcb.done
}
