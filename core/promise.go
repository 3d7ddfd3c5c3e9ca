package core

import (
	"github.com/pawel-n/fiberize/path"
)

// Promise is the write side of a future-valued event: exactly one of
// Fulfill or Fail may be called, exactly once, and that call settles the
// FutureControlBlock any number of awaiters are registered against.
//
// Grounded on the same controlblock.hpp family as FutureControlBlock: the
// original pairs a settable promise object with a read-only future handle
// so the producer and consumer sides can't be confused with each other.
type Promise[A any] struct {
	block *FutureControlBlock[A]
}

// NewPromise creates a fresh, unsettled promise.
func NewPromise[A any](p path.Path) *Promise[A] {
	return &Promise[A]{block: NewFutureControlBlock[A](p)}
}

// Fulfill settles the promise with a value. A second call, whether Fulfill
// or Fail, is a no-op.
func (p *Promise[A]) Fulfill(value A) {
	p.block.Settle(value, nil)
}

// Fail settles the promise with an error instead of a value.
func (p *Promise[A]) Fail(err error) {
	var zero A
	p.block.Settle(zero, err)
}

// Block returns the underlying FutureControlBlock, for handing to whatever
// await machinery needs to register a continuation.
func (p *Promise[A]) Block() *FutureControlBlock[A] {
	return p.block
}

// Await blocks the calling fiber until the promise settles, then returns its
// value or error. It never stops the fiber's goroutine outside the normal
// yield path: the system's design notes warn that await must compose with
// cooperative scheduling rather than bypass it, so this binds a one-shot
// handler on a private path, arranges for settlement to deliver to that path
// through the ordinary send machinery, and alternates Process/Yield until
// that handler has fired, servicing any other pending events along the way
// exactly as it would between two ordinary yields.
func Await[A any](ec *EventContext, block *FutureControlBlock[A]) (A, error) {
	type result struct {
		value A
		err   error
	}

	var (
		settled bool
		out     result
	)

	settlePath := path.NewAnonymous()
	ref := ec.Bind(settlePath, func(sup *Super, data any) {
		out = data.(result)
		settled = true
	})
	defer ref.Destroy()

	block.OnSettle(func(value A, err error) {
		ec.self.enqueueAndWake(PendingEvent{
			Path: settlePath,
			Data: result{value: value, err: err},
		})
	})

	for !settled {
		if !ec.Process() {
			ec.Yield()
		}
	}
	return out.value, out.err
}
