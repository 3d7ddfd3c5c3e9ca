package fiberize

import "github.com/pawel-n/fiberize/core"

// Spawn starts a new fiber running body on sys and returns a FiberRef
// addressing it.
func Spawn(sys *System, body func(ctx *Context), opts SpawnOptions) FiberRef {
	return sys.Spawn(func(ec *core.EventContext) {
		body(wrapContext(ec))
	}, opts)
}

// Future is a read-only handle to a value a fiber is computing: the public
// sibling of core.Promise, returned by RunFiber instead of built by hand.
//
// Grounded on spec §6's external Promise<A> contract (set/setException/
// await); Future is the awaiting side of that contract, specialized so
// every caller doesn't need to hand-build a core.Promise themselves.
type Future[A any] struct {
	block *core.FutureControlBlock[A]
}

// Await suspends ctx's fiber until the future settles, then returns its
// value or error.
func (f Future[A]) Await(ctx *Context) (A, error) {
	return core.Await(ctx.ec, f.block)
}

// Peek returns the settled value without blocking, reporting false if the
// future has not yet settled.
func (f Future[A]) Peek() (A, error, bool) {
	return f.block.Peek()
}

// RunFiber spawns a fiber that computes a value of type A and returns a
// Future that settles with that value (or the error body returns) once the
// fiber's body finishes.
func RunFiber[A any](sys *System, body func(ctx *Context) (A, error)) Future[A] {
	block := core.RunFiber(sys, func(ec *core.EventContext) (A, error) {
		return body(wrapContext(ec))
	})
	return Future[A]{block: block}
}

// RunMain runs body as sys's pinned main fiber on a dedicated goroutine,
// blocking the calling goroutine until body returns or sys.Shutdown is called.
func RunMain(sys *System, body func(ctx *Context)) {
	sys.RunMain(func(ec *core.EventContext) {
		body(wrapContext(ec))
	})
}
