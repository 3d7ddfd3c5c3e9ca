package fiberize

import (
	"github.com/pawel-n/fiberize/core"
	"github.com/pawel-n/fiberize/path"
)

// Event is a typed name for a message exchanged between fibers: a Path
// identifying it, plus the Go type of the payload it carries. Event values
// are immutable and safe to share across goroutines; every fiber that knows
// an Event's path can Bind a handler for it, Await its next occurrence, or
// Emit a value on it.
//
// Grounded on fiberize/include/fiberize/event.hpp's Event<A>: path(), bind(),
// await() translated to Go generics instead of a C++ template.
type Event[A any] struct {
	path path.Path
}

// NewEvent returns the Event identified by the given stable name. Two calls
// with the same name (and the same A) always address the same handler
// stack on every fiber's Context.
func NewEvent[A any](name string) Event[A] {
	return Event[A]{path: path.Named(name)}
}

// NewAnonymousEvent returns an Event with a freshly minted path, guaranteed
// not to collide with any other event. Useful for a one-off reply channel
// that only the sender and one recipient will ever know about.
func NewAnonymousEvent[A any]() Event[A] {
	return Event[A]{path: path.NewAnonymous()}
}

// NewEventAt returns the Event addressing an already-minted path, useful
// when the path came from somewhere other than a name this caller chose,
// e.g. System.AllFibersFinishedPath.
func NewEventAt[A any](p path.Path) Event[A] {
	return Event[A]{path: p}
}

// Path returns the event's address.
func (e Event[A]) Path() path.Path {
	return e.path
}

// Bind registers fn as the newest handler for e on ctx and returns a ref
// that can later destroy it. fn receives a Super it can call to continue
// dispatch to whatever was bound beneath it.
func (e Event[A]) Bind(ctx *Context, fn func(sup *Super, value A)) HandlerRef {
	return ctx.ec.Bind(e.path, func(sup *core.Super, data any) {
		fn(sup, data.(A))
	})
}

// Emit sends value to ref, addressed at e's path. The send never blocks the
// caller and never fails visibly: an unreachable or dead target simply
// drops the value, per the runtime's dead-letter policy.
func (e Event[A]) Emit(ref FiberRef, value A) {
	ref.Send(e.path, value, nil)
}

// Await suspends ctx's fiber until the next occurrence of e arrives on its
// mailbox, and returns that occurrence's payload.
//
// Implements the await pattern from the spec this runtime follows: a
// one-shot handler is bound ahead of any other listener on e's path, calls
// super() first so a handler already bound for e still sees its turn, then
// captures the payload and marks the wait satisfied. The awaiting fiber
// alternates Process/Yield, servicing any other pending event along the
// way, until that handler has fired, then removes it.
func (e Event[A]) Await(ctx *Context) A {
	var (
		settled bool
		out     A
	)

	ref := ctx.ec.Bind(e.path, func(sup *core.Super, data any) {
		sup.Next(data)
		out = data.(A)
		settled = true
	})
	defer ref.Destroy()

	for !settled {
		if !ctx.ec.Process() {
			ctx.ec.Yield()
		}
	}
	return out
}
