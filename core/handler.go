package core

import (
	"sync"
	"sync/atomic"
)

// HandlerFunc is a single bound handler. sup lets the handler continue
// dispatch to the next handler bound beneath it on the same path's stack;
// calling sup.Next corresponds to the spec's super().
type HandlerFunc func(sup *Super, data any)

// handlerEntry is the mutable cell a HandlerRef points at. live is checked
// at dispatch time rather than at snapshot time, so destroying a handler
// takes effect immediately even for a traversal already in flight.
type handlerEntry struct {
	id   uint64
	fn   HandlerFunc
	live atomic.Bool
}

// HandlerRef is returned from HandlerBlock.Bind and lets the binder destroy
// the handler later without needing to know where in the stack it sits.
type HandlerRef struct {
	entry *handlerEntry
}

// Destroy eagerly marks the handler dead. A dispatch already past this
// handler in its traversal is unaffected; any dispatch that has not yet
// reached it will skip it.
func (r HandlerRef) Destroy() {
	if r.entry != nil {
		r.entry.live.Store(false)
	}
}

// IsZero reports whether this ref was ever bound.
func (r HandlerRef) IsZero() bool {
	return r.entry == nil
}

// HandlerBlock is the stack of handlers bound to one path within a fiber's
// EventContext. Binding pushes; dispatch walks from the most recently bound
// live handler downward, handing each one a Super it can call to continue
// the walk.
//
// Grounded on fiberize/src/fiberize/context.cpp's handler stack: each
// context::bind call pushes a new handler in front of whatever was already
// listening on that path, and super() inside a handler resumes the search
// for the next one down.
type HandlerBlock struct {
	mu       sync.Mutex
	handlers []*handlerEntry // index 0 = most recently bound
	nextID   uint64
}

// Bind pushes fn onto the front of the stack and returns a ref that can
// later destroy it.
func (hb *HandlerBlock) Bind(fn HandlerFunc) HandlerRef {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	hb.nextID++
	e := &handlerEntry{id: hb.nextID, fn: fn}
	e.live.Store(true)
	hb.handlers = append([]*handlerEntry{e}, hb.handlers...)
	return HandlerRef{entry: e}
}

// Dispatch starts a fresh top-to-bottom walk of the stack for one event,
// invoking at most one handler: the spec's handleEvent calls super() exactly
// once, and a handler that wants the one bound beneath it calls super()
// itself.
//
// Before that, destroyed handlers are popped off the front of the stack,
// the newest end, since Bind pushes there, matching the spec's handleEvent
// step 2 ("pop destroyed handlers off the tail"). If that empties the
// block, Dispatch reports true and invokes nothing at all; the caller
// (EventContext.HandleEvent) is expected to erase the block entirely in
// that case, per spec. Any destroyed handler left in the middle of the
// stack is pruned incrementally, as Super.Next walks past it.
func (hb *HandlerBlock) Dispatch(data any) (empty bool) {
	hb.mu.Lock()
	i := 0
	for i < len(hb.handlers) && !hb.handlers[i].live.Load() {
		i++
	}
	hb.handlers = hb.handlers[i:]
	if len(hb.handlers) == 0 {
		hb.mu.Unlock()
		return true
	}
	snap := make([]*handlerEntry, len(hb.handlers))
	copy(snap, hb.handlers)
	hb.mu.Unlock()

	sup := &Super{hb: hb, handlers: snap}
	sup.Next(data)
	return false
}

// pruneDead removes e from the live stack if it is still present. Called by
// Super.Next while it skips past a destroyed handler, so a long-lived block
// with churn in the middle doesn't grow without bound between dispatches.
func (hb *HandlerBlock) pruneDead(e *handlerEntry) {
	hb.mu.Lock()
	for i, h := range hb.handlers {
		if h == e {
			hb.handlers = append(hb.handlers[:i], hb.handlers[i+1:]...)
			break
		}
	}
	hb.mu.Unlock()
}

// Super is a single dispatch's cursor over a handler stack snapshot. A
// handler body calls sup.Next to invoke whatever live handler sits beneath
// it, the spec's super().
type Super struct {
	hb       *HandlerBlock
	handlers []*handlerEntry
	pos      int
}

// Next invokes the next live handler beneath the current position, if any.
// Calling it from outside a handler body starts the walk from the top;
// calling it from within a handler body continues the walk from just below
// that handler. Destroyed handlers encountered along the way are skipped
// and pruned from the block they came from. If no live handler remains,
// Next is a silent no-op.
func (s *Super) Next(data any) {
	for s.pos < len(s.handlers) {
		h := s.handlers[s.pos]
		s.pos++
		if h.live.Load() {
			h.fn(s, data)
			return
		}
		if s.hb != nil {
			s.hb.pruneDead(h)
		}
	}
}
