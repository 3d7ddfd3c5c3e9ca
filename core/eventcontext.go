package core

import (
	"sync"

	"github.com/pawel-n/fiberize/path"
)

// EventContext is the per-fiber dispatch table: a map from path to the
// stack of handlers bound on it, plus the machinery a running fiber body
// uses to process its mailbox and to yield control when there is nothing
// left to do.
//
// Grounded on fiberize/src/fiberize/context.cpp: context::bind registers a
// handler under a path, context::send/emit look up that path's handler
// stack and dispatch, and context::process/processForever drive the
// mailbox-drain loop that a fiber's body runs on.
type EventContext struct {
	self fiberHost

	mu     sync.RWMutex
	blocks map[path.Path]*HandlerBlock
}

// NewEventContext creates an EventContext bound to the given fiber.
func NewEventContext(self fiberHost) *EventContext {
	return &EventContext{
		self:   self,
		blocks: make(map[path.Path]*HandlerBlock),
	}
}

func (ec *EventContext) blockFor(p path.Path) *HandlerBlock {
	ec.mu.RLock()
	hb, ok := ec.blocks[p]
	ec.mu.RUnlock()
	if ok {
		return hb
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	if hb, ok := ec.blocks[p]; ok {
		return hb
	}
	hb = &HandlerBlock{}
	ec.blocks[p] = hb
	return hb
}

// Bind registers fn as the newest handler on p and returns a ref that can
// later destroy it. Binding never blocks and never touches the mailbox.
func (ec *EventContext) Bind(p path.Path, fn HandlerFunc) HandlerRef {
	return ec.blockFor(p).Bind(fn)
}

// HandleEvent dispatches one already-dequeued event through the handler
// stack bound to its path. If nothing is bound there, the event is silently
// dropped: fiberize has no "unhandled event" error, mirroring the C++
// original's context::send behavior for paths with an empty handler list.
//
// If dispatch leaves the path's handler block with nothing live in it, the
// block is erased from blocks entirely rather than kept around empty; the
// next Bind for that path allocates a fresh one.
func (ec *EventContext) HandleEvent(e PendingEvent) {
	defer e.free()

	ec.mu.RLock()
	hb, ok := ec.blocks[e.Path]
	ec.mu.RUnlock()
	if !ok {
		return
	}

	if hb.Dispatch(e.Data) {
		ec.mu.Lock()
		if cur, ok := ec.blocks[e.Path]; ok && cur == hb {
			delete(ec.blocks, e.Path)
		}
		ec.mu.Unlock()
	}
}

// Process dequeues and handles exactly one pending event, reporting whether
// one was available. It never blocks.
func (ec *EventContext) Process() bool {
	e, ok := ec.self.mailbox().Dequeue()
	if !ok {
		return false
	}
	ec.HandleEvent(e)
	return true
}

// ProcessAll drains every event currently in the mailbox, handling each in
// FIFO order. Events enqueued by a handler while ProcessAll is running are
// also processed before it returns, since Drain re-reads Dequeue until
// empty.
func (ec *EventContext) ProcessAll() {
	ec.self.mailbox().Drain(ec.HandleEvent)
}

// ProcessForever is the default fiber body driver: it alternates between
// draining the mailbox and yielding until the mailbox is empty, then blocks
// (via Yield) until the next event arrives, forever. A fiber body that wants
// custom control flow calls Process/ProcessAll directly instead.
func (ec *EventContext) ProcessForever() {
	for {
		ec.ProcessAll()
		ec.Yield()
	}
}

// Yield suspends the calling fiber until its mailbox has at least one
// pending event, then returns. It is the bridge between EventContext's
// mailbox-draining loop and the goroutine/channel context switch in
// contextswitch.go: yielding here always jumps back to whichever worker
// scheduled this fiber.
func (ec *EventContext) Yield() {
	ec.self.park()
}
