package core

import (
	"github.com/pawel-n/fiberize/path"
)

// FiberRef is a handle capable of sending events to a fiber without the
// sender knowing anything about where that fiber lives or whether it is
// even still alive.
//
// Grounded on fiberize/include/fiberize/fiber.hpp's FiberRef: the handle a
// spawn call hands back, and the only way the rest of the system is allowed
// to talk to that fiber.
type FiberRef interface {
	// Send enqueues an event addressed to path p and, if the target was
	// idle, re-enables it onto its scheduler. ownership of data transfers to
	// the target; free is invoked exactly once when the target consumes or
	// drops the event.
	Send(p path.Path, data any, free func(any))

	// Path identifies the target for diagnostics and dead-letter reporting.
	Path() path.Path
}

// LocalFiberRef addresses a fiber living in this process.
type LocalFiberRef struct {
	target fiberHost
	path   path.Path
}

// NewLocalFiberRef wraps a fiber's control block in a FiberRef.
func NewLocalFiberRef(target fiberHost, p path.Path) LocalFiberRef {
	return LocalFiberRef{target: target, path: p}
}

func (r LocalFiberRef) Send(p path.Path, data any, free func(any)) {
	r.target.enqueueAndWake(PendingEvent{Path: p, Data: data, FreeData: free})
}

func (r LocalFiberRef) Path() path.Path {
	return r.path
}

// DeadLetterFiberRef is handed out by Spawn in place of a LocalFiberRef once
// the system is shutting down, and by System.DeadLetter for any path that
// has no listener. A LocalFiberRef whose target has died is not replaced by
// one; its sends free their payload directly. A DeadLetterFiberRef still
// honors the ownership contract: data is always freed, just immediately
// instead of after being handled.
//
// Grounded on fiberize/include/fiberize/system.hpp's deadLetters(): a sink
// that exists so senders never need to special-case "the recipient is
// gone".
type DeadLetterFiberRef struct {
	path   path.Path
	onDrop func(p path.Path, data any)
}

// NewDeadLetterFiberRef creates a sink ref. onDrop, if non-nil, is invoked
// for every event sent to it, before FreeData, typically wired to a
// logger or a metrics counter.
func NewDeadLetterFiberRef(p path.Path, onDrop func(path.Path, any)) DeadLetterFiberRef {
	return DeadLetterFiberRef{path: p, onDrop: onDrop}
}

func (r DeadLetterFiberRef) Send(p path.Path, data any, free func(any)) {
	if r.onDrop != nil {
		r.onDrop(p, data)
	}
	if free != nil {
		free(data)
	}
}

func (r DeadLetterFiberRef) Path() path.Path {
	return r.path
}
