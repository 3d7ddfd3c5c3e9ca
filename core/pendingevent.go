package core

import "github.com/pawel-n/fiberize/path"

// PendingEvent is the unit enqueued into a mailbox and later dispatched by an
// EventContext. Ownership of Data transfers to the mailbox on enqueue; the
// consumer (the EventContext draining the mailbox) must call FreeData exactly
// once, on every exit path, normal or exceptional.
type PendingEvent struct {
	Path     path.Path
	Data     any
	FreeData func(any)
}

// free invokes FreeData exactly once, tolerating a nil FreeData for events
// that carry no heap payload to release.
func (e PendingEvent) free() {
	if e.FreeData != nil {
		e.FreeData(e.Data)
	}
}
