package fiberize

import "github.com/pawel-n/fiberize/core"

// Context is what a fiber's body uses to bind handlers, drain its mailbox,
// and yield control back to its scheduler. It is a thin wrapper over
// core.EventContext so that Event[A] can offer a typed Bind/Await without
// the core package needing to know about generics-over-payload at all.
type Context struct {
	ec *core.EventContext
}

func wrapContext(ec *core.EventContext) *Context {
	return &Context{ec: ec}
}

// Process dequeues and handles exactly one pending event, reporting whether
// one was available. It never blocks.
func (c *Context) Process() bool {
	return c.ec.Process()
}

// ProcessAll drains every event currently in the mailbox.
func (c *Context) ProcessAll() {
	c.ec.ProcessAll()
}

// ProcessForever alternates between draining the mailbox and yielding,
// forever. This is the default fiber body driver.
func (c *Context) ProcessForever() {
	c.ec.ProcessForever()
}

// Yield suspends the calling fiber until its mailbox has at least one
// pending event, then returns.
func (c *Context) Yield() {
	c.ec.Yield()
}
