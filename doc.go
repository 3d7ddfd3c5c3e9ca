// Package fiberize is a user-space cooperative-fiber concurrency runtime: a
// small pool of worker goroutines multiplexes a large population of
// lightweight, cooperatively scheduled fibers, each with its own mailbox and
// a typed event/handler dispatch table.
//
// # Quick Start
//
// Start a system and spawn fibers onto it:
//
//	sys := fiberize.New(fiberize.DefaultSystemConfig())
//	sys.Start()
//	defer sys.Shutdown()
//
//	ping := fiberize.NewEvent[int]("ping")
//	ref := fiberize.Spawn(sys, func(ctx *fiberize.Context) {
//		n := ping.Await(ctx)
//		println("got ping", n)
//	}, fiberize.SpawnOptions{})
//	ping.Emit(ref, 42)
//
// # Key Concepts
//
// Context is what a fiber's body uses to bind handlers, drain its mailbox,
// and yield. Event[A] is a typed, path-addressed message: bind a handler for
// it, await its next occurrence, or emit a value on it to a FiberRef. System
// owns the worker pool and the lifecycle bookkeeping (spawn counts, the
// allFibersFinished signal, dead letters).
//
// # Thread Safety
//
// A fiber's body runs on exactly one goroutine at a time and never runs
// concurrently with itself; the usual single-threaded reasoning applies
// inside a fiber body. FiberRef.Send and Event[A].Emit are safe to call from
// any goroutine, including from outside the fiber runtime entirely.
//
// For the engine this package fronts, see the core package.
package fiberize
