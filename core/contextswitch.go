package core

// fiberStack stands in for the native stack fiberize's C++ implementation
// allocates and switches with boost::context's make_fcontext/jump_fcontext.
// Go gives every goroutine its own growable stack already and offers no
// supported way to jump between two arbitrary ones, so a fiber's "stack" is
// a real goroutine parked on a pair of unbuffered channels: resume wakes it
// up, parked hands control back. Exactly one side holds the baton at a
// time, which is what make/jump give you in the original; this is that
// same contract expressed with channels instead of a swapped stack
// pointer.
type fiberStack struct {
	resume chan struct{}
	parked chan struct{}
}

// initFiberStack allocates a fiber's goroutine and its handoff channels,
// without starting the body running: the goroutine blocks immediately on
// the first resume, exactly like a freshly made but not yet jumped-into
// context.
func initFiberStack(fcb *FiberControlBlock, body func()) {
	s := &fiberStack{
		resume: make(chan struct{}),
		parked: make(chan struct{}),
	}
	fcb.stack = s

	go func() {
		<-s.resume
		func() {
			defer func() {
				if r := recover(); r != nil && fcb.onPanic != nil {
					fcb.onPanic(fcb.Path, r)
				}
			}()
			body()
		}()
		fcb.Kill()
		s.parked <- struct{}{}
	}()
}

// jumpIntoFiber hands the baton to fcb's goroutine and blocks until it hands
// it back, either because the fiber yielded or because its body finished.
// It is a no-op if the fiber is already dead: the goroutine backing it has
// already exited and there is nothing left to jump into.
func jumpIntoFiber(fcb *FiberControlBlock) {
	if fcb.Status() == Dead {
		return
	}
	fcb.stack.resume <- struct{}{}
	<-fcb.stack.parked
}

// yieldFiber hands the baton back to whichever worker called jumpIntoFiber,
// then blocks until it is jumped into again. Called only from inside the
// fiber's own goroutine; EventContext.Yield is the only caller.
//
// Before actually parking, it rechecks the mailbox under the same lock a
// racing send's Enable uses: a sender that enqueues an event and finds the
// fiber still Running (because it hasn't suspended yet) never pushes it
// anywhere, so if we suspended unconditionally that event would sit
// unhandled with no one left to wake us. trySuspend closes that window: if
// it reports work pending, we stay Running and return immediately so the
// caller's drain loop picks it up instead of parking.
func yieldFiber(fcb *FiberControlBlock) {
	if !fcb.trySuspend(func() bool { return fcb.Mailbox.Len() > 0 }) {
		return
	}
	fcb.stack.parked <- struct{}{}
	<-fcb.stack.resume
	fcb.BeginRun()
}
