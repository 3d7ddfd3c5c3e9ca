package core

import "time"

// stealPollInterval bounds how long an idle worker waits before retrying a
// steal even without being woken: Push only ever wakes one idle worker
// directly, so the rest rely on this poll to notice work that landed on a
// queue they weren't the lucky listener for.
const stealPollInterval = 2 * time.Millisecond

// Scheduler is anything a FiberControlBlock can be "owned" by: whoever wins
// a ControlBlock.Enable() race pushes the newly-runnable fiber onto its
// owner via Push. FiberScheduler (work-stealing, shared by the system's
// worker pool) and ThreadScheduler (one pinned goroutine) both implement it.
type Scheduler interface {
	// Push makes fcb runnable on this scheduler. Called exactly once per
	// Enable() that returns true, never for a fiber that is already
	// Scheduled or Running.
	Push(fcb *FiberControlBlock)
}
