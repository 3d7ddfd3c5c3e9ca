package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawel-n/fiberize/logging"
	"github.com/pawel-n/fiberize/path"
)

func newTestSystem(workers int) *System {
	return New(SystemConfig{Workers: workers, Logger: logging.NewNoOpLogger()})
}

// TestSystem_SpawnRunsBody verifies a spawned fiber's body actually executes
// on the worker pool.
func TestSystem_SpawnRunsBody(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	done := make(chan struct{})
	sys.Spawn(func(ctx *EventContext) {
		close(done)
	}, SpawnOptions{})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned fiber body never ran")
	}
}

// TestSystem_PingPong verifies two fibers can exchange events through the
// FiberRef send path end-to-end, across real worker goroutines.
func TestSystem_PingPong(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	pingPath := path.Named("ping")
	pongPath := path.Named("pong")

	done := make(chan struct{})
	bRefSet := make(chan struct{})
	var bRef FiberRef

	aRef := sys.Spawn(func(ctx *EventContext) {
		<-bRefSet
		ctx.Bind(pongPath, func(sup *Super, data any) {
			close(done)
		})
		bRef.Send(pingPath, "hello", nil)
		ctx.ProcessForever()
	}, SpawnOptions{})

	bRef = sys.Spawn(func(ctx *EventContext) {
		ctx.Bind(pingPath, func(sup *Super, data any) {
			aRef.Send(pongPath, "world", nil)
		})
		ctx.ProcessForever()
	}, SpawnOptions{})
	close(bRefSet)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping-pong did not complete")
	}
}

// TestSystem_AllFibersFinishedFiresExactlyOnce verifies the system notifies
// its main fiber when the running-fiber count drains to zero, and does not
// repeat that notification for a later drain.
func TestSystem_AllFibersFinishedFiresExactlyOnce(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()

	fired := make(chan struct{}, 4)
	mainDone := make(chan struct{})
	go func() {
		sys.RunMain(func(ctx *EventContext) {
			ctx.Bind(sys.AllFibersFinishedPath(), func(sup *Super, data any) {
				fired <- struct{}{}
			})
			ctx.ProcessForever()
		})
		close(mainDone)
	}()

	sys.Spawn(func(ctx *EventContext) {}, SpawnOptions{})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("allFibersFinished did not fire after the first drain")
	}

	// A second spawn-and-finish cycle must not fire it again.
	sys.Spawn(func(ctx *EventContext) {}, SpawnOptions{})
	select {
	case <-fired:
		t.Fatal("allFibersFinished fired a second time")
	case <-time.After(200 * time.Millisecond):
	}

	sys.Shutdown()
	sys.Join()
	<-mainDone
}

// TestSystem_SpawnBatchDelaysAllFibersFinished verifies BeginSpawnBatch
// keeps the running count above zero across a fan-out loop, even when the
// first fibers spawned finish before the loop spawns the last one.
// Given: a spawn loop wrapped in BeginSpawnBatch, where every spawned fiber
// finishes immediately
// When: the loop is still spawning fibers
// Then: allFibersFinished has not fired yet, and only fires once the batch
// is closed and every fiber has actually finished
func TestSystem_SpawnBatchDelaysAllFibersFinished(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()

	fired := make(chan struct{}, 1)
	mainDone := make(chan struct{})
	go func() {
		sys.RunMain(func(ctx *EventContext) {
			ctx.Bind(sys.AllFibersFinishedPath(), func(sup *Super, data any) {
				fired <- struct{}{}
			})
			ctx.ProcessForever()
		})
		close(mainDone)
	}()

	const n = 50
	done := sys.BeginSpawnBatch()
	for i := 0; i < n; i++ {
		sys.Spawn(func(ctx *EventContext) {}, SpawnOptions{})
	}

	select {
	case <-fired:
		t.Fatal("allFibersFinished fired before the spawn batch was closed")
	case <-time.After(100 * time.Millisecond):
	}

	done()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("allFibersFinished never fired after the spawn batch closed")
	}

	sys.Shutdown()
	sys.Join()
	<-mainDone
}

// TestSystem_CrashReportReachesParent verifies a fiber's parent receives a
// CrashReport, on the crashed fiber's own path, when its body panics.
func TestSystem_CrashReportReachesParent(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	reports := make(chan CrashReport, 1)
	parentPath := path.Named("parent")
	parentTCB := NewThreadControlBlock(parentPath, NewMutexMailbox())
	parentTCB.Context = NewEventContext(parentTCB)
	parentRef := NewLocalFiberRef(parentTCB, parentPath)

	childPath := path.Named("child")
	childRef := sys.Spawn(func(ctx *EventContext) {
		panic("boom")
	}, SpawnOptions{Path: childPath, Parent: parentRef})

	parentTCB.Context.Bind(childRef.Path(), func(sup *Super, data any) {
		reports <- data.(CrashReport)
	})

	stopDraining := make(chan struct{})
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for {
			select {
			case <-stopDraining:
				return
			default:
			}
			if !parentTCB.Context.Process() {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer func() {
		close(stopDraining)
		<-drainDone
	}()

	select {
	case report := <-reports:
		if report.Path != childPath {
			t.Fatalf("report.Path = %v, want %v", report.Path, childPath)
		}
		if report.Recovered != "boom" {
			t.Fatalf("report.Recovered = %v, want boom", report.Recovered)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parent never received a crash report")
	}
}

// TestSystem_PinnedFiberStaysOnItsScheduler verifies a fiber spawned with
// SpawnOptions.Pinned always resumes on that scheduler, never the shared
// pool, across several re-enables.
func TestSystem_PinnedFiberStaysOnItsScheduler(t *testing.T) {
	sys := newTestSystem(4)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	pinned := NewFiberScheduler(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pinned.Run(ctx)

	seenOwner := make(chan Scheduler, 8)
	bump := path.Named("bump")

	var ref FiberRef
	ref = sys.Spawn(func(ec *EventContext) {
		ec.Bind(bump, func(sup *Super, data any) {
			seenOwner <- ec.self.(*FiberControlBlock).Owner()
		})
		ec.ProcessForever()
	}, SpawnOptions{Pinned: pinned})

	for i := 0; i < 5; i++ {
		ref.Send(bump, i, nil)
		select {
		case owner := <-seenOwner:
			if owner != Scheduler(pinned) {
				t.Fatalf("iteration %d: owner = %v, want the pinned scheduler", i, owner)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pinned fiber never processed its event")
		}
	}
}

// TestSystem_DeadLetterCountsAndFreesPayload verifies sends routed to a dead
// letter ref are counted and still release their payload.
func TestSystem_DeadLetterCountsAndFreesPayload(t *testing.T) {
	sys := newTestSystem(1)

	freed := false
	dl := sys.DeadLetter(path.Named("nobody"))
	dl.Send(path.Named("nobody"), "lost", func(any) { freed = true })

	if !freed {
		t.Fatal("dead letter send did not free its payload")
	}
	if sys.DeadLetterCount() != 1 {
		t.Fatalf("DeadLetterCount() = %d, want 1", sys.DeadLetterCount())
	}
}

// TestSystem_RunningFibersTracksSpawnAndFinish verifies the running-fiber
// counter increments on spawn and decrements on finish.
func TestSystem_RunningFibersTracksSpawnAndFinish(t *testing.T) {
	sys := newTestSystem(2)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	release := make(chan struct{})
	sys.Spawn(func(ctx *EventContext) {
		<-release
	}, SpawnOptions{})

	deadline := time.Now().Add(2 * time.Second)
	for sys.RunningFibers() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sys.RunningFibers() != 1 {
		t.Fatalf("RunningFibers() = %d, want 1 while fiber is parked", sys.RunningFibers())
	}

	close(release)

	deadline = time.Now().Add(2 * time.Second)
	for sys.RunningFibers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sys.RunningFibers() != 0 {
		t.Fatalf("RunningFibers() = %d, want 0 after fiber finished", sys.RunningFibers())
	}
}

// TestSystem_YieldRecheckPreventsLostWakeup hammers a single fiber with
// concurrent sends racing its own Process/Yield loop. If yieldFiber ever
// suspends without rechecking the mailbox under the status lock, a send
// that lands between the fiber's last drain and its Suspended transition
// sets nothing (Enable sees Running) and the event is never handled.
func TestSystem_YieldRecheckPreventsLostWakeup(t *testing.T) {
	sys := newTestSystem(4)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	const rounds = 5000
	poke := path.Named("poke")
	var received atomic.Int64
	done := make(chan struct{})

	ref := sys.Spawn(func(ctx *EventContext) {
		ctx.Bind(poke, func(sup *Super, data any) {
			if received.Add(1) == rounds {
				close(done)
			}
		})
		ctx.ProcessForever()
	}, SpawnOptions{})

	for i := 0; i < rounds; i++ {
		go ref.Send(poke, i, nil)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("received only %d of %d pokes before timeout (lost wakeup)", received.Load(), rounds)
	}
}

// TestSystem_SpawnAfterShutdownReturnsDeadLetter verifies Spawn stops
// starting new fibers once Shutdown has been called, handing back a dead
// letter ref instead.
func TestSystem_SpawnAfterShutdownReturnsDeadLetter(t *testing.T) {
	sys := newTestSystem(1)
	sys.Start()
	sys.Shutdown()
	sys.Join()

	ref := sys.Spawn(func(ctx *EventContext) {
		t.Error("body of a fiber spawned after Shutdown must never run")
	}, SpawnOptions{})

	if _, ok := ref.(DeadLetterFiberRef); !ok {
		t.Fatalf("Spawn after Shutdown returned %T, want DeadLetterFiberRef", ref)
	}

	freed := false
	ref.Send(path.Named("x"), "payload", func(any) { freed = true })
	if !freed {
		t.Fatal("dead-lettered spawn's ref did not free a sent payload")
	}
	if sys.DeadLetterCount() != 1 {
		t.Fatalf("DeadLetterCount() = %d, want 1", sys.DeadLetterCount())
	}
}

// TestSystem_SendToDeadFiberFreesPayload verifies a send that arrives after
// its target has already finished frees the payload immediately instead of
// enqueuing it into a mailbox nothing will ever drain again.
func TestSystem_SendToDeadFiberFreesPayload(t *testing.T) {
	sys := newTestSystem(1)
	sys.Start()
	defer func() {
		sys.Shutdown()
		sys.Join()
	}()

	ref := sys.Spawn(func(ctx *EventContext) {}, SpawnOptions{})

	deadline := time.Now().Add(2 * time.Second)
	for sys.RunningFibers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sys.RunningFibers() != 0 {
		t.Fatal("fiber never finished")
	}

	freed := false
	ref.Send(path.Named("late"), "payload", func(any) { freed = true })
	if !freed {
		t.Fatal("send to a dead fiber did not free its payload")
	}
}
