package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type systemStub struct {
	running     int64
	deadLetters int64
	depths      []int
}

func (s systemStub) RunningFibers() int64   { return s.running }
func (s systemStub) DeadLetterCount() int64 { return s.deadLetters }
func (s systemStub) QueueDepths() []int     { return s.depths }

// Given a poller polling a stub system
// When it has ticked at least once
// Then its gauges reflect the stub's snapshot.
func TestSnapshotPoller_CollectsSystemSnapshot(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddSystem("sys-a", systemStub{
		running:     3,
		deadLetters: 2,
		depths:      []int{4, 0, 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		running := testutil.ToFloat64(poller.runningFibers.WithLabelValues("sys-a"))
		dead := testutil.ToFloat64(poller.deadLetters.WithLabelValues("sys-a"))
		depth0 := testutil.ToFloat64(poller.workerQueueLen.WithLabelValues("sys-a", "0"))
		return running == 3 && dead == 2 && depth0 == 4
	})
}

// Given a poller
// When Start or Stop is called more than once
// Then neither call blocks or panics.
func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
