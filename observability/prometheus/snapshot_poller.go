package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SystemSnapshotProvider is the subset of *core.System a SnapshotPoller
// samples from. Declared as an interface, the way the teacher's
// RunnerSnapshotProvider/PoolSnapshotProvider decoupled its pollers from a
// concrete runner type, so tests can poll a fake without spinning up a real
// worker pool.
type SystemSnapshotProvider interface {
	RunningFibers() int64
	DeadLetterCount() int64
	QueueDepths() []int
}

// SnapshotPoller periodically samples a System's coarse-grained state into
// Prometheus gauges, the numbers core.Metrics can't observe as discrete
// events because they're levels, not occurrences.
type SnapshotPoller struct {
	interval time.Duration

	systemsMu sync.RWMutex
	systems   map[string]SystemSnapshotProvider

	runningFibers  *prom.GaugeVec
	deadLetters    *prom.GaugeVec
	workerQueueLen *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runningFibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberize",
		Name:      "running_fibers",
		Help:      "Fibers spawned but not yet finished, per system.",
	}, []string{"system"})
	deadLetters := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberize",
		Name:      "dead_letters",
		Help:      "Cumulative dead-lettered sends, per system.",
	}, []string{"system"})
	workerQueueLen := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberize",
		Name:      "worker_queue_depth",
		Help:      "Ready-queue depth per worker, per system.",
	}, []string{"system", "worker"})

	var err error
	if runningFibers, err = registerCollector(reg, runningFibers); err != nil {
		return nil, err
	}
	if deadLetters, err = registerCollector(reg, deadLetters); err != nil {
		return nil, err
	}
	if workerQueueLen, err = registerCollector(reg, workerQueueLen); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		systems:        make(map[string]SystemSnapshotProvider),
		runningFibers:  runningFibers,
		deadLetters:    deadLetters,
		workerQueueLen: workerQueueLen,
	}, nil
}

// AddSystem adds or replaces the snapshot provider polled under name.
func (p *SnapshotPoller) AddSystem(name string, provider SystemSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	if name == "" {
		name = "default"
	}
	p.systemsMu.Lock()
	p.systems[name] = provider
	p.systemsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.systemsMu.RLock()
	defer p.systemsMu.RUnlock()

	for name, sys := range p.systems {
		p.runningFibers.WithLabelValues(name).Set(float64(sys.RunningFibers()))
		p.deadLetters.WithLabelValues(name).Set(float64(sys.DeadLetterCount()))

		for i, depth := range sys.QueueDepths() {
			p.workerQueueLen.WithLabelValues(name, fmt.Sprintf("%d", i)).Set(float64(depth))
		}
	}
}
