// Package prometheus adapts core.Metrics onto Prometheus collectors, the
// way a production fiberize deployment would wire scheduler instrumentation
// into its existing metrics pipeline.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/pawel-n/fiberize/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	SchedulingLatencyBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	fibersSpawnedTotal    prom.Counter
	fibersFinishedTotal   prom.Counter
	fiberPanicsTotal      prom.Counter
	mailboxDepth          prom.Histogram
	stealAttemptsTotal    *prom.CounterVec
	workerParksTotal      prom.Counter
	schedulingLatencySecs prom.Histogram
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors backing
// core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fiberize"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.SchedulingLatencyBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.00001, 4, 10)
	}

	spawned := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fibers_spawned_total",
		Help:      "Total number of fibers spawned.",
	})
	finished := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fibers_finished_total",
		Help:      "Total number of fibers whose body returned or panicked.",
	})
	panics := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fiber_panics_total",
		Help:      "Total number of fiber bodies that panicked.",
	})
	mailbox := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "mailbox_depth",
		Help:      "Observed mailbox depth at the moment a send landed.",
		Buckets:   prom.ExponentialBuckets(1, 2, 12),
	})
	steals := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "steal_attempts_total",
		Help:      "Total number of work-steal attempts, labeled by outcome.",
	}, []string{"outcome"})
	parks := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_parks_total",
		Help:      "Total number of times a worker went idle for lack of runnable fibers.",
	})
	latency := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduling_latency_seconds",
		Help:      "Time between a fiber becoming runnable and a worker starting it.",
		Buckets:   buckets,
	})

	for _, err := range []error{
		registerOne(reg, &spawned),
		registerOne(reg, &finished),
		registerOne(reg, &panics),
		registerOne(reg, &mailbox),
		registerOne(reg, &steals),
		registerOne(reg, &parks),
		registerOne(reg, &latency),
	} {
		if err != nil {
			return nil, err
		}
	}

	return &MetricsExporter{
		fibersSpawnedTotal:    spawned,
		fibersFinishedTotal:   finished,
		fiberPanicsTotal:      panics,
		mailboxDepth:          mailbox,
		stealAttemptsTotal:    steals,
		workerParksTotal:      parks,
		schedulingLatencySecs: latency,
	}, nil
}

func (m *MetricsExporter) FiberSpawned() {
	if m == nil {
		return
	}
	m.fibersSpawnedTotal.Inc()
}

func (m *MetricsExporter) FiberFinished() {
	if m == nil {
		return
	}
	m.fibersFinishedTotal.Inc()
}

func (m *MetricsExporter) FiberPanicked() {
	if m == nil {
		return
	}
	m.fiberPanicsTotal.Inc()
}

func (m *MetricsExporter) MailboxDepthObserved(depth int) {
	if m == nil {
		return
	}
	m.mailboxDepth.Observe(float64(depth))
}

func (m *MetricsExporter) StealAttempted(success bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if success {
		outcome = "hit"
	}
	m.stealAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsExporter) WorkerParked() {
	if m == nil {
		return
	}
	m.workerParksTotal.Inc()
}

func (m *MetricsExporter) SchedulingLatencyObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.schedulingLatencySecs.Observe(d.Seconds())
}

// registerOne registers *collector, replacing it with the collector already
// registered under the same descriptor when there is one.
func registerOne[T prom.Collector](reg prom.Registerer, collector *T) error {
	existing, err := registerCollector(reg, *collector)
	*collector = existing
	return err
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
