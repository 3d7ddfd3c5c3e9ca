package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// Given a fresh exporter
// When each record method is called
// Then the backing collectors reflect the observation.
func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fiberize", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.FiberSpawned()
	exporter.FiberFinished()
	exporter.FiberPanicked()
	exporter.MailboxDepthObserved(7)
	exporter.StealAttempted(true)
	exporter.StealAttempted(false)
	exporter.WorkerParked()
	exporter.SchedulingLatencyObserved(250 * time.Microsecond)

	if got := testutil.ToFloat64(exporter.fibersSpawnedTotal); got != 1 {
		t.Fatalf("spawned total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.fibersFinishedTotal); got != 1 {
		t.Fatalf("finished total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.fiberPanicsTotal); got != 1 {
		t.Fatalf("panics total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.stealAttemptsTotal.WithLabelValues("hit")); got != 1 {
		t.Fatalf("steal hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.stealAttemptsTotal.WithLabelValues("miss")); got != 1 {
		t.Fatalf("steal misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.workerParksTotal); got != 1 {
		t.Fatalf("worker parks = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.mailboxDepth)
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("mailbox depth sample count = %d, want 1", histCount)
	}

	latencyCount, err := histogramSampleCount(exporter.schedulingLatencySecs)
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if latencyCount != 1 {
		t.Fatalf("scheduling latency sample count = %d, want 1", latencyCount)
	}
}

// Given two exporters registered against the same registry under the same
// namespace
// When the second construction collides with the first's collectors
// Then NewMetricsExporter reuses the already-registered collectors instead
// of failing.
func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("fiberize", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("fiberize", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.FiberPanicked()
	second.FiberPanicked()

	got := testutil.ToFloat64(first.fiberPanicsTotal)
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

// Given a nil *MetricsExporter
// When any record method is called
// Then it is a no-op rather than a nil-pointer panic, so callers can wire
// core.Metrics optionally without guarding every call site.
func TestMetricsExporter_NilReceiverIsNoOp(t *testing.T) {
	var exporter *MetricsExporter
	exporter.FiberSpawned()
	exporter.FiberFinished()
	exporter.FiberPanicked()
	exporter.MailboxDepthObserved(1)
	exporter.StealAttempted(true)
	exporter.WorkerParked()
	exporter.SchedulingLatencyObserved(time.Millisecond)
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
