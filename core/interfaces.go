package core

import (
	"time"

	"github.com/pawel-n/fiberize/logging"
	"github.com/pawel-n/fiberize/path"
)

// PanicHandler is invoked whenever a fiber's body panics. It runs on the
// fiber's own goroutine, right after the panic is recovered and before the
// fiber's control block is marked Dead; a handler must not try to resume or
// otherwise touch the fiber it is reporting on.
type PanicHandler func(p path.Path, recovered any)

// DefaultPanicHandler logs the panic and nothing else: the crashed fiber
// stays dead, its mailbox is abandoned, and the rest of the system keeps
// running. This mirrors fiberize's own stance that one fiber's crash must
// never bring down its worker or any other fiber.
func DefaultPanicHandler(logger logging.Logger) PanicHandler {
	return func(p path.Path, recovered any) {
		logger.Error("fiber panicked", logging.F("path", p.String()), logging.F("recovered", recovered))
	}
}

// Metrics is the instrumentation seam System reports through. The
// observability/prometheus package provides the production implementation;
// NilMetrics is the zero-cost default for callers that don't want metrics.
type Metrics interface {
	FiberSpawned()
	FiberFinished()
	FiberPanicked()
	MailboxDepthObserved(depth int)
	StealAttempted(success bool)
	WorkerParked()
	SchedulingLatencyObserved(d time.Duration)
}

// NilMetrics discards every observation.
type NilMetrics struct{}

func (NilMetrics) FiberSpawned()                             {}
func (NilMetrics) FiberFinished()                            {}
func (NilMetrics) FiberPanicked()                            {}
func (NilMetrics) MailboxDepthObserved(depth int)            {}
func (NilMetrics) StealAttempted(success bool)               {}
func (NilMetrics) WorkerParked()                             {}
func (NilMetrics) SchedulingLatencyObserved(d time.Duration) {}

// SystemConfig configures a System at construction time.
type SystemConfig struct {
	// Workers is the number of goroutines in the shared work-stealing pool.
	// Defaults to runtime.GOMAXPROCS(0) when zero.
	Workers int

	// DefaultMailbox constructs the mailbox a spawned fiber uses when the
	// caller doesn't supply one explicitly.
	DefaultMailbox func() Mailbox

	Logger       logging.Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// DefaultSystemConfig returns a SystemConfig with sensible defaults: one
// worker per CPU, a mutex-backed mailbox for every fiber, a default logger,
// no metrics, and a panic handler that only logs.
func DefaultSystemConfig() SystemConfig {
	logger := logging.NewDefaultLogger()
	return SystemConfig{
		DefaultMailbox: func() Mailbox { return NewMutexMailbox() },
		Logger:         logger,
		Metrics:        NilMetrics{},
		PanicHandler:   DefaultPanicHandler(logger),
	}
}
