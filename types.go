package fiberize

import (
	"github.com/pawel-n/fiberize/core"
	"github.com/pawel-n/fiberize/io"
	"github.com/pawel-n/fiberize/logging"
	"github.com/pawel-n/fiberize/path"
)

// Re-export the core package's types for convenience. This lets callers
// import only the fiberize package for most use cases, the way the
// teacher's root package re-exports its core types.

// Path identifies a fiber or an event.
type Path = path.Path

// NamedPath and NewAnonymousPath construct Paths.
var (
	NamedPath        = path.Named
	NewAnonymousPath = path.NewAnonymous
)

// FiberRef addresses a fiber without the sender knowing where it lives.
type FiberRef = core.FiberRef

// Mailbox is the per-fiber event queue contract.
type Mailbox = core.Mailbox

// Metrics is the instrumentation seam System reports through.
type Metrics = core.Metrics

// PanicHandler is invoked when a fiber's body panics.
type PanicHandler = core.PanicHandler

// SystemConfig configures a System at construction time.
type SystemConfig = core.SystemConfig

// System is the runtime: a worker pool, a pinned main fiber, and lifecycle
// bookkeeping.
type System = core.System

// SpawnOptions configures a single Spawn call.
type SpawnOptions = core.SpawnOptions

// HandlerRef lets a caller destroy a bound handler.
type HandlerRef = core.HandlerRef

// Super lets a handler delegate to the next-most-recent handler on the same
// path, the super() of the concurrency model this runtime implements.
type Super = core.Super

// CrashReport is delivered to a fiber's parent, on the crashed fiber's own
// path, when SpawnOptions.Parent names one and the child's body panics.
type CrashReport = core.CrashReport

// Scheduler places and resumes fibers. FiberScheduler is the stock
// work-stealing pool; a fiber pinned to one via SpawnOptions.Pinned always
// resumes there, never on the system's shared pool.
type Scheduler = core.Scheduler
type FiberScheduler = core.FiberScheduler

// NewFiberScheduler builds a dedicated scheduler, typically used to pin one
// or a few fibers away from the system's shared pool.
var NewFiberScheduler = core.NewFiberScheduler

// Logger is the structured logging interface SystemConfig.Logger accepts.
type Logger = logging.Logger

// Mode and Result describe the {Block, Await, Async} contract an external
// I/O adapter honors; see package io.
type Mode = io.Mode
type Result[V any, M any] = io.Result[V, M]

const (
	Block = io.Block
	Await = io.Await
	Async = io.Async
)

// NewMutexMailbox and NewLockFreeMailbox construct the two stock Mailbox
// implementations.
var (
	NewMutexMailbox    = core.NewMutexMailbox
	NewLockFreeMailbox = core.NewLockFreeMailbox
)

// NilMetrics discards every observation.
var NilMetrics = core.NilMetrics{}

// DefaultSystemConfig and DefaultPanicHandler build sensible defaults.
var (
	DefaultSystemConfig = core.DefaultSystemConfig
	DefaultPanicHandler = core.DefaultPanicHandler
)

// New creates a System from cfg.
func New(cfg SystemConfig) *System {
	return core.New(cfg)
}
