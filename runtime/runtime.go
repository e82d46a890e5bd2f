// Package runtime wires schedulers, process registries, and shared
// plug-ins (arena pool, codec, metrics, logger) into a single owned
// handle per deployment, so the registry lives per instance rather than
// as process-wide ambient global state. Configuration follows a
// two-layer shape: a plain exported Config with documented defaults
// plus a functional-options builder.
package runtime

import (
	"context"
	stdruntime "runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/caldera-systems/greenproc/process"
	"github.com/caldera-systems/greenproc/rtlog"
	"github.com/caldera-systems/greenproc/rtmetrics"
	"github.com/caldera-systems/greenproc/task"
)

// Config holds Runtime configuration.
type Config struct {
	// Schedulers is the configured scheduler count (values <= 0 become
	// 1). It is stored on the Runtime only: RunSchedulers does not read
	// it and drives exactly the schedulers passed to it.
	// Default: stdruntime.GOMAXPROCS(0).
	Schedulers int

	// MaxConcurrentDispatch is the configured bound on how many
	// scheduler-driving goroutines may be mid-Step at once (zero means
	// unbounded). It is stored on the Runtime only: RunSchedulers takes
	// its bound as an explicit maxConcurrent argument and does not read
	// this field.
	MaxConcurrentDispatch int64

	// ArenaPoolCapacity, when non-zero, installs a shared process.ArenaPool
	// of this capacity so short-lived processes (e.g. supervised children
	// that restart often) reuse arenas instead of allocating fresh ones.
	// Default: 0 (disabled; every Spawn creates its own arena).
	ArenaPoolCapacity uint

	// ArenaSize is the per-arena byte size used both for ArenaPool (if
	// enabled) and as the default for processes that don't override
	// process.Options.ArenaSize.
	// Default: 4 MiB (process.defaultArenaSize).
	ArenaSize int

	// MetricsProvider backs every spawned process's and scheduler's
	// instrumentation. Default: rtmetrics.NoopProvider{}.
	MetricsProvider rtmetrics.Provider

	// Logger is the base logger every Scheduler and spawned Process
	// inherits unless overridden per-call. Default: rtlog.Nop().
	Logger rtlog.Logger
}

func defaultConfig() Config {
	return Config{
		Schedulers:      stdruntime.GOMAXPROCS(0),
		MetricsProvider: rtmetrics.NoopProvider{},
		Logger:          rtlog.Nop(),
	}
}

// Option configures a Runtime at construction time.
type Option func(*Config)

// WithSchedulers sets how many schedulers RunSchedulers drives.
func WithSchedulers(n int) Option {
	return func(c *Config) { c.Schedulers = n }
}

// WithMaxConcurrentDispatch bounds concurrent scheduler-driving goroutines.
func WithMaxConcurrentDispatch(n int64) Option {
	return func(c *Config) { c.MaxConcurrentDispatch = n }
}

// WithArenaPool enables a shared arena pool of the given capacity and
// per-arena size.
func WithArenaPool(capacity uint, arenaSize int) Option {
	return func(c *Config) {
		c.ArenaPoolCapacity = capacity
		c.ArenaSize = arenaSize
	}
}

// WithMetricsProvider attaches a metrics provider. A nil provider panics:
// a Runtime with no usable metrics sink is a construction-time mistake,
// not a state worth limping along in.
func WithMetricsProvider(p rtmetrics.Provider) Option {
	if p == nil {
		panic("runtime: WithMetricsProvider requires a non-nil Provider")
	}
	return func(c *Config) { c.MetricsProvider = p }
}

// WithLogger attaches a base logger.
func WithLogger(l rtlog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Runtime owns one Registry and the shared plug-ins every Scheduler and
// Process it creates draws from. It is the one place a caller threads
// through explicitly instead of any ambient global, so multiple Runtimes
// can coexist in one process without sharing state.
type Runtime struct {
	cfg       Config
	Registry  *process.Registry
	Metrics   *rtmetrics.RuntimeMetrics
	ArenaPool *process.ArenaPool
	Logger    rtlog.Logger
}

// New constructs a Runtime from opts over the documented defaults.
func New(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Schedulers <= 0 {
		cfg.Schedulers = 1
	}

	rt := &Runtime{
		cfg:      cfg,
		Registry: process.NewRegistry(),
		Metrics:  rtmetrics.NewRuntimeMetrics(cfg.MetricsProvider),
		Logger:   cfg.Logger,
	}
	if cfg.ArenaPoolCapacity > 0 {
		size := cfg.ArenaSize
		if size <= 0 {
			size = 4 * 1024 * 1024
		}
		rt.ArenaPool = process.NewArenaPool(cfg.ArenaPoolCapacity, size)
	}
	return rt
}

// NewScheduler builds a scheduler wired to this Runtime's logger and
// metrics, ready to be driven by RunSchedulers or stepped manually.
func (rt *Runtime) NewScheduler() *task.Scheduler {
	return task.New(task.WithLogger(rt.Logger), task.WithMetrics(rt.Metrics))
}

// SpawnOptions returns a process.Options pre-populated with this
// Runtime's shared logger, metrics, arena pool, and configured arena
// size; callers fill in the remaining per-process fields (Name, Flags,
// entry-specific sizes).
func (rt *Runtime) SpawnOptions() process.Options {
	return process.Options{
		ArenaSize: rt.cfg.ArenaSize,
		Logger:    &rt.Logger,
		Metrics:   rt.Metrics,
		ArenaPool: rt.ArenaPool,
	}
}

// RunSchedulers drives every scheduler in scheds to quiescence
// concurrently, one goroutine per scheduler, using
// golang.org/x/sync/errgroup so the first scheduler goroutine's error
// cancels ctx for the rest instead of leaving them running past a
// sibling's failure. If maxConcurrent > 0, a weighted semaphore bounds how many of them may be mid-Step at once — useful
// when many short-lived Runtimes share a process and the caller wants to
// cap total OS thread pressure.
func RunSchedulers(ctx context.Context, scheds []*task.Scheduler, maxConcurrent int64) error {
	g, ctx := errgroup.WithContext(ctx)

	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(maxConcurrent)
	}

	for _, sch := range scheds {
		sch := sch
		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if !sch.Step() {
					return nil
				}
			}
		})
	}
	return g.Wait()
}
