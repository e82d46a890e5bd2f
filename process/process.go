// Package process implements greenproc's actor layer: process identity
// and lifecycle, an isolated arena, a mailbox, and linking/monitoring with
// BEAM-style exit-signal propagation. A Process runs on top of a
// task.Task for identity/cancel bookkeeping, but its own blocking
// operations are realized as cooperative Task.Yield loops rather than
// OS-level condvar waits — see mailbox.go and Recv for why.
package process

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caldera-systems/greenproc/arena"
	"github.com/caldera-systems/greenproc/codec"
	"github.com/caldera-systems/greenproc/deadline"
	"github.com/caldera-systems/greenproc/rtlog"
	"github.com/caldera-systems/greenproc/rtmetrics"
	"github.com/caldera-systems/greenproc/task"
)

// State is a Process's lifecycle state.
type State int32

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateSuspended
	StateDone
	StateCrashed
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateDone:
		return "done"
	case StateCrashed:
		return "crashed"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is sticky (DONE, CRASHED, KILLED).
func (s State) Terminal() bool {
	return s == StateDone || s == StateCrashed || s == StateKilled
}

// Alive reports whether s is one a live process may be in.
func (s State) Alive() bool {
	return s == StateReady || s == StateRunning || s == StateSuspended
}

// Flags is a bitmask of process options.
type Flags uint32

const (
	System   Flags = 1 << iota // a runtime-owned process, hidden from ordinary listings
	TrapExit                   // exits from linked peers arrive as messages instead of cascading
	Hidden                     // excluded from diagnostic enumeration
	HeapOnly                   // no arena is created for this process (see DESIGN.md)
)

func (f Flags) has(flag Flags) bool { return f&flag != 0 }

const defaultMailboxCapacity = 1024
const defaultArenaSize = 4 * 1024 * 1024

// EntryFunc is a process's body, run on its own task's goroutine.
type EntryFunc func(self *Process, arg any)

// ExitHandler observes an exit from a linked or monitored peer. It runs
// from the exiting process's trampoline tail. ref is 0 for a
// trapped link exit (links carry no reference) and the monitor's
// reference for a monitor notification. Handlers must not block
// indefinitely and must not destroy observer.
type ExitHandler func(observer *Process, from Pid, reason Reason, ref uint64, exitData []byte)

// Process is a single actor: a pid, a state machine, an optional arena, a
// mailbox, and link/monitor sets.
type Process struct {
	pid    Pid
	name   string
	flags  Flags
	parent Pid

	entry EntryFunc
	arg   any

	task *task.Task
	sch  *task.Scheduler
	reg  *Registry

	arenaHandle *arena.Arena
	arenaPool   *ArenaPool
	mbox        *mailbox
	codec       codec.Codec
	metrics     *rtmetrics.RuntimeMetrics

	stateMu sync.Mutex
	state   State

	exitMu      sync.Mutex
	exitInfo    *ExitInfo
	exitHandler ExitHandler

	linksMu sync.Mutex
	links   []LinkEntry

	monitorsMu sync.Mutex
	monitors   map[uint64]Pid // ref -> observer pid

	createdAtNS atomic.Int64
	startedAtNS atomic.Int64

	log rtlog.Logger

	destroyOnce sync.Once
}

// ExitInfo records why a process terminated.
type ExitInfo struct {
	Reason Reason
	Data   []byte
	AtNS   int64
}

// Reason is an exit cause. Normal and Kill are recognized by the core;
// any other value is treated as a crash reason.
type Reason string

const (
	Normal Reason = "normal"
	Kill   Reason = "kill"
	Error  Reason = "error"
)

// Options configures Spawn.
type Options struct {
	Name        string
	Parent      Pid
	Flags       Flags
	ArenaSize   int
	MailboxSize int
	Codec       codec.Codec
	ExitHandler ExitHandler
	StackSize   uint32
	Logger      *rtlog.Logger
	Metrics     *rtmetrics.RuntimeMetrics
	ArenaPool   *ArenaPool
}

// Spawn creates a new process on sch, registers it in reg, and places its
// backing task on sch's ready queue. Any failure unwinds earlier steps.
func Spawn(sch *task.Scheduler, reg *Registry, entry EntryFunc, arg any, opts Options) (*Process, error) {
	pid := reg.allocatePid()

	arenaSize := opts.ArenaSize
	if arenaSize <= 0 {
		arenaSize = defaultArenaSize
	}
	var a *arena.Arena
	if !opts.Flags.has(HeapOnly) {
		if opts.ArenaPool != nil {
			a = opts.ArenaPool.Get()
		} else {
			a = arena.Create(arenaSize, false)
		}
	}

	mailboxSize := opts.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxCapacity
	}

	c := opts.Codec
	if c == nil {
		c = codec.Identity{}
	}

	log := rtlog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	p := &Process{
		pid:         pid,
		name:        opts.Name,
		flags:       opts.Flags,
		parent:      opts.Parent,
		entry:       entry,
		arg:         arg,
		sch:         sch,
		reg:         reg,
		arenaHandle: a,
		arenaPool:   opts.ArenaPool,
		mbox:        newMailbox(mailboxSize),
		codec:       c,
		metrics:     opts.Metrics,
		exitHandler: opts.ExitHandler,
		monitors:    make(map[uint64]Pid),
		log:         log,
		state:       StateNew,
	}
	p.createdAtNS.Store(deadline.NowNS())

	p.task = sch.Spawn(p.trampoline, nil, opts.StackSize)
	reg.register(p)

	p.setState(StateReady)
	p.metrics.ProcessSpawned()
	p.log.Debug().Uint64("pid", uint64(pid)).Msg("process spawned")
	return p, nil
}

func (p *Process) setState(s State) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state.Terminal() {
		return
	}
	p.state = s
}

// State returns the process's current lifecycle state.
func (p *Process) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// IsAlive reports whether the process is in a live state.
func (p *Process) IsAlive() bool {
	return p.State().Alive()
}

// Pid returns the process's identifier.
func (p *Process) Pid() Pid { return p.pid }

// Name returns the process's display name, if any.
func (p *Process) Name() string { return p.name }

// Parent returns the (weak) parent pid; resolve through the Registry.
func (p *Process) Parent() Pid { return p.parent }

// Arena returns the process's arena handle, or nil if HeapOnly.
func (p *Process) Arena() *arena.Arena { return p.arenaHandle }

// TaskHandle returns the underlying task handle.
func (p *Process) TaskHandle() *task.Task { return p.task }

// ExitReason returns the recorded exit reason, if the process has
// terminated.
func (p *Process) ExitReason() (Reason, bool) {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	if p.exitInfo == nil {
		return "", false
	}
	return p.exitInfo.Reason, true
}

// MessageCounts returns the number sent to, and received by, this
// process's mailbox.
func (p *Process) MessageCounts() (sent, received uint64) { return p.mbox.counters() }

// PeakMailboxSize returns the largest size the mailbox has reached.
func (p *Process) PeakMailboxSize() int { return p.mbox.peakSize() }

// Yield cooperatively suspends the calling process, returning control to
// the scheduler. It must be called from inside this process's own
// trampoline goroutine.
func (p *Process) Yield() {
	p.task.Yield()
}

// trampoline is the task entry every spawned process actually runs.
func (p *Process) trampoline(self *task.Task, _ any) {
	p.startedAtNS.Store(deadline.NowNS())
	p.setState(StateRunning)

	var crashReason Reason
	var crashData []byte
	func() {
		defer func() {
			if r := recover(); r != nil {
				crashReason = Error
				if err, ok := r.(error); ok {
					crashData = []byte(err.Error())
				} else {
					crashData = []byte(errors.New("process: recovered panic").Error())
				}
			}
		}()
		p.entry(p, p.arg)
	}()

	p.stateMu.Lock()
	alreadyTerminal := p.state.Terminal()
	if !alreadyTerminal {
		if crashReason != "" {
			p.state = StateCrashed
		} else if self.CancelRequested() {
			p.state = StateCrashed
			crashReason = Error
			crashData = []byte("process: canceled")
		} else {
			p.state = StateDone
			crashReason = Normal
		}
	}
	p.stateMu.Unlock()

	if !alreadyTerminal {
		p.recordExit(crashReason, crashData)
	}

	p.notifyLinksAndMonitors()
}

func (p *Process) recordExit(reason Reason, data []byte) {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	if p.exitInfo != nil {
		return
	}
	var owned []byte
	if len(data) > 0 {
		owned = make([]byte, len(data))
		copy(owned, data)
	}
	p.exitInfo = &ExitInfo{Reason: reason, Data: owned, AtNS: deadline.NowNS()}
}

// Send delivers data to the target process's mailbox. It rejects
// processes that are not alive. The mailbox never blocks: when full, the
// oldest entry is dropped to make room.
//
// Every delivered blob is stamped with a fresh envelope id (see
// codec.Envelope) so a "queued" log line here can be matched against the
// "received" line Recv emits on the other end, independent of whatever
// the configured codec does to the bytes in between.
func Send(target *Process, data []byte, senderPid Pid) error {
	if !target.IsAlive() {
		return newTaggedError(ErrNotAlive, target.pid, "")
	}
	blob, err := target.codec.Serialize(data, uint64(senderPid), uint64(target.pid))
	if err != nil {
		return newTaggedError(err, target.pid, "")
	}
	env := codec.NewEnvelope(blob)
	target.mbox.push(message{blob: env.Blob, sender: senderPid, atNS: deadline.NowNS(), id: env.ID}, func(dropped []byte) {
		_ = dropped // identity codec owns no external resource to release
	})
	target.metrics.MailboxSize(target.mbox.len())
	target.log.Debug().
		Uint64("pid", uint64(target.pid)).
		Uint64("from", uint64(senderPid)).
		Str("envelope_id", env.ID.String()).
		Msg("mailbox entry queued")
	return nil
}

// Recv waits for the next mailbox message, up to d. It must be called
// from inside this process's own trampoline goroutine: the wait is
// realized as a cooperative poll loop via Task.Yield rather than an
// OS-level condvar wait, so it never blocks the underlying scheduler
// thread.
func (p *Process) Recv(d deadline.Deadline) ([]byte, Pid, error) {
	for {
		if msg, ok := p.mbox.tryPop(); ok {
			p.setState(StateRunning)
			out, err := p.codec.Deserialize(msg.blob)
			if err != nil {
				return nil, NoPid, newTaggedError(err, p.pid, "")
			}
			p.log.Debug().
				Uint64("pid", uint64(p.pid)).
				Uint64("from", uint64(msg.sender)).
				Str("envelope_id", msg.id.String()).
				Msg("mailbox entry received")
			return out, msg.sender, nil
		}
		if !p.IsAlive() {
			return nil, NoPid, newTaggedError(ErrNotAlive, p.pid, "")
		}
		if d.WhenNS != 0 && deadline.Expired(d) {
			return nil, NoPid, errTimeout
		}
		p.setState(StateSuspended)
		p.Yield()
	}
}

// errTimeout is a lightweight sentinel distinct from the taxonomy of
// liveness errors: a deadline elapsing is not itself a state violation.
var errTimeout = errors.New("process: recv deadline exceeded")

// ErrTimeout reports whether err is the deadline-exceeded sentinel Recv
// returns.
func ErrTimeout(err error) bool { return errors.Is(err, errTimeout) }

// sleepReal is used by tests and by Destroy's bounded wait; it is a thin
// wrapper so the import stays grounded in one place.
func sleepReal(d time.Duration) { time.Sleep(d) }
