package task

import (
	"sync"
	"sync/atomic"

	"github.com/caldera-systems/greenproc/rtlog"
	"github.com/caldera-systems/greenproc/rtmetrics"
)

// Scheduler is a thread-local, strictly FIFO cooperative dispatcher of
// tasks. "Thread-local" here means: do not reach for a Scheduler through
// ambient global state — every owner holds its own explicit *Scheduler
// value. Nothing prevents constructing many Schedulers; each is
// independent and must not be driven from more than one goroutine
// concurrently.
type Scheduler struct {
	mu      sync.Mutex
	head    *Task
	tail    *Task
	current *Task

	nextID  atomic.Uint64
	log     rtlog.Logger
	metrics *rtmetrics.RuntimeMetrics
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithLogger attaches a logger; the zero Scheduler otherwise logs nothing.
func WithLogger(l rtlog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics attaches a RuntimeMetrics instance the Scheduler records
// ready-queue depth and spawn/cancel counts into. A nil m (the default)
// records nothing.
func WithMetrics(m *rtmetrics.RuntimeMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New constructs an empty Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{log: rtlog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// enqueue appends t to the tail of the ready queue. Callers must hold s.mu.
func (s *Scheduler) enqueueLocked(t *Task) {
	t.next = nil
	if s.tail == nil {
		s.head = t
		s.tail = t
		return
	}
	s.tail.next = t
	s.tail = t
}

// prepend inserts t at the head of the ready queue. Callers must hold s.mu.
func (s *Scheduler) prependLocked(t *Task) {
	t.next = s.head
	s.head = t
	if s.tail == nil {
		s.tail = t
	}
}

// dequeue pops the head of the ready queue, or returns nil if empty.
// Callers must hold s.mu.
func (s *Scheduler) dequeueLocked() *Task {
	t := s.head
	if t == nil {
		return nil
	}
	s.head = t.next
	if s.head == nil {
		s.tail = nil
	}
	t.next = nil
	return t
}

// removeLocked unlinks t from the ready queue if present, scanning from
// head. Callers must hold s.mu. Reports whether t was found.
func (s *Scheduler) removeLocked(t *Task) bool {
	if s.head == t {
		s.head = t.next
		if s.head == nil {
			s.tail = nil
		}
		t.next = nil
		return true
	}
	for n := s.head; n != nil && n.next != nil; n = n.next {
		if n.next == t {
			n.next = t.next
			if s.tail == t {
				s.tail = n
			}
			t.next = nil
			return true
		}
	}
	return false
}

// Spawn creates a NEW task and places it on the ready queue. stackSize
// below 64 KiB is rounded up to the 256 KiB default. The task's goroutine
// starts immediately but blocks on its baton channel until the scheduler
// switches it in for the first time — see Step.
func (s *Scheduler) Spawn(entry EntryFunc, arg any, stackSize uint32) *Task {
	t := &Task{
		id:        s.nextID.Add(1),
		entry:     entry,
		arg:       arg,
		stackSize: normalizeStackSize(stackSize),
		baton:     make(chan struct{}),
		backCh:    make(chan struct{}),
		done:      make(chan struct{}),
		sched:     s,
	}
	t.state.Store(int32(StateNew))

	go t.runLoop()

	t.state.Store(int32(StateReady))
	s.mu.Lock()
	s.enqueueLocked(t)
	s.mu.Unlock()

	s.metrics.TaskSpawned()
	s.log.Debug().Uint64("task_id", t.id).Msg("task spawned")
	return t
}

// Step runs the head of the ready queue for one scheduling quantum: it
// switches the task in, blocks until the task yields or terminates, then
// either re-enqueues it (READY) or leaves it for its owner to observe
// (DONE/CANCELED). It reports false if the ready queue was empty.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	t := s.dequeueLocked()
	if t == nil {
		s.mu.Unlock()
		return false
	}
	s.current = t
	s.mu.Unlock()
	s.metrics.TaskDequeued()

	t.state.Store(int32(StateRunning))
	t.baton <- struct{}{}
	<-t.backCh

	s.mu.Lock()
	s.current = nil
	switch t.State() {
	case StateDone, StateCanceled:
		// terminal: leave it for Join/Destroy to observe.
	default:
		t.state.Store(int32(StateReady))
		s.enqueueLocked(t)
		s.metrics.TaskRequeued()
	}
	s.mu.Unlock()
	return true
}

// Current returns the task currently RUNNING on this scheduler, or
// (nil, false) when the scheduler itself (not a task) is in control —
// i.e. the caller is not running on any task's own goroutine.
func (s *Scheduler) Current() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

// Resume requests that h run soon. Valid only when h.State() is NEW or
// READY. It moves h to the head of the ready queue without duplicating
// it, giving h priority over strict FIFO order for its next run.
func (s *Scheduler) Resume(h *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch h.State() {
	case StateNew, StateReady:
	default:
		return ErrInvalidState
	}

	s.removeLocked(h)
	s.prependLocked(h)
	return nil
}

// Join drives the scheduler cooperatively — running ready tasks in FIFO
// order — until h reaches a terminal state. If the ready queue empties
// before that happens, Join fails with ErrDeadlock.
func (s *Scheduler) Join(h *Task) error {
	for {
		if h.State().Terminal() {
			return nil
		}
		if !s.Step() {
			if h.State().Terminal() {
				return nil
			}
			return ErrDeadlock
		}
	}
}

// Cancel sets h's cancel flag. It is idempotent, including after h
// reaches a terminal state, and always returns immediately — cancellation
// is observed cooperatively at h's next suspension point.
func (s *Scheduler) Cancel(h *Task) {
	h.cancel.Store(true)
	s.metrics.TaskCanceled()
}

// Destroy frees h's scheduling bookkeeping. Its precondition is
// h.State().Terminal(); if not yet terminal, Destroy cancels h and
// attempts a cooperative Join before giving up. Go's garbage collector
// reclaims the task's goroutine stack and channels once they are
// unreachable and the goroutine has exited — there is no separate manual
// stack-free step to perform.
func (s *Scheduler) Destroy(h *Task) error {
	if !h.State().Terminal() {
		s.Cancel(h)
		if err := s.Join(h); err != nil {
			return err
		}
	}
	if !h.State().Terminal() {
		return ErrInvalidState
	}
	return nil
}

// RunUntilIdle steps the scheduler until the ready queue is empty. It is
// useful for tests and for driving a scheduler to quiescence without
// waiting on any particular task.
func (s *Scheduler) RunUntilIdle() {
	for s.Step() {
	}
}
