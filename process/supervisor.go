package process

import (
	"sync"

	"github.com/caldera-systems/greenproc/task"
)

// Strategy selects how a Supervisor reacts to a child's abnormal exit.
type Strategy int

const (
	// OneForOne restarts only the child that exited.
	OneForOne Strategy = iota
	// OneForAll restarts every other child whenever one exits abnormally.
	OneForAll
)

// ChildSpec describes one supervised child: how to (re)spawn it.
type ChildSpec struct {
	Name  string
	Entry EntryFunc
	Arg   any
	Opts  Options
}

// Supervisor spawns a fixed set of children, watches each one via a
// monitor-polling helper process, and restarts per Strategy when one
// exits abnormally. Close tears everything down exactly once (guarded by
// sync.Once); the first permanent child failure (restart budget
// exhausted) is the one surfaced through Failed(). Failed() is backed by
// a small buffered channel written through a select/default rather than
// golang.org/x/sync/errgroup: a watcher here is a cooperative
// process.Process driven by task.Scheduler.Step, not a goroutine blocked
// on a func() error, so there is nothing for errgroup.Go to wrap.
type Supervisor struct {
	sch      *task.Scheduler
	reg      *Registry
	strategy Strategy
	specs    []ChildSpec

	mu          sync.Mutex
	children    map[string]*Process
	generation  map[string]uint64
	restarts    map[string]int
	maxRestarts int

	failed chan error
	once   sync.Once
}

// NewSupervisor constructs a Supervisor over sch/reg using strategy, with
// maxRestarts attempts allowed per child before the child's exit is
// surfaced as a permanent failure via Failed().
func NewSupervisor(sch *task.Scheduler, reg *Registry, strategy Strategy, maxRestarts int, specs ...ChildSpec) *Supervisor {
	return &Supervisor{
		sch:         sch,
		reg:         reg,
		strategy:    strategy,
		specs:       specs,
		children:    make(map[string]*Process),
		generation:  make(map[string]uint64),
		restarts:    make(map[string]int),
		maxRestarts: maxRestarts,
		failed:      make(chan error, 1),
	}
}

// Start spawns every child and installs a watcher for each (a helper
// process that polls the child's terminal state, since the core's
// exit-handler callback can only be installed on the observing process
// at spawn time, and a Supervisor wants to react after the fact).
func (s *Supervisor) Start() error {
	for _, spec := range s.specs {
		if err := s.spawnChild(spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) spawnChild(spec ChildSpec) error {
	p, err := Spawn(s.sch, s.reg, spec.Entry, spec.Arg, spec.Opts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.children[spec.Name] = p
	s.generation[spec.Name]++
	gen := s.generation[spec.Name]
	s.mu.Unlock()

	_, err = Spawn(s.sch, s.reg, func(self *Process, arg any) {
		target := arg.(*Process)
		for !target.State().Terminal() {
			self.Yield()
		}
		s.onChildExit(spec, target, gen)
	}, p, Options{Flags: System})
	return err
}

// onChildExit reacts to a child's terminal state. gen is the generation
// this watcher was installed for; if the supervisor has already moved
// the child to a newer generation (e.g. it was deliberately killed as
// part of a OneForAll restart of a sibling), this watcher's notification
// is stale and must not trigger a second restart.
func (s *Supervisor) onChildExit(spec ChildSpec, child *Process, gen uint64) {
	s.mu.Lock()
	current := s.generation[spec.Name]
	s.mu.Unlock()
	if current != gen {
		return
	}

	reason, _ := child.ExitReason()
	if reason == Normal {
		return
	}

	s.mu.Lock()
	s.restarts[spec.Name]++
	exceeded := s.restarts[spec.Name] > s.maxRestarts
	s.mu.Unlock()

	if exceeded {
		s.reportFailure(newTaggedError(ErrNotAlive, child.pid, reason))
		return
	}

	switch s.strategy {
	case OneForAll:
		s.mu.Lock()
		siblings := make([]*Process, 0, len(s.children))
		for name, c := range s.children {
			if name != spec.Name && !c.State().Terminal() {
				siblings = append(siblings, c)
			}
		}
		s.mu.Unlock()
		for _, sib := range siblings {
			_ = Destroy(sib, Kill)
		}
		for _, sp := range s.specs {
			_ = s.spawnChild(sp)
		}
	case OneForOne:
		_ = s.spawnChild(spec)
	}
}

// reportFailure publishes err as the supervisor's permanent failure,
// keeping only the first one: the channel has capacity 1 and the
// default branch discards every subsequent write so a second failing
// child can never block behind (or overwrite) the first.
func (s *Supervisor) reportFailure(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// Failed returns a channel that receives the first permanent child
// failure (restart budget exhausted).
func (s *Supervisor) Failed() <-chan error { return s.failed }

// Close tears down every remaining child exactly once.
func (s *Supervisor) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		children := make([]*Process, 0, len(s.children))
		for _, c := range s.children {
			children = append(children, c)
		}
		s.mu.Unlock()
		for _, c := range children {
			_ = Destroy(c, Normal)
		}
	})
}
