package process

import (
	"time"

	"github.com/caldera-systems/greenproc/deadline"
)

const destroyWait = 5 * time.Second
const destroyPoll = 2 * time.Millisecond

// sendExit is the single routing point for both Crash and Destroy. It is
// a no-op if p is not currently alive. On success it records the exit
// reason/data and flips p to the matching terminal state; the actual
// link/monitor cascade is delivered once the owning task's trampoline
// observes termination and runs its tail (see Process.trampoline and
// notifyLinksAndMonitors) — the trampoline, not the signaler, is the one
// that walks the link set, since a process can also reach a terminal
// state on its own (a normal return or a panic) without sendExit ever
// being called.
func sendExit(p *Process, reason Reason, data []byte) bool {
	p.stateMu.Lock()
	if !p.state.Alive() {
		p.stateMu.Unlock()
		return false
	}
	switch reason {
	case Normal:
		p.state = StateDone
	case Kill:
		p.state = StateKilled
	default:
		p.state = StateCrashed
	}
	p.stateMu.Unlock()

	p.recordExit(reason, data)
	return true
}

// Crash terminates p with the given reason and diagnostic data, as if its
// own entry had faulted. A zero-length data with reason Error still
// produces a valid ExitInfo: bytes are copied only when the caller
// supplies a non-empty slice, so a deliberately dataless crash doesn't
// allocate an empty owned buffer for no reason.
func Crash(p *Process, reason Reason, data []byte) {
	sendExit(p, reason, data)
}

// Destroy issues an exit signal with reason, waits up to five seconds for
// the process to leave its running/suspended states, then tears it down:
// the mailbox is drained and its remaining blobs are discarded,
// the arena is returned to its ArenaPool if the process drew it from one
// and destroyed otherwise, and the process is unregistered. Destroy is
// safe to call exactly once per process; a second call returns
// ErrDestroyed rather than repeating the teardown.
func Destroy(p *Process, reason Reason) error {
	ranThisTime := false
	p.destroyOnce.Do(func() {
		ranThisTime = true
		sendExit(p, reason, nil)

		deadlineNS := deadline.NowNS() + destroyWait.Nanoseconds()
		for p.State().Alive() && deadline.NowNS() < deadlineNS {
			sleepReal(destroyPoll)
		}

		p.mbox.drain(func([]byte) {})
		if p.arenaHandle != nil {
			if p.arenaPool != nil {
				p.arenaPool.Put(p.arenaHandle)
			} else {
				p.arenaHandle.Destroy()
			}
		}
		p.reg.unregister(p.pid)
	})
	if !ranThisTime {
		return ErrDestroyed
	}
	return nil
}

// notifyLinksAndMonitors runs at the tail of the trampoline once a
// process has reached a terminal state.
//
// For each bidirectional peer in p's own link set, in link-set order: a
// trapping peer is expected to observe the exit via its own exit handler
// (installed at spawn time); a non-trapping peer is itself crashed with
// the same reason when that reason is not Normal (cascading failure —
// Normal exits never cascade).
//
// Separately, for every process currently monitoring p (entries live in
// p.monitors, not p.links — monitoring is asymmetric, unlike a link),
// the observer's exit handler fires exactly once carrying the monitor
// ref, and the monitor entry is removed from both sides.
func (p *Process) notifyLinksAndMonitors() {
	reason, _ := p.ExitReason()
	var data []byte
	p.exitMu.Lock()
	if p.exitInfo != nil {
		data = p.exitInfo.Data
	}
	p.exitMu.Unlock()

	for _, entry := range p.linkSetSnapshot() {
		if entry.Kind != Bidirectional {
			continue
		}
		peer, ok := p.reg.Lookup(entry.Peer)
		if !ok {
			continue
		}
		if peer.flags.has(TrapExit) {
			if peer.exitHandler != nil {
				peer.exitHandler(peer, p.pid, reason, 0, data)
			}
		} else if reason != Normal {
			Crash(peer, reason, data)
			p.metrics.ExitCascaded()
		}
	}

	p.monitorsMu.Lock()
	observers := make(map[uint64]Pid, len(p.monitors))
	for ref, obsPid := range p.monitors {
		observers[ref] = obsPid
	}
	p.monitors = make(map[uint64]Pid)
	p.monitorsMu.Unlock()

	for ref, obsPid := range observers {
		observer, ok := p.reg.Lookup(obsPid)
		if !ok {
			continue
		}
		if observer.exitHandler != nil {
			observer.exitHandler(observer, p.pid, reason, ref, data)
		}
		observer.removeLink(p.pid, Monitor, ref)
	}
}
