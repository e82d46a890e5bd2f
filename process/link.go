package process

// LinkKind distinguishes a symmetric bidirectional link from an
// asymmetric one-shot monitor.
type LinkKind int

const (
	Bidirectional LinkKind = iota
	Monitor
)

// LinkEntry is one entry in a process's link set: a peer pid, the kind of
// relationship, and — for a monitor — the reference returned to the
// observer. Exit notifications fire in link-set order, so this is a
// slice, not a map.
type LinkEntry struct {
	Peer Pid
	Kind LinkKind
	Ref  uint64
}

func (p *Process) addLink(e LinkEntry) {
	p.linksMu.Lock()
	defer p.linksMu.Unlock()
	p.links = append(p.links, e)
}

func (p *Process) removeLink(peer Pid, kind LinkKind, ref uint64) bool {
	p.linksMu.Lock()
	defer p.linksMu.Unlock()
	for i, e := range p.links {
		if e.Peer == peer && e.Kind == kind && (kind == Bidirectional || e.Ref == ref) {
			p.links = append(p.links[:i], p.links[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Process) linkSetSnapshot() []LinkEntry {
	p.linksMu.Lock()
	defer p.linksMu.Unlock()
	out := make([]LinkEntry, len(p.links))
	copy(out, p.links)
	return out
}

// LinkCount reports the number of entries in this process's link set
// (bidirectional links and outgoing monitors combined).
func (p *Process) LinkCount() int {
	p.linksMu.Lock()
	defer p.linksMu.Unlock()
	return len(p.links)
}

// MonitorCount reports the number of peers currently monitoring this
// process.
func (p *Process) MonitorCount() int {
	p.monitorsMu.Lock()
	defer p.monitorsMu.Unlock()
	return len(p.monitors)
}

// Link establishes a symmetric bidirectional link between a and b.
// Linking a process to itself fails. If adding the reverse side fails,
// the forward side is rolled back.
func Link(a, b *Process) error {
	if a.pid == b.pid {
		return ErrSelfLink
	}
	a.addLink(LinkEntry{Peer: b.pid, Kind: Bidirectional})
	b.addLink(LinkEntry{Peer: a.pid, Kind: Bidirectional})
	return nil
}

// Unlink removes the bidirectional pair between a and b. It reports
// success only if both sides were present.
func Unlink(a, b *Process) bool {
	removedA := a.removeLink(b.pid, Bidirectional, 0)
	removedB := b.removeLink(a.pid, Bidirectional, 0)
	return removedA && removedB
}

// NewMonitor allocates a monitor reference from observer to target:
// target.monitors gains an entry tagged with the ref, and observer.links
// gains a one-shot monitor LinkEntry carrying the same ref. Monitoring
// self fails.
//
// The ref is allocated from the shared registry, not from either
// process's own state: two different observers monitoring the same
// target must get distinct refs, since target.monitors is keyed by ref
// alone. A per-observer counter would let two observers each hand out
// ref=1 on their first call, and the second registration would silently
// overwrite the first in target.monitors — losing one observer's
// notification entirely.
func NewMonitor(observer, target *Process) (uint64, error) {
	if observer.pid == target.pid {
		return 0, ErrSelfMonitor
	}
	ref := target.reg.allocateRef()

	target.monitorsMu.Lock()
	target.monitors[ref] = observer.pid
	target.monitorsMu.Unlock()

	observer.addLink(LinkEntry{Peer: target.pid, Kind: Monitor, Ref: ref})
	return ref, nil
}

