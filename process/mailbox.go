package process

import (
	"sync"

	"github.com/google/uuid"

	"github.com/caldera-systems/greenproc/pool"
)

// nodePool recycles mailboxNode allocations across every mailbox in the
// process (every push/dequeue otherwise allocates and discards one node;
// sends are the hottest path in the runtime). Backed by pool.NewDynamic,
// a thin sync.Pool wrapper, since node lifetime here is unbounded and
// unrelated to any fixed worker count.
var nodePool = pool.NewDynamic(func() interface{} { return &mailboxNode{} })

// message is one mailbox entry: an already-serialized blob, the sender
// pid, the enqueue timestamp, and the envelope id the send side stamped
// on it — the correlation token that lets a log reader match a "mailbox
// entry queued" line to the "mailbox entry received" line it produced.
type message struct {
	blob   []byte
	sender Pid
	atNS   int64
	id     uuid.UUID
}

type mailboxNode struct {
	val  message
	next *mailboxNode
}

// mailbox is a bounded FIFO of mailbox entries with tail-preserving
// drop-oldest backpressure: when full, the oldest entry is evicted — and
// its blob handed to the destructor — before the new one is appended,
// rather than blocking the sender or growing without bound.
//
// Unlike channel.Channel, mailbox never blocks a sender and never blocks
// a receiver internally: Process.Recv realizes its deadline-aware wait as
// a cooperative poll loop via Task.Yield (see process.go), since mailbox
// access only ever happens from inside the owning process's own task
// goroutine. A plain mutex is therefore enough here; there is no condvar
// to wait on.
type mailbox struct {
	mu       sync.Mutex
	head     *mailboxNode
	tail     *mailboxNode
	size     int
	capacity int
	peak     int

	sent uint64
	recv uint64
}

func newMailbox(capacity int) *mailbox {
	if capacity <= 0 {
		capacity = 1024
	}
	return &mailbox{capacity: capacity}
}

func (m *mailbox) enqueueLocked(msg message) {
	n := nodePool.Get().(*mailboxNode)
	n.val = msg
	n.next = nil
	if m.tail == nil {
		m.head, m.tail = n, n
	} else {
		m.tail.next = n
		m.tail = n
	}
	m.size++
	if m.size > m.peak {
		m.peak = m.size
	}
}

func (m *mailbox) dequeueLocked() message {
	n := m.head
	m.head = n.next
	if m.head == nil {
		m.tail = nil
	}
	m.size--
	val := n.val
	n.val = message{}
	n.next = nil
	nodePool.Put(n)
	return val
}

// push appends msg, dropping (and destructing) the oldest entry first if
// the mailbox is already at capacity. destructor may be nil.
func (m *mailbox) push(msg message, destructor func([]byte)) {
	m.mu.Lock()
	var dropped *message
	if m.size >= m.capacity {
		d := m.dequeueLocked()
		dropped = &d
	}
	m.enqueueLocked(msg)
	m.sent++
	m.mu.Unlock()

	if dropped != nil && destructor != nil {
		destructor(dropped.blob)
	}
}

// tryPop dequeues the head entry if present.
func (m *mailbox) tryPop() (message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return message{}, false
	}
	msg := m.dequeueLocked()
	m.recv++
	return msg, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *mailbox) peakSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *mailbox) counters() (sent, received uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent, m.recv
}

// drain empties the mailbox, invoking destructor (if non-nil) on every
// remaining blob — used at process destroy.
func (m *mailbox) drain(destructor func([]byte)) {
	m.mu.Lock()
	var blobs [][]byte
	for m.head != nil {
		msg := m.dequeueLocked()
		blobs = append(blobs, msg.blob)
	}
	m.mu.Unlock()

	if destructor != nil {
		for _, b := range blobs {
			destructor(b)
		}
	}
}
