package process

import (
	"github.com/caldera-systems/greenproc/arena"
	"github.com/caldera-systems/greenproc/pool"
)

// ArenaPool recycles fixed-size arenas across processes that spawn and
// die in quick succession (a Supervisor restarting a crashing child, for
// instance). It wraps pool's fixed-capacity channel pool rather than the
// dynamic sync.Pool one used for mailbox nodes: unlike mailbox nodes, an
// arena is not cheap to allocate (it owns a multi-megabyte backing
// buffer), so capping how many idle arenas are kept warm matters.
type ArenaPool struct {
	size uint
	p    pool.Pool
}

// NewArenaPool builds a pool of arenas of the given size, each created
// with arena.Create(size, false). capacity bounds how many arenas the
// pool creates in total; once all of them are checked out, Get (and so
// a Spawn that draws from this pool) blocks until one is Put back.
func NewArenaPool(capacity uint, size int) *ArenaPool {
	return &ArenaPool{
		size: capacity,
		p: pool.NewFixed(capacity, func() interface{} {
			return arena.Create(size, false)
		}),
	}
}

// Get returns a ready-to-use arena, either recycled (and already Reset)
// or freshly created.
func (ap *ArenaPool) Get() *arena.Arena {
	return ap.p.Get().(*arena.Arena)
}

// Put resets a and returns it to the pool. Callers must not touch a
// again afterward.
func (ap *ArenaPool) Put(a *arena.Arena) {
	a.Reset()
	ap.p.Put(a)
}
