package pool

import "sync"

// NewDynamic builds an uncapped Pool: a thin wrapper around sync.Pool,
// whose entries the garbage collector is free to evict under memory
// pressure. Use it for values with no meaningful fixed-capacity bound
// and a cheap-enough construction cost that an eviction just means one
// extra newFn call later (greenproc's mailbox nodes fit this).
func NewDynamic(newFn func() interface{}) Pool {
	return &sync.Pool{New: newFn}
}
