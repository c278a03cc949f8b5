package index

import (
	"sync"
	"sync/atomic"
)

// gate is the flush boundary. Flush holds the write side while it commits
// and advances the generation; reads hold the read side, so a read sees
// either the state before a flush or after it, never a partial one.
type gate struct {
	mu         sync.RWMutex
	generation atomic.Uint64
}

// enter pins the current generation for a read. The caller must call the
// returned release.
func (g *gate) enter() (uint64, func()) {
	g.mu.RLock()
	return g.generation.Load(), g.mu.RUnlock
}

// lock excludes all reads until unlock.
func (g *gate) lock()   { g.mu.Lock() }
func (g *gate) unlock() { g.mu.Unlock() }

// advance moves to generation gen. Caller holds lock.
func (g *gate) advance(gen uint64) { g.generation.Store(gen) }

func (g *gate) current() uint64 { return g.generation.Load() }
