package index

import (
	"sync"

	"github.com/Aman-CERP/batchidx/internal/store"
)

// OpKind is the write semantics of a pending entry.
type OpKind uint8

const (
	// OpAdd appends pairs next to whatever the entity already has.
	OpAdd OpKind = iota
	// OpReplace supersedes every earlier entry of the entity.
	OpReplace
)

// String returns the op name.
func (k OpKind) String() string {
	if k == OpReplace {
		return "replace"
	}
	return "add"
}

type pendingEntry struct {
	entity int64
	pairs  []store.Pair
	op     OpKind
}

// buffer holds entries written since the last flush. It never reads the
// backend and never deduplicates.
type buffer struct {
	mu      sync.Mutex
	entries []pendingEntry

	// lastReplace is the position of the latest OpReplace per entity.
	lastReplace map[int64]int
}

func newBuffer() *buffer {
	return &buffer{lastReplace: make(map[int64]int)}
}

func (b *buffer) append(entity int64, pairs []store.Pair, op OpKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if op == OpReplace {
		b.lastReplace[entity] = len(b.entries)
	}
	b.entries = append(b.entries, pendingEntry{entity: entity, pairs: pairs, op: op})
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// snapshot returns the buffered entries and the latest replace position per
// entity without removing them. Entries written afterwards are not part of
// the snapshot and survive discard(len(entries)).
func (b *buffer) snapshot() ([]pendingEntry, map[int64]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]pendingEntry, len(b.entries))
	copy(entries, b.entries)
	lastReplace := make(map[int64]int, len(b.lastReplace))
	for id, pos := range b.lastReplace {
		lastReplace[id] = pos
	}
	return entries, lastReplace
}

// discard drops the first n entries after a successful commit.
func (b *buffer) discard(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n >= len(b.entries) {
		b.entries = nil
		clear(b.lastReplace)
		return
	}

	rest := make([]pendingEntry, len(b.entries)-n)
	copy(rest, b.entries[n:])
	b.entries = rest

	clear(b.lastReplace)
	for pos, e := range b.entries {
		if e.op == OpReplace {
			b.lastReplace[e.entity] = pos
		}
	}
}
