package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// MatchFunc is a structured query for the memory backend: it selects
// committed pairs directly.
type MatchFunc func(key string, v Value) bool

// NumberRange selects numeric values between Min and Max, both inclusive.
// A nil bound is open. Every backend understands it as a keyed structured query.
type NumberRange struct {
	Min *float64
	Max *float64
}

func (r NumberRange) contains(v Value) bool {
	if v.Kind() != KindNumber {
		return false
	}
	if r.Min != nil && v.Num() < *r.Min {
		return false
	}
	if r.Max != nil && v.Num() > *r.Max {
		return false
	}
	return true
}

// posting is the set of entities holding one key/value pair.
type posting struct {
	value Value
	ids   *roaring64.Bitmap
}

// MemoryBackend keeps committed pairs in process memory as roaring bitmap
// posting lists. Entity IDs are stored as their uint64 bit pattern.
//
// Architecture:
//   - postings: key -> value key -> bitmap of entities
//   - entities: entity -> committed entries (needed to undo them on replace)
type MemoryBackend struct {
	mu       sync.RWMutex
	postings map[string]map[string]*posting
	entities map[int64][][]Pair
	entries  int
	pageSize int
	closed   bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts Options) *MemoryBackend {
	return &MemoryBackend{
		postings: make(map[string]map[string]*posting),
		entities: make(map[int64][][]Pair),
		pageSize: opts.pageSize(),
	}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return string(BackendMemory) }

// Commit implements Backend. The batch is applied under the write lock after
// all checks pass, so it cannot be observed half-applied.
func (m *MemoryBackend) Commit(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range batch.Deletes {
		m.removeEntityLocked(id)
	}
	for _, e := range batch.Entries {
		m.addEntryLocked(e)
	}

	slog.Debug("memory_backend_committed",
		slog.Uint64("generation", batch.Generation),
		slog.Int("deletes", len(batch.Deletes)),
		slog.Int("entries", len(batch.Entries)))
	return nil
}

// addEntryLocked indexes one entry. Caller must hold m.mu.Lock().
func (m *MemoryBackend) addEntryLocked(e Entry) {
	uid := uint64(e.Entity)
	for _, p := range e.Pairs {
		values, ok := m.postings[p.Key]
		if !ok {
			values = make(map[string]*posting)
			m.postings[p.Key] = values
		}
		vk := p.Value.Key()
		post, ok := values[vk]
		if !ok {
			post = &posting{value: p.Value, ids: roaring64.New()}
			values[vk] = post
		}
		post.ids.Add(uid)
	}
	m.entities[e.Entity] = append(m.entities[e.Entity], e.Pairs)
	m.entries++
}

// removeEntityLocked drops every committed entry of id. Caller must hold m.mu.Lock().
func (m *MemoryBackend) removeEntityLocked(id int64) {
	entries, ok := m.entities[id]
	if !ok {
		return
	}
	uid := uint64(id)
	for _, pairs := range entries {
		for _, p := range pairs {
			values, ok := m.postings[p.Key]
			if !ok {
				continue
			}
			vk := p.Value.Key()
			post, ok := values[vk]
			if !ok {
				continue
			}
			post.ids.Remove(uid)
			if post.ids.IsEmpty() {
				delete(values, vk)
				if len(values) == 0 {
					delete(m.postings, p.Key)
				}
			}
		}
	}
	m.entries -= len(entries)
	delete(m.entities, id)
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string, value Value) (ResultSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}

	post, ok := m.postings[key][value.Key()]
	if !ok {
		return newSliceResult(nil, m.pageSize), nil
	}
	return newSliceResult(bitmapIDs(post.ids), m.pageSize), nil
}

// Query implements Backend.
//
// StringQuery syntax: a wildcard pattern ('*' any run, '?' one character)
// matched against the text of each value. Without a key scope the text must
// be "key:pattern".
//
// StructuredQuery accepts MatchFunc and NumberRange.
func (m *MemoryBackend) Query(_ context.Context, key string, q Query) (ResultSet, error) {
	var match MatchFunc

	switch q := q.(type) {
	case StringQuery:
		field, pattern, err := splitFieldPattern(key, q.Text)
		if err != nil {
			return nil, err
		}
		key = field
		match = func(_ string, v Value) bool { return wildcardMatch(pattern, v.Text()) }
	case StructuredQuery:
		switch d := q.Descriptor.(type) {
		case MatchFunc:
			match = d
		case func(string, Value) bool:
			match = d
		case NumberRange:
			if key == "" {
				return nil, fmt.Errorf("number range query requires a key")
			}
			match = func(_ string, v Value) bool { return d.contains(v) }
		default:
			return nil, fmt.Errorf("memory backend does not support query object %T", q.Descriptor)
		}
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}

	union := roaring64.New()
	scan := func(k string, values map[string]*posting) {
		for _, post := range values {
			if match(k, post.value) {
				union.Or(post.ids)
			}
		}
	}
	if key != "" {
		scan(key, m.postings[key])
	} else {
		for k, values := range m.postings {
			scan(k, values)
		}
	}
	return newSliceResult(bitmapIDs(union), m.pageSize), nil
}

// Stats implements Backend.
func (m *MemoryBackend) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Backend:  m.Name(),
		Entries:  m.entries,
		Entities: len(m.entities),
	}, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.postings = nil
	m.entities = nil
	return nil
}

func bitmapIDs(b *roaring64.Bitmap) []int64 {
	raw := b.ToArray()
	ids := make([]int64, len(raw))
	for i, u := range raw {
		ids[i] = int64(u)
	}
	sortIDs(ids)
	return ids
}

// splitFieldPattern resolves the key scope of a string query. Unscoped
// queries carry the key as a "key:" prefix.
func splitFieldPattern(key, text string) (string, string, error) {
	if key != "" {
		return key, text, nil
	}
	field, pattern, ok := strings.Cut(text, ":")
	if !ok || field == "" {
		return "", "", fmt.Errorf("query %q must have the form key:pattern", text)
	}
	return field, pattern, nil
}

// wildcardMatch matches s against a pattern where '*' matches any run of
// characters and '?' exactly one. '\' escapes the next character.
func wildcardMatch(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)
	var pi, si int
	star, mark := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && p[pi] == '\\' && pi+1 < len(p) && p[pi+1] == r[si]:
			pi += 2
			si++
		case pi < len(p) && (p[pi] == '?' || (p[pi] == r[si] && p[pi] != '*' && p[pi] != '\\')):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

var _ Backend = (*MemoryBackend)(nil)
