// Package store provides the pluggable index backends behind a batch index:
// an in-memory roaring-bitmap backend, bleve, SQLite (FTS5) and badger.
// This is the persistence layer for committed key/value entries.
package store

import (
	"context"
	"errors"
	"sort"
)

// ErrBatchTooLarge reports a commit the backend cannot accept at any retry.
// The batch, or one of its entries, must be made smaller.
var ErrBatchTooLarge = errors.New("batch too large for the backend")

// Pair is one indexed key/value association.
type Pair struct {
	Key   string
	Value Value
}

// Entry is a group of pairs added for one entity in a single call.
type Entry struct {
	Entity int64
	Pairs  []Pair
}

// Batch is one flush generation, applied atomically by Backend.Commit.
// Deletes are applied against committed state first, then Entries are inserted
// in order.
type Batch struct {
	Generation uint64
	Deletes    []int64
	Entries    []Entry
}

// IsEmpty reports whether the batch changes nothing.
func (b *Batch) IsEmpty() bool {
	return b == nil || (len(b.Deletes) == 0 && len(b.Entries) == 0)
}

// PairCount returns the number of pairs inserted by the batch.
func (b *Batch) PairCount() int {
	n := 0
	for _, e := range b.Entries {
		n += len(e.Pairs)
	}
	return n
}

// Query is a backend query: either a StringQuery or a StructuredQuery.
type Query interface {
	isQuery()
}

// StringQuery carries query text in the backend's own syntax.
type StringQuery struct {
	Text string
}

// StructuredQuery carries a backend-specific query object.
type StructuredQuery struct {
	Descriptor any
}

func (StringQuery) isQuery()     {}
func (StructuredQuery) isQuery() {}

// ResultSet is a forward-only page source of matching entity IDs.
type ResultSet interface {
	// NextPage returns the next page of IDs. An empty page means exhausted.
	// IDs may repeat within and across pages.
	NextPage(ctx context.Context) ([]int64, error)

	// Stable reports whether later pages stay consistent with the state the
	// set was opened against, even after further commits.
	Stable() bool

	// Done reports that the set is known to be exhausted, so NextPage would
	// return an empty page.
	Done() bool

	// Close releases backend resources. Safe to call more than once.
	Close() error
}

// Stats describes committed backend contents.
type Stats struct {
	Backend  string
	Entries  int // committed entries (one per add call)
	Entities int // distinct entities with at least one entry
}

// Backend is the index engine contract the batch index depends on.
type Backend interface {
	// Name returns the backend name ("memory", "bleve", "sqlite", "badger").
	Name() string

	// Commit applies a batch atomically. On error no part of it is visible.
	Commit(ctx context.Context, batch *Batch) error

	// Get returns entities with an exact key/value match.
	Get(ctx context.Context, key string, value Value) (ResultSet, error)

	// Query runs a backend query, optionally scoped to key ("" for none).
	Query(ctx context.Context, key string, q Query) (ResultSet, error)

	// Stats returns committed content statistics.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the backend. Idempotent.
	Close() error
}

// Options tunes backend construction.
type Options struct {
	// PageSize is the number of IDs fetched per cursor page (default: 1000).
	PageSize int

	// SQLiteCacheMB is the SQLite page cache in MB (default: 64).
	SQLiteCacheMB int

	// BadgerSyncWrites fsyncs every badger commit.
	BadgerSyncWrites bool

	// BadgerMemTableSize overrides badger's memtable size in bytes. One
	// badger transaction holds at most 15% of it. Zero keeps the default.
	BadgerMemTableSize int64
}

// DefaultOptions returns default backend options.
func DefaultOptions() Options {
	return Options{
		PageSize:      1000,
		SQLiteCacheMB: 64,
	}
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return 1000
	}
	return o.PageSize
}

// groupPairs groups pairs by key preserving first-seen key order.
func groupPairs(pairs []Pair) ([]string, map[string][]Value) {
	keys := make([]string, 0, len(pairs))
	grouped := make(map[string][]Value, len(pairs))
	for _, p := range pairs {
		if _, ok := grouped[p.Key]; !ok {
			keys = append(keys, p.Key)
		}
		grouped[p.Key] = append(grouped[p.Key], p.Value)
	}
	return keys, grouped
}

// sliceResult is a ResultSet over an already materialized ID list.
type sliceResult struct {
	ids      []int64
	pageSize int
	closed   bool
}

func newSliceResult(ids []int64, pageSize int) *sliceResult {
	return &sliceResult{ids: ids, pageSize: pageSize}
}

func (r *sliceResult) NextPage(_ context.Context) ([]int64, error) {
	if r.closed || len(r.ids) == 0 {
		return nil, nil
	}
	n := min(r.pageSize, len(r.ids))
	page := r.ids[:n]
	r.ids = r.ids[n:]
	return page, nil
}

func (r *sliceResult) Stable() bool { return true }

func (r *sliceResult) Done() bool { return r.closed || len(r.ids) == 0 }

func (r *sliceResult) Close() error {
	r.closed = true
	r.ids = nil
	return nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
