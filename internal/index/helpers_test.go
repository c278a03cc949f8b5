package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/batchidx/internal/store"
)

// backendFactories opens an in-memory variant of every backend.
var backendFactories = []store.BackendType{
	store.BackendMemory,
	store.BackendBleve,
	store.BackendSQLite,
	store.BackendBadger,
}

func newBackend(t *testing.T, bt store.BackendType, opts store.Options) store.Backend {
	t.Helper()
	b, err := store.NewBackend("", string(bt), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestIndex(t *testing.T, b store.Backend, opts ...Option) *Index {
	t.Helper()
	idx, err := New(append([]Option{WithBackend(b)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx *Index)) {
	for _, bt := range backendFactories {
		t.Run(string(bt), func(t *testing.T) {
			fn(t, newTestIndex(t, newBackend(t, bt, store.DefaultOptions())))
		})
	}
}

func getAll(t *testing.T, idx *Index, key string, value any) []int64 {
	t.Helper()
	hits, err := idx.Get(context.Background(), key, value)
	require.NoError(t, err)
	ids, err := hits.All()
	require.NoError(t, err)
	return ids
}

func flush(t *testing.T, idx *Index) {
	t.Helper()
	require.NoError(t, idx.Flush(context.Background()))
}

// faultyBackend fails the next `failures` commits with err, or "disk full".
type faultyBackend struct {
	store.Backend
	mu       sync.Mutex
	failures int
	commits  int
	err      error
}

func (f *faultyBackend) Commit(ctx context.Context, b *store.Batch) error {
	f.mu.Lock()
	f.commits++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		if f.err != nil {
			return f.err
		}
		return errors.New("disk full")
	}
	return f.Backend.Commit(ctx, b)
}

// countingBackend records backend reads and wraps results to count closes.
type countingBackend struct {
	store.Backend
	mu      sync.Mutex
	gets    int
	results []*countingResult
	batches []*store.Batch
}

func (c *countingBackend) Commit(ctx context.Context, b *store.Batch) error {
	c.mu.Lock()
	c.batches = append(c.batches, b)
	c.mu.Unlock()
	return c.Backend.Commit(ctx, b)
}

func (c *countingBackend) Get(ctx context.Context, key string, v store.Value) (store.ResultSet, error) {
	rs, err := c.Backend.Get(ctx, key, v)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r := &countingResult{ResultSet: rs}
	c.results = append(c.results, r)
	return r, nil
}

type countingResult struct {
	store.ResultSet
	closes int
}

func (r *countingResult) Close() error {
	r.closes++
	return r.ResultSet.Close()
}

// blockingBackend holds Commit until released.
type blockingBackend struct {
	store.Backend
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Commit(ctx context.Context, batch *store.Batch) error {
	close(b.entered)
	<-b.release
	return b.Backend.Commit(ctx, batch)
}
