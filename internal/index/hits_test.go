package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/store"
)

// TS08: Close is idempotent and the backend result is released once
func TestHits_CloseIsIdempotent(t *testing.T) {
	cb := &countingBackend{Backend: newBackend(t, store.BackendMemory, store.DefaultOptions())}
	idx := newTestIndex(t, cb, WithCacheSize(0))
	require.NoError(t, idx.Add(1, Properties{"k": "v"}))
	require.NoError(t, idx.Add(2, Properties{"k": "v"}))
	flush(t, idx)

	// Given: a partially consumed cursor
	hits, err := idx.Get(context.Background(), "k", "v")
	require.NoError(t, err)
	require.True(t, hits.Next())

	// When: closed repeatedly
	require.NoError(t, hits.Close())
	require.NoError(t, hits.Close())

	// Then: the backend result was closed once and iteration stops
	require.Len(t, cb.results, 1)
	assert.Equal(t, 1, cb.results[0].closes)
	assert.False(t, hits.Next())
	assert.NoError(t, hits.Err())
}

func TestHits_ExhaustionCloses(t *testing.T) {
	cb := &countingBackend{Backend: newBackend(t, store.BackendMemory, store.DefaultOptions())}
	idx := newTestIndex(t, cb, WithCacheSize(0))
	require.NoError(t, idx.Add(1, Properties{"k": "v"}))
	flush(t, idx)

	hits, err := idx.Get(context.Background(), "k", "v")
	require.NoError(t, err)
	for hits.Next() {
	}
	require.NoError(t, hits.Err())

	// Then: exhaustion released the result, and a later Close is a no-op
	assert.Equal(t, 1, cb.results[0].closes)
	require.NoError(t, hits.Close())
	assert.Equal(t, 1, cb.results[0].closes)
}

func TestHits_EmptyResult(t *testing.T) {
	cb := &countingBackend{Backend: newBackend(t, store.BackendMemory, store.DefaultOptions())}
	idx := newTestIndex(t, cb, WithCacheSize(0))

	hits, err := idx.Get(context.Background(), "k", "v")
	require.NoError(t, err)
	assert.False(t, hits.Next())
	assert.Equal(t, 1, cb.results[0].closes)
}

func TestHits_Single(t *testing.T) {
	idx := newTestIndex(t, newBackend(t, store.BackendMemory, store.DefaultOptions()))
	require.NoError(t, idx.Add(1, Properties{"one": "x", "many": "y"}))
	require.NoError(t, idx.Add(2, Properties{"many": "y"}))
	flush(t, idx)

	hits, err := idx.Get(context.Background(), "none", "z")
	require.NoError(t, err)
	_, found, err := hits.Single()
	require.NoError(t, err)
	assert.False(t, found)

	hits, err = idx.Get(context.Background(), "many", "y")
	require.NoError(t, err)
	_, _, err = hits.Single()
	assert.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeInvalidQuery, amerrors.GetCode(err))
}

func TestHits_StaleCursorAfterFlush(t *testing.T) {
	// Given: a backend whose cursors are not snapshots, and a page size of one
	for _, bt := range []store.BackendType{store.BackendSQLite, store.BackendBleve} {
		t.Run(string(bt), func(t *testing.T) {
			idx := newTestIndex(t, newBackend(t, bt, store.Options{PageSize: 1}), WithCacheSize(0))
			require.NoError(t, idx.Add(1, Properties{"k": "v"}))
			require.NoError(t, idx.Add(2, Properties{"k": "v"}))
			require.NoError(t, idx.Add(3, Properties{"k": "v"}))
			flush(t, idx)

			hits, err := idx.Get(context.Background(), "k", "v")
			require.NoError(t, err)
			require.True(t, hits.Next())

			// When: a flush happens before the next page is read
			require.NoError(t, idx.Add(4, Properties{"k": "v"}))
			flush(t, idx)

			// Then: the cursor fails fast instead of mixing generations
			for hits.Next() {
			}
			assert.ErrorIs(t, hits.Err(), amerrors.ErrStaleCursor)
			assert.Equal(t, uint64(1), hits.Generation())
		})
	}
}

func TestHits_FirstPageHoldingEverythingSurvivesFlush(t *testing.T) {
	// Given: a non-snapshot backend whose first page already holds the whole result
	for _, bt := range []store.BackendType{store.BackendSQLite, store.BackendBleve} {
		t.Run(string(bt), func(t *testing.T) {
			idx := newTestIndex(t, newBackend(t, bt, store.DefaultOptions()), WithCacheSize(0))
			require.NoError(t, idx.Add(1, Properties{"k": "v"}))
			flush(t, idx)

			hits, err := idx.Get(context.Background(), "k", "v")
			require.NoError(t, err)

			// When: a flush happens before the cursor is drained
			require.NoError(t, idx.Add(2, Properties{"k": "v"}))
			flush(t, idx)

			// Then: the cursor ends cleanly with its own generation's hits
			ids, err := hits.All()
			require.NoError(t, err)
			assert.Equal(t, []int64{1}, ids)
		})
	}
}

func TestHits_SnapshotCursorSurvivesFlush(t *testing.T) {
	// Given: badger cursors read from a snapshot
	idx := newTestIndex(t, newBackend(t, store.BackendBadger, store.Options{PageSize: 1}), WithCacheSize(0))
	require.NoError(t, idx.Add(1, Properties{"k": "v"}))
	require.NoError(t, idx.Add(2, Properties{"k": "v"}))
	flush(t, idx)

	hits, err := idx.Get(context.Background(), "k", "v")
	require.NoError(t, err)
	require.True(t, hits.Next())
	first := hits.ID()

	// When: a flush commits a new match
	require.NoError(t, idx.Add(3, Properties{"k": "v"}))
	flush(t, idx)

	// Then: the cursor finishes its own generation
	rest, err := hits.All()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, append([]int64{first}, rest...))
}

func TestHits_DeduplicatesAcrossPages(t *testing.T) {
	// Given: one entity matched through several entries and a page size of one
	idx := newTestIndex(t, newBackend(t, store.BackendBleve, store.Options{PageSize: 1}))
	require.NoError(t, idx.Add(1, Properties{"k": "v"}))
	require.NoError(t, idx.Add(1, Properties{"k": "v"}))
	require.NoError(t, idx.Add(2, Properties{"k": "v"}))
	flush(t, idx)

	assert.ElementsMatch(t, []int64{1, 2}, getAll(t, idx, "k", "v"))
}
