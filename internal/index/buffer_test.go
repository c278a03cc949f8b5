package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/batchidx/internal/store"
)

func pairs(kv ...string) []store.Pair {
	var out []store.Pair
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, store.Pair{Key: kv[i], Value: store.String(kv[i+1])})
	}
	return out
}

func TestBuffer_SnapshotTracksLastReplace(t *testing.T) {
	b := newBuffer()
	b.append(1, pairs("k", "a"), OpAdd)
	b.append(1, pairs("k", "b"), OpReplace)
	b.append(2, pairs("k", "c"), OpAdd)
	b.append(1, pairs("k", "d"), OpReplace)

	entries, lastReplace := b.snapshot()
	assert.Len(t, entries, 4)
	assert.Equal(t, map[int64]int{1: 3}, lastReplace)
}

func TestBuffer_DiscardKeepsLaterWrites(t *testing.T) {
	// Given: a snapshot taken before more writes arrive
	b := newBuffer()
	b.append(1, pairs("k", "a"), OpReplace)
	entries, _ := b.snapshot()
	b.append(2, pairs("k", "b"), OpAdd)
	b.append(3, pairs("k", "c"), OpReplace)

	// When: the snapshot is discarded
	b.discard(len(entries))

	// Then: later writes remain with re-based replace positions
	rest, lastReplace := b.snapshot()
	require.Len(t, rest, 2)
	assert.Equal(t, int64(2), rest[0].entity)
	assert.Equal(t, map[int64]int{3: 1}, lastReplace)
	assert.Equal(t, 2, b.len())

	b.discard(10)
	assert.Zero(t, b.len())
}

func TestAdapter_Resolve(t *testing.T) {
	a := &adapter{}
	b := newBuffer()
	b.append(1, pairs("k", "a"), OpAdd)
	b.append(2, pairs("k", "x"), OpAdd)
	b.append(1, pairs("k", "b"), OpReplace)
	b.append(1, pairs("k", "c"), OpAdd)
	b.append(3, nil, OpReplace)
	b.append(2, pairs("k", "y"), OpAdd)

	entries, lastReplace := b.snapshot()
	batch := a.resolve(7, entries, lastReplace)

	assert.Equal(t, uint64(7), batch.Generation)
	assert.Equal(t, []int64{1, 3}, batch.Deletes)

	var got []string
	for _, e := range batch.Entries {
		got = append(got, e.Pairs[0].Value.Str())
	}
	assert.Equal(t, []string{"x", "b", "c", "y"}, got)
	assert.Equal(t, 4, batch.PairCount())
}

func TestNormalize(t *testing.T) {
	got, err := normalize(Properties{"b": []int{1, 2}, "a": "x"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "b", got[1].Key)
	assert.True(t, store.Number(2).Equal(got[2].Value))

	got, err = normalize(Properties{"a": []string{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "add", OpAdd.String())
	assert.Equal(t, "replace", OpReplace.String())
}
