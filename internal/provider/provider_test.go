package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/index"
	"github.com/Aman-CERP/batchidx/internal/store"
)

func testOptions(dir, backend string) Options {
	opts := DefaultOptions()
	opts.DataDir = dir
	opts.Backend = backend
	opts.Retry.InitialDelay = time.Millisecond
	return opts
}

func getAll(t *testing.T, idx *index.Index, key string, value any) []int64 {
	t.Helper()
	hits, err := idx.Get(context.Background(), key, value)
	require.NoError(t, err)
	ids, err := hits.All()
	require.NoError(t, err)
	return ids
}

func TestProvider_NodeAndRelationshipNamespaces(t *testing.T) {
	// Given: an in-memory provider
	p, err := Open(testOptions("", "memory"))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	// When: opening a node and a relationship index with the same name
	nodes, err := p.NodeIndex("people")
	require.NoError(t, err)
	rels, err := p.RelationshipIndex("people")
	require.NoError(t, err)

	// Then: they are distinct indexes
	require.NoError(t, nodes.Add(1, index.Properties{"k": "v"}))
	require.NoError(t, nodes.Flush(context.Background()))
	assert.Equal(t, []int64{1}, getAll(t, nodes, "k", "v"))
	assert.Empty(t, getAll(t, rels, "k", "v"))

	// And: asking again returns the same instance
	again, err := p.NodeIndex("people")
	require.NoError(t, err)
	assert.Same(t, nodes, again)

	assert.Equal(t, []Ref{{KindNode, "people"}, {KindRelationship, "people"}}, p.Opened())
	assert.Equal(t, "node/people", nodes.Name())
}

func TestProvider_InvalidNames(t *testing.T) {
	p, err := Open(testOptions("", "memory"))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	for _, name := range []string{"", "a/b", `a\b`, "..", ".hidden"} {
		_, err := p.NodeIndex(name)
		assert.Error(t, err, name)
	}
	_, err = p.Index(Kind("edge"), "x")
	assert.Error(t, err)
}

func TestProvider_LockIsExclusive(t *testing.T) {
	// Given: a provider holding a data directory
	dir := t.TempDir()
	p, err := Open(testOptions(dir, "sqlite"))
	require.NoError(t, err)

	// When: a second provider opens the same directory
	_, err = Open(testOptions(dir, "sqlite"))

	// Then: it is refused
	require.ErrorIs(t, err, amerrors.ErrIndexLocked)

	// And: the directory is free again after shutdown
	require.NoError(t, p.Shutdown(context.Background()))
	p2, err := Open(testOptions(dir, "sqlite"))
	require.NoError(t, err)
	require.NoError(t, p2.Shutdown(context.Background()))
}

func TestProvider_ShutdownFlushesAndPersists(t *testing.T) {
	for _, bt := range []store.BackendType{store.BackendSQLite, store.BackendBleve, store.BackendBadger} {
		t.Run(string(bt), func(t *testing.T) {
			// Given: unflushed entries in two indexes
			dir := t.TempDir()
			p, err := Open(testOptions(dir, string(bt)))
			require.NoError(t, err)
			nodes, err := p.NodeIndex("people")
			require.NoError(t, err)
			rels, err := p.RelationshipIndex("knows")
			require.NoError(t, err)
			require.NoError(t, nodes.Add(1, index.Properties{"name": "alice"}))
			require.NoError(t, rels.Add(10, index.Properties{"since": 2020}))

			// When: the provider shuts down
			require.NoError(t, p.Shutdown(context.Background()))
			require.NoError(t, p.Shutdown(context.Background()))

			// Then: writes on the old handles fail
			assert.ErrorIs(t, nodes.Add(2, index.Properties{"name": "bob"}), amerrors.ErrIndexClosed)
			_, err = p.NodeIndex("people")
			assert.ErrorIs(t, err, amerrors.ErrIndexClosed)

			// And: a new provider finds everything, with the original backend
			p2, err := Open(testOptions(dir, "memory"))
			require.NoError(t, err)
			defer func() { _ = p2.Shutdown(context.Background()) }()

			nodes, err = p2.NodeIndex("people")
			require.NoError(t, err)
			assert.Equal(t, string(bt), nodes.Backend())
			assert.Equal(t, []int64{1}, getAll(t, nodes, "name", "alice"))

			rels, err = p2.RelationshipIndex("knows")
			require.NoError(t, err)
			assert.Equal(t, []int64{10}, getAll(t, rels, "since", 2020))

			existing, err := p2.Existing()
			require.NoError(t, err)
			assert.Equal(t, []Ref{{KindNode, "people"}, {KindRelationship, "knows"}}, existing)
		})
	}
}

func TestProvider_FlushAll(t *testing.T) {
	p, err := Open(testOptions("", "memory"))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	a, err := p.NodeIndex("a")
	require.NoError(t, err)
	b, err := p.NodeIndex("b")
	require.NoError(t, err)
	require.NoError(t, a.Add(1, index.Properties{"k": "v"}))
	require.NoError(t, b.Add(2, index.Properties{"k": "v"}))

	require.NoError(t, p.FlushAll(context.Background()))

	assert.Equal(t, []int64{1}, getAll(t, a, "k", "v"))
	assert.Equal(t, []int64{2}, getAll(t, b, "k", "v"))
}

func TestProvider_ExistingIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node", "notes.txt"), []byte("x"), 0o644))

	p, err := Open(testOptions(dir, "sqlite"))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	refs, err := p.Existing()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("node")
	require.NoError(t, err)
	assert.Equal(t, KindNode, k)

	_, err = ParseKind("edge")
	assert.Error(t, err)
}
