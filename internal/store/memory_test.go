package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"ali*", "alice", true},
		{"ali*", "bob", false},
		{"*ce", "alice", true},
		{"a?ice", "alice", true},
		{"a?ice", "aice", false},
		{"*", "", true},
		{"", "", true},
		{"", "x", false},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
		{`a\*`, "a*", true},
		{`a\*`, "ab", false},
		{"héllo*", "héllo wörld", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, wildcardMatch(tt.pattern, tt.s))
		})
	}
}

func TestSplitFieldPattern(t *testing.T) {
	field, pattern, err := splitFieldPattern("", "name:ali*")
	require.NoError(t, err)
	assert.Equal(t, "name", field)
	assert.Equal(t, "ali*", pattern)

	field, pattern, err = splitFieldPattern("name", "a:b")
	require.NoError(t, err)
	assert.Equal(t, "name", field)
	assert.Equal(t, "a:b", pattern)

	_, _, err = splitFieldPattern("", "nokey")
	assert.Error(t, err)
	_, _, err = splitFieldPattern("", ":x")
	assert.Error(t, err)
}

func TestMemoryBackend_StringQuery(t *testing.T) {
	// Given: committed names
	b := NewMemoryBackend(DefaultOptions())
	defer func() { _ = b.Close() }()
	commit(t, b, &Batch{Generation: 1, Entries: []Entry{
		entry(1, "name", "alice"),
		entry(2, "name", "alfred"),
		entry(3, "name", "bob"),
		entry(4, "nick", "alice"),
	}})

	// When: querying with a key scope
	rs, err := b.Query(context.Background(), "name", StringQuery{Text: "al*"})
	require.NoError(t, err)

	// Then: only that key is searched
	assert.Equal(t, []int64{1, 2}, drain(t, rs))

	// And: unscoped queries carry the key
	rs, err = b.Query(context.Background(), "", StringQuery{Text: "nick:al*"})
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, drain(t, rs))

	_, err = b.Query(context.Background(), "", StringQuery{Text: "al*"})
	assert.Error(t, err)
}

func TestMemoryBackend_MatchFunc(t *testing.T) {
	b := NewMemoryBackend(DefaultOptions())
	defer func() { _ = b.Close() }()
	commit(t, b, &Batch{Generation: 1, Entries: []Entry{
		entry(1, "name", "Alice", "city", "Oslo"),
		entry(2, "name", "bob", "city", "Bergen"),
	}})

	upper := MatchFunc(func(_ string, v Value) bool {
		return v.Kind() == KindString && strings.ToUpper(v.Str()[:1]) == v.Str()[:1]
	})

	// Without a key every property is considered
	rs, err := b.Query(context.Background(), "", StructuredQuery{Descriptor: upper})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, drain(t, rs))

	rs, err = b.Query(context.Background(), "name", StructuredQuery{Descriptor: upper})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, drain(t, rs))

	_, err = b.Query(context.Background(), "", StructuredQuery{Descriptor: 42})
	assert.Error(t, err)
}

func TestMemoryBackend_ClosedRejectsReads(t *testing.T) {
	b := NewMemoryBackend(DefaultOptions())
	require.NoError(t, b.Close())

	_, err := b.Get(context.Background(), "k", String("v"))
	assert.Error(t, err)
	_, err = b.Query(context.Background(), "k", StringQuery{Text: "*"})
	assert.Error(t, err)
}
