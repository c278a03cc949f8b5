package cmd

import (
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/store"
	"github.com/Aman-CERP/batchidx/internal/ui"
)

func loadPeople(t *testing.T, backend string) string {
	t.Helper()
	isolate(t)
	dir := t.TempDir()
	_, _, err := cli(t, dir, people, "load", "--index", "people", "--backend", backend)
	require.NoError(t, err)
	return dir
}

func TestGet_Single(t *testing.T) {
	dir := loadPeople(t, "sqlite")

	out, _, err := cli(t, dir, "", "get", "--index", "people", "name", "Grace", "--single")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, lines(out))

	// More than one hit is an error with --single
	_, _, err = cli(t, dir, "", "get", "--index", "people", "name", "Ada", "--single")
	require.NoError(t, err)
	_, _, err = cli(t, dir, `{"id": 9, "props": {"name": "Ada"}}`, "load", "--index", "people")
	require.NoError(t, err)
	_, _, err = cli(t, dir, "", "get", "--index", "people", "name", "Ada", "--single")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeInvalidQuery, amerrors.GetCode(err))
}

func TestGet_TypedValues(t *testing.T) {
	dir := loadPeople(t, "badger")

	// age is a number: the string "36" does not match it
	out, _, err := cli(t, dir, "", "get", "--index", "people", "age", "36", "--type", "string")
	require.NoError(t, err)
	assert.Empty(t, lines(out))

	out, _, err = cli(t, dir, "", "get", "--index", "people", "age", "36", "--type", "number")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, lines(out))

	_, _, err = cli(t, dir, "", "get", "--index", "people", "age", "x", "--type", "number")
	assert.Error(t, err)
}

func TestGet_LimitAndJSONCount(t *testing.T) {
	dir := loadPeople(t, "sqlite")

	out, _, err := cli(t, dir, "", "query", "--index", "people", "--key", "age", "--min", "0", "--limit", "2", "--json")
	require.NoError(t, err)

	var res hitsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.IDs, 2)
}

func TestQuery_WildcardOnKey(t *testing.T) {
	for _, backend := range []string{"badger", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			dir := loadPeople(t, backend)

			out, _, err := cli(t, dir, "", "query", "--index", "people", "--key", "name", "A*")
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "2"}, lines(out))
		})
	}
}

func TestQuery_SQLiteWhere(t *testing.T) {
	dir := loadPeople(t, "sqlite")

	out, _, err := cli(t, dir, "", "query", "--index", "people", "--where", "key = 'age' AND nval > 40")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, lines(out))
}

func TestBuildQuery(t *testing.T) {
	newCmd := func(args ...string) (*cobra.Command, queryOptions) {
		var opts queryOptions
		cmd := &cobra.Command{Use: "q"}
		cmd.Flags().StringVar(&opts.key, "key", "", "")
		cmd.Flags().Float64Var(&opts.min, "min", 0, "")
		cmd.Flags().Float64Var(&opts.max, "max", 0, "")
		cmd.Flags().StringVar(&opts.where, "where", "", "")
		require.NoError(t, cmd.ParseFlags(args))
		return cmd, opts
	}

	// Given: a half-open range
	cmd, opts := newCmd("--key", "age", "--min", "18")
	q, err := buildQuery(cmd, opts, nil)
	require.NoError(t, err)
	r := q.(store.StructuredQuery).Descriptor.(store.NumberRange)
	require.NotNil(t, r.Min)
	assert.Equal(t, 18.0, *r.Min)
	assert.Nil(t, r.Max)

	// Range without a key
	cmd, opts = newCmd("--max", "3")
	_, err = buildQuery(cmd, opts, nil)
	assert.Error(t, err)

	// Two forms at once
	cmd, opts = newCmd("--where", "1")
	_, err = buildQuery(cmd, opts, []string{"text"})
	assert.Error(t, err)

	// None
	cmd, opts = newCmd()
	_, err = buildQuery(cmd, opts, nil)
	assert.Error(t, err)

	// Text
	cmd, opts = newCmd()
	q, err = buildQuery(cmd, opts, []string{"name:A*"})
	require.NoError(t, err)
	assert.Equal(t, store.StringQuery{Text: "name:A*"}, q)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in, typ string
		want    any
	}{
		{"42", "auto", 42.0},
		{"-1.5", "auto", -1.5},
		{"true", "auto", true},
		{"Ada", "auto", "Ada"},
		{"42", "string", "42"},
		{"1", "bool", true},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in, tt.typ)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseValue("x", "date")
	assert.Error(t, err)
}

func TestInfo_ListsIndexes(t *testing.T) {
	// Given: a node index and a relationship index
	dir := loadPeople(t, "sqlite")
	_, _, err := cli(t, dir, `{"id": 100, "props": {"since": 1999}}`, "load", "--kind", "relationship", "--index", "knows", "--backend", "badger")
	require.NoError(t, err)

	// When: asking for info as JSON
	out, _, err := cli(t, dir, "", "info", "--json")
	require.NoError(t, err)

	// Then: both indexes are listed with their stats
	var infos []ui.IndexInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "node/people", infos[0].Index)
	assert.Equal(t, "sqlite", infos[0].Backend)
	assert.Equal(t, 3, infos[0].Entities)
	assert.Positive(t, infos[0].SizeBytes)
	assert.Equal(t, "relationship/knows", infos[1].Index)
	assert.Equal(t, "badger", infos[1].Backend)
	assert.Equal(t, 1, infos[1].Entries)

	// And: the table form names them too
	out, _, err = cli(t, dir, "", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "node/people")
	assert.Contains(t, out, "relationship/knows")
}
