package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
)

const people = `{"id": 1, "props": {"name": "Ada", "age": 36, "tags": ["math", "code"]}}
{"id": 2, "props": {"name": "Alan", "age": 41}}

{"id": 3, "props": {"name": "Grace", "age": 85, "admiral": true}}
`

func TestLoad_ThenGetAndQuery(t *testing.T) {
	for _, backend := range []string{"sqlite", "bleve", "badger"} {
		t.Run(backend, func(t *testing.T) {
			// Given: people loaded into a fresh data directory
			isolate(t)
			dir := t.TempDir()
			_, stderr, err := cli(t, dir, people, "load", "--index", "people", "--backend", backend, "--flush-every", "2")
			require.NoError(t, err)
			assert.Contains(t, stderr, "Complete: 3 records into node/people ("+backend+")")

			// When/Then: exact matches find the right entities
			out, _, err := cli(t, dir, "", "get", "--index", "people", "name", "Ada")
			require.NoError(t, err)
			assert.Equal(t, []string{"1"}, lines(out))

			out, _, err = cli(t, dir, "", "get", "--index", "people", "tags", "code")
			require.NoError(t, err)
			assert.Equal(t, []string{"1"}, lines(out))

			out, _, err = cli(t, dir, "", "get", "--index", "people", "admiral", "true")
			require.NoError(t, err)
			assert.Equal(t, []string{"3"}, lines(out))

			// And: a numeric range query on age
			out, _, err = cli(t, dir, "", "query", "--index", "people", "--key", "age", "--min", "40", "--max", "90")
			require.NoError(t, err)
			assert.Equal(t, []string{"2", "3"}, lines(out))
		})
	}
}

func TestLoad_ReplaceDiscardsEarlierProperties(t *testing.T) {
	// Given: an entity loaded and then replaced in a later load
	isolate(t)
	dir := t.TempDir()
	_, _, err := cli(t, dir, `{"id": 7, "props": {"color": "red"}}`, "load", "--index", "cars")
	require.NoError(t, err)
	_, _, err = cli(t, dir, `{"id": 7, "props": {"color": "blue"}, "replace": true}`, "load", "--index", "cars")
	require.NoError(t, err)

	// Then: only the replacement matches
	out, _, err := cli(t, dir, "", "get", "--index", "cars", "color", "red")
	require.NoError(t, err)
	assert.Empty(t, lines(out))

	out, _, err = cli(t, dir, "", "get", "--index", "cars", "color", "blue", "--json")
	require.NoError(t, err)
	var res hitsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int64{7}, res.IDs)
	assert.Equal(t, "node/cars", res.Index)
}

func TestLoad_RejectsInvalidRecords(t *testing.T) {
	// Given: input with a malformed line, a missing id and a nested array
	isolate(t)
	dir := t.TempDir()
	input := `{"id": 1, "props": {"k": "v"}}
not json
{"props": {"k": "v"}}
{"id": 2, "props": {"k": [["x"]]}}
{"id": 3, "props": {"k": "v"}}
`
	// When: loading without --strict
	_, stderr, err := cli(t, dir, input, "load", "--index", "things", "--kind", "relationship")

	// Then: valid records load and the others are reported by line
	require.NoError(t, err)
	assert.Contains(t, stderr, "WARN: line 2")
	assert.Contains(t, stderr, "WARN: line 3")
	assert.Contains(t, stderr, "WARN: line 4")
	assert.Contains(t, stderr, "(3 rejected)")

	out, _, err := cli(t, dir, "", "get", "--kind", "relationship", "--index", "things", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, lines(out))
}

func TestLoad_StrictFailsAndKeepsEarlierFlushes(t *testing.T) {
	// Given: strict mode with a bad third record after a flush every record
	isolate(t)
	dir := t.TempDir()
	input := `{"id": 1, "props": {"k": "v"}}
{"id": 2, "props": {"k": "v"}}
{"id": 3, "props": {"k": null}}
`
	// When: loading
	_, _, err := cli(t, dir, input, "load", "--index", "s", "--strict", "--flush-every", "1")

	// Then: the load fails with an input error
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	// And: records before the failure were committed
	out, _, err := cli(t, dir, "", "get", "--index", "s", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, lines(out))
}

func TestLoad_FromFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "people.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(people), 0o644))

	_, stderr, err := cli(t, dir, "", "load", "--index", "people", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Complete: 3 records")

	_, _, err = cli(t, dir, "", "load", "--index", "people", filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
}

func TestLoad_RequiresIndexFlag(t *testing.T) {
	isolate(t)
	_, _, err := cli(t, t.TempDir(), "", "load")
	assert.Error(t, err)
}

func TestDecodeRecord(t *testing.T) {
	id, props, replace, err := decodeRecord([]byte(`{"id": -5, "props": {"n": 1.5, "i": 9007199254740992, "b": false, "a": [1, "x"]}, "replace": true}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), id)
	assert.True(t, replace)
	assert.Equal(t, 1.5, props["n"])
	assert.Equal(t, int64(9007199254740992), props["i"])
	assert.Equal(t, false, props["b"])
	assert.Equal(t, []any{int64(1), "x"}, props["a"])

	_, _, _, err = decodeRecord([]byte(`{"id": 1, "props": {"o": {"x": 1}}}`))
	assert.Error(t, err)

	_, _, _, err = decodeRecord([]byte(`{"id": 1, "extra": true}`))
	assert.Error(t, err, "unknown fields are rejected")
}
