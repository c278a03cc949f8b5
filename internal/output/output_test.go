package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each kind of status line
	w.Successf("Loaded %d records", 3)
	w.Warning("2 records rejected")
	w.Error("flush failed")
	w.Status("", "indented")

	// Then: each line carries its icon
	out := buf.String()
	assert.Contains(t, out, "✅ Loaded 3 records")
	assert.Contains(t, out, "⚠️  2 records rejected")
	assert.Contains(t, out, "❌ flush failed")
	assert.Contains(t, out, "   indented\n")
}

func TestWriter_Quiet_KeepsErrorsAndResults(t *testing.T) {
	// Given: a quiet writer
	buf := &bytes.Buffer{}
	w := New(buf)
	w.SetQuiet(true)

	// When: printing status, an error and results
	w.Success("hidden")
	w.Error("shown")
	w.IDs([]int64{3, -1})

	// Then: only the error and the IDs appear
	assert.Equal(t, "❌ shown\n3\n-1\n", buf.String())
}

func TestWriter_Fields_AlignsValues(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Fields("Index", "node/people", "Generation", "4")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "node/people"), strings.Index(lines[1], "4"))
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"entries": 2}))
	assert.JSONEq(t, `{"entries": 2}`, buf.String())
}

func TestWriter_Code_IndentsBlock(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("index:\n  backend: sqlite\n")

	assert.Equal(t, "\n  index:\n    backend: sqlite\n\n", buf.String())
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Newline()
	assert.Equal(t, "\n", buf.String())
}
