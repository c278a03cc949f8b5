package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Reading", StageReading.String())
	assert.Equal(t, "FLUSH", StageFlushing.Tag())
	assert.Equal(t, "DONE", StageComplete.Tag())
	assert.Equal(t, "Unknown", Stage(42).String())
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: a buffer, which is never a terminal
	cfg := NewConfig(&bytes.Buffer{})

	// When: choosing a renderer
	r := NewRenderer(cfg)

	// Then: the plain renderer is used
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	_, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestPlainRenderer_Lines(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(t.Context()))

	// When: reporting reading, a rejected line, a flush and completion
	r.UpdateProgress(ProgressEvent{Stage: StageReading, Records: 10, Bytes: 50, TotalBytes: 100})
	r.UpdateProgress(ProgressEvent{Stage: StageReading, Records: 11})
	r.AddError(ErrorEvent{Line: 7, Err: errors.New("bad json")})
	r.UpdateProgress(ProgressEvent{Stage: StageFlushing, Records: 20, Message: "committing"})
	r.Complete(Summary{Index: "node/people", Backend: "sqlite", Records: 20, Rejected: 1, Generation: 2})
	require.NoError(t, r.Stop())

	// Then: throttled reading updates are dropped and stage changes print
	out := buf.String()
	assert.Contains(t, out, "[READ] 10 records (50%)")
	assert.NotContains(t, out, "11 records")
	assert.Contains(t, out, "WARN: line 7: bad json")
	assert.Contains(t, out, "[FLUSH] 20 records - committing")
	assert.Contains(t, out, "Complete: 20 records into node/people (sqlite)")
	assert.Contains(t, out, "generation 2 (1 rejected)")
}

func TestTracker_CountsFlushesAndRate(t *testing.T) {
	// Given: a tracker on a fake clock
	now := time.Unix(0, 0)
	tr := newTrackerAt(func() time.Time { return now })

	// When: reading 100 records in one second, then flushing twice
	now = now.Add(time.Second)
	tr.Update(ProgressEvent{Stage: StageReading, Records: 100, Bytes: 30, TotalBytes: 60})
	tr.Update(ProgressEvent{Stage: StageFlushing, Records: 100})
	tr.Update(ProgressEvent{Stage: StageFlushing, Records: 100})
	tr.Update(ProgressEvent{Stage: StageReading, Records: 150})
	tr.Update(ProgressEvent{Stage: StageFlushing, Records: 150, Bytes: 60, TotalBytes: 60})
	tr.Reject()

	// Then: the snapshot reflects the activity
	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.Flushes)
	assert.Equal(t, 1, snap.Rejected)
	assert.InDelta(t, 100.0, snap.Rate, 0.001)
	assert.InDelta(t, 1.0, snap.Fraction, 0.001)
	assert.Equal(t, time.Second, snap.Elapsed)
}

func TestLoadModel_View(t *testing.T) {
	tr := NewTracker()
	tr.Update(ProgressEvent{Stage: StageReading, Records: 42, Generation: 3})
	m := newLoadModel(tr, "load people", NoColorStyles())

	view := m.View()
	assert.Contains(t, view, "load people")
	assert.Contains(t, view, "42 records")
	assert.Contains(t, view, "generation 3")

	_, _ = m.Update(completeMsg(Summary{Index: "node/people", Backend: "bleve", Records: 42, Duration: 1500 * time.Millisecond}))
	view = m.View()
	assert.Contains(t, view, "Load complete")
	assert.Contains(t, view, "node/people (bleve)")
}

func TestStatusRenderer_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render("/data", []IndexInfo{
		{Index: "node/people", Backend: "sqlite", Entries: 12, Entities: 10, SizeBytes: 2048},
		{Index: "relationship/knows", Backend: "badger", Entries: 3, Entities: 3, SizeBytes: 10},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Indexes in /data")
	assert.Contains(t, lines[1], "INDEX")
	assert.Contains(t, lines[2], "2.0 KiB")
	assert.Contains(t, lines[3], "relationship/knows")
}

func TestStatusRenderer_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewStatusRenderer(buf, true).Render("/data", nil))
	assert.Contains(t, buf.String(), "(none)")
}

func TestStatusRenderer_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON([]IndexInfo{{Index: "node/a", Backend: "memory", Entries: 1}}))

	var got []IndexInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "node/a", got[0].Index)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}
