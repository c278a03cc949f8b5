package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPath_UnderDataDir(t *testing.T) {
	path := LogPath("/data/idx")
	assert.Equal(t, filepath.Join("/data/idx", "logs", "batchidx.log"), path)
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig("/data/idx")
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, LogPath("/data/idx"), cfg.FilePath)
	assert.True(t, cfg.WriteToStderr)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"Error", "ERROR"},
		{"verbose", "INFO"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, LevelFromString(tc.input).String())
		})
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file config in a directory that does not exist yet
	path := filepath.Join(t.TempDir(), "nested", "logs", "test.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When: logging an event
	logger.Debug("index_flush_completed", "generation", 3)
	cleanup()

	// Then: the file holds one JSON record with the attributes
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "index_flush_completed", rec["msg"])
	assert.Equal(t, float64(3), rec["generation"])
}

func TestSetup_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestSetup_StderrOnly(t *testing.T) {
	// Given: no file path
	logger, cleanup, err := Setup(Config{Level: "info"})

	// Then: a logger is returned and cleanup is safe to call
	require.NoError(t, err)
	require.NotNil(t, logger)
	cleanup()
}

func TestFindLogFile(t *testing.T) {
	dataDir := t.TempDir()

	_, err := FindLogFile("", dataDir)
	assert.Error(t, err)

	require.NoError(t, os.MkdirAll(LogDir(dataDir), 0o755))
	require.NoError(t, os.WriteFile(LogPath(dataDir), []byte("{}\n"), 0o644))

	found, err := FindLogFile("", dataDir)
	require.NoError(t, err)
	assert.Equal(t, LogPath(dataDir), found)

	_, err = FindLogFile(filepath.Join(dataDir, "missing.log"), dataDir)
	assert.Error(t, err)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer with a tiny size limit
	path := filepath.Join(t.TempDir(), "rot.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	w.maxSize = 100
	defer func() { _ = w.Close() }()

	// When: writing well past the limit
	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 10; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: rotated files exist and the current file is under the limit
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(100))
}

func TestRotatingWriter_MaxFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.maxSize = 10
	defer func() { _ = w.Close() }()

	for i := 0; i < 8; i++ {
		_, err := fmt.Fprintf(w, "record-%02d\n", i)
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only maxFiles rotated files are kept")

	// Newest rotated file holds the record before the current one
	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "record-06\n", string(data))
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	// Given: a writer shared by many goroutines
	path := filepath.Join(t.TempDir(), "conc.log")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)
	w.SetSyncEachWrite(false)

	// When: writing concurrently
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "g%d-%d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	// Then: every line arrives intact
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		assert.Regexp(t, `^g\d-\d+$`, scanner.Text())
		lines++
	}
	assert.Equal(t, 400, lines)
}
