package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/batchidx/configs"
	"github.com/Aman-CERP/batchidx/internal/config"
)

func TestConfigInit_CreatesProjectFile(t *testing.T) {
	// Given: an empty project directory
	isolate(t)
	dir := t.TempDir()

	// When: running config init
	out, _, err := cli(t, dir, "", "config", "init")
	require.NoError(t, err)

	// Then: .batchidx.yaml holds the template
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectFileName))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
	assert.Contains(t, out, "Created configuration")
}

func TestConfigInit_ExistingNeedsForce(t *testing.T) {
	// Given: a customised project config
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, config.ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: badger\n"), 0o644))

	// When: init without --force
	out, _, err := cli(t, dir, "", "config", "init")

	// Then: the file is untouched
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "index:\n  backend: badger\n", string(data))

	// When: init with --force
	out, _, err = cli(t, dir, "", "config", "init", "--force")
	require.NoError(t, err)

	// Then: the old file is backed up and replaced
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	old, _ := os.ReadFile(backups[0])
	assert.Equal(t, "index:\n  backend: badger\n", string(old))
}

func TestConfigInit_User(t *testing.T) {
	isolate(t)
	_, _, err := cli(t, t.TempDir(), "", "config", "init", "--user")
	require.NoError(t, err)

	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, configs.UserConfigTemplate, string(data))
}

func TestConfigShow_ReflectsProjectAndFlags(t *testing.T) {
	// Given: a project config choosing bleve
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte("index:\n  backend: bleve\n"), 0o644))
	dataDir := filepath.Join(t.TempDir(), "data")

	// When: showing the config as JSON with --data-dir
	out, _, err := cli(t, dir, "", "--data-dir", dataDir, "config", "show", "--json")
	require.NoError(t, err)

	// Then: both apply
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "bleve", cfg.Index.Backend)
	assert.Equal(t, dataDir, cfg.DataDir)

	// And: the YAML form prints too
	out, _, err = cli(t, dir, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: bleve")
}

func TestConfigPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	out, _, err := cli(t, dir, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, config.GetUserConfigPath())
	assert.Contains(t, out, filepath.Join(dir, config.ProjectFileName))
}

func TestRoot_InvalidConfigFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte("index:\n  backend: nosuch\n"), 0o644))

	_, _, err := cli(t, dir, "", "info")
	assert.Error(t, err)
}

func TestRoot_DebugWritesLogFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	_, _, err := cli(t, dir, people, "--debug", "load", "--index", "people", "--plain")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ".batchidx", "logs", "batchidx.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "load_completed")
}
