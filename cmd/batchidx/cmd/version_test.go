package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/batchidx/pkg/version"
)

func TestVersionCmd_Outputs(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	out, _, err := cli(t, dir, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "batchidx "+version.Version)
	assert.Contains(t, out, "commit")

	out, _, err = cli(t, dir, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, _, err = cli(t, dir, "", "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}
