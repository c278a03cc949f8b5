package cmd

import (
	"bytes"
	"strings"
	"testing"
)

// isolate points the user config at an empty directory and clears BATCHIDX_* vars.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{
		"BATCHIDX_DATA_DIR", "BATCHIDX_BACKEND", "BATCHIDX_PAGE_SIZE", "BATCHIDX_CACHE_SIZE",
		"BATCHIDX_FLUSH_MAX_RETRIES", "BATCHIDX_BADGER_SYNC_WRITES", "BATCHIDX_LOG_LEVEL", "BATCHIDX_LOG_FILE",
	} {
		t.Setenv(name, "")
	}
}

// cli runs the root command in dir with stdin and returns stdout and stderr.
func cli(t *testing.T, dir, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--dir", dir}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

// lines splits output into trimmed non-empty lines.
func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
