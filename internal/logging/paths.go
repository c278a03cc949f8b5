package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the log file kept in the data directory.
const LogFileName = "batchidx.log"

// LogDir returns the log directory of a data directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the log file of a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), LogFileName)
}

// FindLogFile resolves the log file to read. An explicit path wins over the
// data directory default. Returns an error if the file does not exist.
func FindLogFile(explicit, dataDir string) (string, error) {
	path := explicit
	if path == "" {
		path = LogPath(dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no log file at %s; run with --debug to create one", path)
		}
		return "", fmt.Errorf("failed to stat log file: %w", err)
	}
	return path, nil
}
