package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BackendType names an index backend implementation.
type BackendType string

const (
	// BackendMemory keeps everything in process memory (roaring bitmaps).
	// Nothing survives Close; meant for tests and throwaway loads.
	BackendMemory BackendType = "memory"

	// BackendBleve uses Bleve v2. Supports the bleve query string syntax.
	BackendBleve BackendType = "bleve"

	// BackendSQLite uses SQLite with an FTS5 shadow table (default).
	BackendSQLite BackendType = "sqlite"

	// BackendBadger uses BadgerDB posting keys with ordered value encoding.
	BackendBadger BackendType = "badger"
)

// BackendTypes lists every supported backend.
var BackendTypes = []BackendType{BackendMemory, BackendBleve, BackendSQLite, BackendBadger}

// ParseBackendType validates a backend name. Empty selects SQLite.
func ParseBackendType(name string) (BackendType, error) {
	switch BackendType(name) {
	case "":
		return BackendSQLite, nil
	case BackendMemory, BackendBleve, BackendSQLite, BackendBadger:
		return BackendType(name), nil
	default:
		return "", fmt.Errorf("unknown index backend: %s (valid options: memory, bleve, sqlite, badger)", name)
	}
}

// NewBackend creates a Backend of the given type.
// The basePath should be the index path without extension; the extension is
// added based on the backend type (.db for SQLite, .bleve for Bleve, .badger
// for Badger). If basePath is empty, an in-memory variant is created.
func NewBackend(basePath string, backend string, opts Options) (Backend, error) {
	bt, err := ParseBackendType(backend)
	if err != nil {
		return nil, err
	}

	path := BackendPath(basePath, bt)
	switch bt {
	case BackendMemory:
		return NewMemoryBackend(opts), nil
	case BackendBleve:
		return NewBleveBackend(path, opts)
	case BackendBadger:
		return NewBadgerBackend(path, opts)
	default:
		return NewSQLiteBackend(path, opts)
	}
}

// BackendPath returns the on-disk location of an index for a backend type.
// Returns "" for in-memory indexes.
func BackendPath(basePath string, bt BackendType) string {
	if basePath == "" {
		return ""
	}
	switch bt {
	case BackendBleve:
		return basePath + ".bleve"
	case BackendBadger:
		return basePath + ".badger"
	case BackendSQLite:
		return basePath + ".db"
	default:
		return ""
	}
}

// DetectBackend detects which backend an existing index uses based on file existence.
// Returns an empty string if no index exists at basePath.
func DetectBackend(basePath string) BackendType {
	if basePath == "" {
		return ""
	}
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	if dirExists(basePath + ".badger") {
		return BackendBadger
	}
	return ""
}

// SizeOnDisk returns the number of bytes an index occupies.
func SizeOnDisk(basePath string, bt BackendType) int64 {
	path := BackendPath(basePath, bt)
	if path == "" {
		return 0
	}
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if bt == BackendSQLite {
		for _, suffix := range []string{"-wal", "-shm"} {
			if info, err := os.Stat(path + suffix); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
