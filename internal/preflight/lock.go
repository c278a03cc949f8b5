package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/batchidx/internal/provider"
	"github.com/Aman-CERP/batchidx/internal/store"
)

// CheckLock reports whether another process holds the data directory.
func (c *Checker) CheckLock(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "lock",
		Required: true,
	}

	fl := flock.New(filepath.Join(dataDir, provider.LockFileName))
	acquired, err := fl.TryLock()
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to probe lock: %v", err)
		return result
	}
	if !acquired {
		result.Status = StatusFail
		result.Message = "held by another process"
		result.Details = "Wait for the running load to finish"
		return result
	}
	_ = fl.Unlock()

	result.Status = StatusPass
	result.Message = "free"
	return result
}

// CheckIndexes looks for index directories with no recognizable backend,
// which are left behind by an interrupted first flush.
func (c *Checker) CheckIndexes(dataDir string) CheckResult {
	result := CheckResult{
		Name: "indexes",
	}

	var found, unknown int
	for _, kind := range []provider.Kind{provider.KindNode, provider.KindRelationship} {
		entries, err := os.ReadDir(filepath.Join(dataDir, string(kind)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			base := filepath.Join(dataDir, string(kind), e.Name())
			ext := filepath.Ext(e.Name())
			switch ext {
			case ".db", ".bleve", ".badger":
			default:
				continue
			}
			if store.DetectBackend(base[:len(base)-len(ext)]) == "" {
				unknown++
				if result.Details == "" {
					result.Details = "unrecognized: " + base
				}
				continue
			}
			found++
		}
	}

	switch {
	case unknown > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d index(es), %d unrecognized", found, unknown)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d index(es)", found)
	}
	return result
}
