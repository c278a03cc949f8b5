// Package preflight checks that a data directory can host indexes before a
// load starts: free disk space, write access, the open file limit, the
// directory lock, and whether every index on disk has a recognizable backend.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to load
//	}
package preflight
