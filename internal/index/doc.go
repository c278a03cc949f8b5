// Package index implements a batch-inserter index: a write buffer in front
// of a pluggable backend whose contents become visible to readers only at
// explicit flush points.
//
// Writes never touch the backend. Add appends an entry without looking at
// anything already indexed; UpdateOrAdd marks the entity for replacement,
// which costs a lookup and removal pass at the next flush. Prefer Add when the
// entity has no prior indexing.
//
// Reads (Get, Query, QueryKey) observe only the last completed flush:
//
//	idx, _ := index.New(index.WithBackend(backend))
//	_ = idx.Add(42, index.Properties{"name": "alice"})
//	_ = idx.Flush(ctx)
//	hits, _ := idx.Get(ctx, "name", "alice")
//	defer hits.Close()
//	for hits.Next() {
//		fmt.Println(hits.ID())
//	}
//
// A single goroutine is expected to drive Add, UpdateOrAdd and Flush.
// Reads may run concurrently with each other and with that writer.
package index
