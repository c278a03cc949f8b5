package index

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/store"
)

// maxCachedHits bounds the result size worth keeping in the exact-match cache.
const maxCachedHits = 256

// Hits is a lazy, forward-only cursor over distinct entity IDs.
//
// Iterate with Next and ID, then check Err. Close releases backend resources;
// it is idempotent and runs automatically once the cursor is exhausted.
// Hits is not safe for concurrent use.
type Hits struct {
	ctx        context.Context
	rs         store.ResultSet
	gate       *gate
	generation uint64
	backend    string

	page []int64
	pos  int
	seen *roaring64.Bitmap
	cur  int64
	err  error

	exhausted bool
	closed    bool

	// collected holds every distinct ID while the result may still be cached.
	collected  []int64
	onComplete func([]int64)
}

// newHits wraps rs and fetches its first page. The caller holds the gate's
// read side for generation.
func newHits(ctx context.Context, rs store.ResultSet, g *gate, generation uint64, backend string) (*Hits, error) {
	h := &Hits{
		ctx:        ctx,
		rs:         rs,
		gate:       g,
		generation: generation,
		backend:    backend,
		seen:       roaring64.New(),
	}
	if err := h.fetch(); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

// cachedHits replays a materialized result.
func cachedHits(ids []int64, generation uint64) *Hits {
	return &Hits{
		ctx:        context.Background(),
		generation: generation,
		page:       ids,
		seen:       roaring64.New(),
		exhausted:  true,
	}
}

// fetch loads the next backend page. An empty page, or a result set that
// reports it has nothing more, exhausts the cursor.
func (h *Hits) fetch() error {
	page, err := h.rs.NextPage(h.ctx)
	if err != nil {
		return amerrors.QueryBackendError(h.backend, err)
	}
	h.page = page
	h.pos = 0
	if len(page) == 0 || h.rs.Done() {
		h.exhausted = true
	}
	return nil
}

// nextPage fetches a later page under the gate. A result set that is not
// snapshot-stable cannot continue past a flush.
func (h *Hits) nextPage() error {
	if h.rs.Stable() {
		return h.fetch()
	}

	current, release := h.gate.enter()
	defer release()

	if current != h.generation {
		return amerrors.StaleCursorError(h.generation, current)
	}
	return h.fetch()
}

// Next advances to the next distinct ID. It returns false when the cursor is
// exhausted, closed or failed; check Err to tell them apart.
func (h *Hits) Next() bool {
	if h.closed || h.err != nil {
		return false
	}
	for {
		for h.pos < len(h.page) {
			id := h.page[h.pos]
			h.pos++
			if h.seen.Contains(uint64(id)) {
				continue
			}
			h.seen.Add(uint64(id))
			h.cur = id
			if h.onComplete != nil {
				if len(h.collected) < maxCachedHits {
					h.collected = append(h.collected, id)
				} else {
					h.onComplete = nil
					h.collected = nil
				}
			}
			return true
		}
		if h.exhausted {
			if h.onComplete != nil {
				h.onComplete(h.collected)
				h.onComplete = nil
			}
			_ = h.Close()
			return false
		}
		if err := h.nextPage(); err != nil {
			h.err = err
			_ = h.Close()
			return false
		}
	}
}

// ID returns the entity ID at the cursor.
func (h *Hits) ID() int64 { return h.cur }

// Err returns the error that stopped iteration, if any.
func (h *Hits) Err() error { return h.err }

// Generation returns the flush generation the cursor reads from.
func (h *Hits) Generation() uint64 { return h.generation }

// Close releases the backend result set. Safe to call more than once.
func (h *Hits) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.page = nil
	if h.rs == nil {
		return nil
	}
	if err := h.rs.Close(); err != nil {
		return amerrors.QueryBackendError(h.backend, err)
	}
	return nil
}

// All drains the cursor and closes it.
func (h *Hits) All() ([]int64, error) {
	defer func() { _ = h.Close() }()

	var ids []int64
	for h.Next() {
		ids = append(ids, h.ID())
	}
	return ids, h.Err()
}

// Single returns the only hit. found is false when there are none; more
// than one hit is an error. The cursor is closed.
func (h *Hits) Single() (id int64, found bool, err error) {
	defer func() { _ = h.Close() }()

	if !h.Next() {
		return 0, false, h.Err()
	}
	id = h.ID()
	if h.Next() {
		return 0, false, amerrors.New(amerrors.ErrCodeInvalidQuery,
			fmt.Sprintf("expected a single hit, found %d and %d", id, h.ID()), nil)
	}
	if err := h.Err(); err != nil {
		return 0, false, err
	}
	return id, true, nil
}
