package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/batchidx/internal/store"
)

// adapter turns a generation of pending entries into one backend commit.
type adapter struct {
	backend store.Backend
	name    string
}

// resolve builds the batch for a snapshot of the buffer.
//
// Every entity with a replace is listed in Deletes; its entries before the
// last replace are dropped. Everything else keeps call order. Entries with
// no pairs carry nothing to index and are left out.
func (a *adapter) resolve(generation uint64, entries []pendingEntry, lastReplace map[int64]int) *store.Batch {
	batch := &store.Batch{
		Generation: generation,
		Deletes:    make([]int64, 0, len(lastReplace)),
		Entries:    make([]store.Entry, 0, len(entries)),
	}
	for pos, e := range entries {
		last, replaced := lastReplace[e.entity]
		if replaced && pos == last {
			batch.Deletes = append(batch.Deletes, e.entity)
		}
		if replaced && pos < last {
			continue
		}
		if len(e.pairs) == 0 {
			continue
		}
		batch.Entries = append(batch.Entries, store.Entry{Entity: e.entity, Pairs: e.pairs})
	}
	return batch
}

// commit applies the batch in a single backend commit.
func (a *adapter) commit(ctx context.Context, batch *store.Batch, pending int) error {
	start := time.Now()
	slog.Debug("index_flush_started",
		slog.String("index", a.name),
		slog.Uint64("generation", batch.Generation),
		slog.Int("pending", pending),
		slog.Int("deletes", len(batch.Deletes)),
		slog.Int("entries", len(batch.Entries)))

	if err := a.backend.Commit(ctx, batch); err != nil {
		slog.Error("index_flush_failed",
			slog.String("index", a.name),
			slog.String("backend", a.backend.Name()),
			slog.Uint64("generation", batch.Generation),
			slog.String("error", err.Error()))
		return err
	}

	slog.Info("index_flush_completed",
		slog.String("index", a.name),
		slog.String("backend", a.backend.Name()),
		slog.Uint64("generation", batch.Generation),
		slog.Int("pairs", batch.PairCount()),
		slog.Duration("duration", time.Since(start)))
	return nil
}
