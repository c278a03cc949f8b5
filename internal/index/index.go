package index

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/store"
	"github.com/Aman-CERP/batchidx/internal/telemetry"
)

// ErrNilBackend is returned when creating an Index without a backend.
var ErrNilBackend = errors.New("index backend is required")

// DefaultCacheSize is the default number of exact-match results kept per index.
const DefaultCacheSize = 1024

// Index is a batch-inserter index over a store.Backend.
//
// Add and UpdateOrAdd buffer entries; Flush commits them to the backend in
// one batch and advances the generation. Get and Query read the backend as
// of the last completed flush.
type Index struct {
	name    string
	backend store.Backend
	adapter *adapter
	buf     *buffer
	gate    gate

	cacheSize   int
	cache       *lru.Cache[cacheKey, []int64]
	validateKey func(string) error
	metrics     *telemetry.Recorder

	closed atomic.Bool
}

// cacheKey identifies an exact-match result within one generation.
type cacheKey struct {
	generation uint64
	key        string
	value      string
}

// Option configures an Index.
type Option func(*Index)

// WithBackend sets the index backend. Required.
func WithBackend(b store.Backend) Option {
	return func(i *Index) {
		i.backend = b
	}
}

// WithName sets the index name used in logs and stats.
func WithName(name string) Option {
	return func(i *Index) {
		i.name = name
	}
}

// WithCacheSize sets the exact-match cache size. Zero or less disables the cache.
func WithCacheSize(n int) Option {
	return func(i *Index) {
		i.cacheSize = n
	}
}

// New creates an Index.
//
//	idx, err := index.New(index.WithBackend(store.NewMemoryBackend(store.DefaultOptions())))
//
// Returns ErrNilBackend if no backend is provided.
func New(opts ...Option) (*Index, error) {
	i := &Index{
		name:      "default",
		cacheSize: DefaultCacheSize,
		buf:       newBuffer(),
		metrics:   telemetry.NewRecorder(telemetry.DefaultRecentEvents),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.backend == nil {
		return nil, ErrNilBackend
	}
	i.adapter = &adapter{backend: i.backend, name: i.name}
	if kv, ok := i.backend.(keyValidator); ok {
		i.validateKey = kv.ValidateKey
	}
	if i.cacheSize > 0 {
		cache, err := lru.New[cacheKey, []int64](i.cacheSize)
		if err != nil {
			return nil, err
		}
		i.cache = cache
	}
	return i, nil
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Backend returns the backend name.
func (i *Index) Backend() string { return i.backend.Name() }

// Add buffers properties for entity. Existing entries, buffered or
// committed, are left as they are; adding the same pair twice is allowed.
// Nothing is visible to reads before the next Flush.
func (i *Index) Add(entity int64, props Properties) error {
	return i.write(entity, props, OpAdd, "add")
}

// UpdateOrAdd buffers properties for entity and, at the next Flush, removes
// every earlier entry of entity (committed or buffered) before applying them.
// This costs a lookup and removal pass; use Add for entities with no prior
// entries.
func (i *Index) UpdateOrAdd(entity int64, props Properties) error {
	return i.write(entity, props, OpReplace, "update_or_add")
}

func (i *Index) write(entity int64, props Properties, op OpKind, name string) error {
	if i.closed.Load() {
		return amerrors.ClosedIndexError(name)
	}
	pairs, err := normalize(props, i.validateKey)
	if err != nil {
		return err
	}
	i.buf.append(entity, pairs, op)
	return nil
}

// Flush commits every entry buffered before the call in one backend batch
// and advances the generation. It waits for in-flight reads and blocks new
// ones until done. With nothing buffered it does nothing.
//
// On failure nothing of the batch is visible, the buffered entries are kept
// and Flush can be retried.
func (i *Index) Flush(ctx context.Context) error {
	i.gate.lock()
	defer i.gate.unlock()

	if i.closed.Load() {
		return amerrors.ClosedIndexError("flush")
	}

	entries, lastReplace := i.buf.snapshot()
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	gen := i.gate.current() + 1
	batch := i.adapter.resolve(gen, entries, lastReplace)
	err := i.adapter.commit(ctx, batch, len(entries))
	i.metrics.Record(telemetry.Event{
		Op:      telemetry.OpFlush,
		Latency: time.Since(start),
		Failed:  err != nil,
		Items:   len(entries),
	})
	if err != nil {
		ferr := amerrors.FlushFailureError(gen, err)
		if errors.Is(err, store.ErrBatchTooLarge) {
			ferr.Retryable = false
			ferr = ferr.WithSuggestion("pending entries were kept; flush smaller batches or split oversized entities")
		}
		return ferr
	}

	i.buf.discard(len(entries))
	i.gate.advance(gen)
	if i.cache != nil {
		i.cache.Purge()
	}
	return nil
}

// Get returns the entities with an exact committed match of key and value.
// value must be a string, number or bool.
func (i *Index) Get(ctx context.Context, key string, value any) (*Hits, error) {
	if err := checkKey(key, nil); err != nil {
		return nil, err
	}
	v, err := store.ValueOf(value)
	if err != nil {
		return nil, amerrors.InvalidPropertyError(key, err.Error())
	}

	gen, release := i.gate.enter()
	defer release()

	if i.closed.Load() {
		return nil, amerrors.ClosedIndexError("get")
	}

	start := time.Now()
	ck := cacheKey{generation: gen, key: key, value: v.Key()}
	if i.cache != nil {
		if ids, ok := i.cache.Get(ck); ok {
			i.metrics.Since(telemetry.OpGet, start, true, nil)
			return cachedHits(ids, gen), nil
		}
	}

	rs, err := i.backend.Get(ctx, key, v)
	i.metrics.Since(telemetry.OpGet, start, false, err)
	if err != nil {
		return nil, amerrors.QueryBackendError(i.backend.Name(), err)
	}
	hits, err := newHits(ctx, rs, &i.gate, gen, i.backend.Name())
	if err != nil {
		return nil, err
	}
	if i.cache != nil {
		hits.onComplete = func(ids []int64) {
			i.cache.Add(ck, ids)
		}
	}
	return hits, nil
}

// Query runs a backend query over all keys. The query text or object is
// passed to the backend uninterpreted.
func (i *Index) Query(ctx context.Context, q store.Query) (*Hits, error) {
	return i.QueryKey(ctx, "", q)
}

// QueryKey runs a backend query scoped to key.
func (i *Index) QueryKey(ctx context.Context, key string, q store.Query) (*Hits, error) {
	if q == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "query is required", nil)
	}

	gen, release := i.gate.enter()
	defer release()

	if i.closed.Load() {
		return nil, amerrors.ClosedIndexError("query")
	}

	start := time.Now()
	rs, err := i.backend.Query(ctx, key, q)
	i.metrics.Since(telemetry.OpQuery, start, false, err)
	if err != nil {
		return nil, amerrors.QueryBackendError(i.backend.Name(), err)
	}
	return newHits(ctx, rs, &i.gate, gen, i.backend.Name())
}

// Stats describes an index.
type Stats struct {
	Name       string `json:"name"`
	Backend    string `json:"backend"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending"`
	Entries    int    `json:"entries"`
	Entities   int    `json:"entities"`
}

// Stats returns committed and pending counts.
func (i *Index) Stats(ctx context.Context) (Stats, error) {
	gen, release := i.gate.enter()
	defer release()

	st := Stats{
		Name:       i.name,
		Backend:    i.backend.Name(),
		Generation: gen,
		Pending:    i.buf.len(),
	}
	if i.closed.Load() {
		return st, nil
	}
	bs, err := i.backend.Stats(ctx)
	if err != nil {
		return st, amerrors.QueryBackendError(i.backend.Name(), err)
	}
	st.Entries = bs.Entries
	st.Entities = bs.Entities
	return st, nil
}

// Metrics returns the operation metrics recorded since the index was opened.
// Read latencies cover opening the cursor, not draining it.
func (i *Index) Metrics() telemetry.Snapshot { return i.metrics.Snapshot() }

// Generation returns the last completed flush generation.
func (i *Index) Generation() uint64 { return i.gate.current() }

// Pending returns the number of buffered entries.
func (i *Index) Pending() int { return i.buf.len() }

// Close closes the backend without flushing. Buffered entries are dropped.
// Later calls return nil.
func (i *Index) Close() error {
	i.gate.lock()
	defer i.gate.unlock()

	if i.closed.Swap(true) {
		return nil
	}
	if n := i.buf.len(); n > 0 {
		slog.Warn("index_closed_with_pending_entries",
			slog.String("index", i.name),
			slog.Int("pending", n))
	}
	if i.cache != nil {
		i.cache.Purge()
	}
	snap := i.metrics.Snapshot()
	slog.Debug("index_closed",
		slog.String("index", i.name),
		slog.Uint64("generation", i.gate.current()),
		slog.Int64("flushes", snap.Op(telemetry.OpFlush).Count),
		slog.Int64("gets", snap.Op(telemetry.OpGet).Count),
		slog.Int64("queries", snap.Op(telemetry.OpQuery).Count))
	return i.backend.Close()
}

// Shutdown flushes buffered entries and closes the index. The index is
// closed even when the flush fails; the flush error is returned.
func (i *Index) Shutdown(ctx context.Context) error {
	flushErr := i.Flush(ctx)
	if errors.Is(flushErr, amerrors.ErrIndexClosed) {
		return nil
	}
	closeErr := i.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
