package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// bleveEntityField holds the owning entity ID of each document.
	bleveEntityField = "__entity"

	// bleveSeqKey is the internal key storing the document sequence counter.
	bleveSeqKey = "__seq"

	// bleveTextOnlyParser is the dynamic date parser of every index. It never
	// parses, so date-like strings stay keyword text and match exactly.
	bleveTextOnlyParser = "batchidx_text_only"
)

// bleveReservedKeys are field names bleve itself gives meaning to.
var bleveReservedKeys = map[string]bool{
	bleveEntityField: true,
	"_id":            true,
	"_all":           true,
}

// errNotADate is returned by the text-only date parser for every input.
var errNotADate = errors.New("date parsing is disabled")

type textOnlyDateParser struct{}

func (textOnlyDateParser) ParseDateTime(string) (time.Time, string, error) {
	return time.Time{}, "", errNotADate
}

func init() {
	err := registry.RegisterDateTimeParser(bleveTextOnlyParser,
		func(map[string]interface{}, *registry.Cache) (analysis.DateTimeParser, error) {
			return textOnlyDateParser{}, nil
		})
	if err != nil {
		panic(err)
	}
}

// BleveBackend wraps Bleve v2. Each committed entry is one document with ID
// "<entity>/<seq>", the property keys as fields and the entity ID in
// __entity. All text is indexed with the keyword analyzer so exact matches
// compare whole values.
type BleveBackend struct {
	mu       sync.RWMutex
	index    bleve.Index
	path     string
	pageSize int
	seq      uint64
	closed   bool
}

// validateBleveIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveBackend opens or creates a Bleve index at path.
// If path is empty, creates an in-memory index.
func NewBleveBackend(path string, opts Options) (*BleveBackend, error) {
	indexMapping := createBleveMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			return nil, fmt.Errorf("bleve index at %s is corrupted: %w", path, validErr)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	b := &BleveBackend{
		index:    idx,
		path:     path,
		pageSize: opts.pageSize(),
	}

	raw, err := idx.GetInternal([]byte(bleveSeqKey))
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	if len(raw) == 8 {
		b.seq = binary.BigEndian.Uint64(raw)
	}

	slog.Debug("bleve_backend_opened",
		slog.String("path", path),
		slog.Uint64("seq", b.seq))
	return b, nil
}

// createBleveMapping builds a dynamic mapping with the keyword analyzer as
// default. Strings are never indexed as datetimes.
func createBleveMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name
	indexMapping.DefaultDateTimeParser = bleveTextOnlyParser
	indexMapping.StoreDynamic = false
	return indexMapping
}

// Name implements Backend.
func (b *BleveBackend) Name() string { return string(BackendBleve) }

// ValidateKey rejects the few property keys that collide with fields bleve
// or this backend use: __entity, _id and _all.
func (b *BleveBackend) ValidateKey(key string) error {
	if bleveReservedKeys[key] {
		return fmt.Errorf("key %q is reserved by the bleve backend", key)
	}
	return nil
}

// Commit implements Backend. The whole generation goes into one bleve batch.
func (b *BleveBackend) Commit(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	bb := b.index.NewBatch()
	for _, id := range batch.Deletes {
		docIDs, err := b.entityDocIDs(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to resolve documents of entity %d: %w", id, err)
		}
		for _, docID := range docIDs {
			bb.Delete(docID)
		}
	}

	seq := b.seq
	for _, e := range batch.Entries {
		seq++
		doc := bleveDocument(e)
		if err := bb.Index(bleveDocID(e.Entity, seq), doc); err != nil {
			return fmt.Errorf("failed to index entity %d: %w", e.Entity, err)
		}
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], seq)
	bb.SetInternal([]byte(bleveSeqKey), raw[:])

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(bb); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	b.seq = seq
	return nil
}

// bleveDocument converts an entry into a dynamic bleve document.
func bleveDocument(e Entry) map[string]interface{} {
	keys, grouped := groupPairs(e.Pairs)
	doc := make(map[string]interface{}, len(keys)+1)
	doc[bleveEntityField] = strconv.FormatInt(e.Entity, 10)
	for _, k := range keys {
		values := grouped[k]
		if len(values) == 1 {
			doc[k] = values[0].Interface()
			continue
		}
		arr := make([]interface{}, len(values))
		for i, v := range values {
			arr[i] = v.Interface()
		}
		doc[k] = arr
	}
	return doc
}

func bleveDocID(entity int64, seq uint64) string {
	return strconv.FormatInt(entity, 10) + "/" + strconv.FormatUint(seq, 10)
}

func bleveEntityOf(docID string) (int64, error) {
	head, _, _ := strings.Cut(docID, "/")
	return strconv.ParseInt(head, 10, 64)
}

// entityDocIDs returns every document ID of an entity. Caller holds b.mu.
func (b *BleveBackend) entityDocIDs(ctx context.Context, entity int64) ([]string, error) {
	q := bleve.NewTermQuery(strconv.FormatInt(entity, 10))
	q.SetField(bleveEntityField)

	var out []string
	after := ""
	for {
		page, err := b.searchPage(ctx, q, after)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		after = page[len(page)-1]
	}
}

// searchPage returns up to pageSize document IDs after the given ID, in ID order.
func (b *BleveBackend) searchPage(ctx context.Context, q query.Query, after string) ([]string, error) {
	req := bleve.NewSearchRequestOptions(q, b.pageSize, 0, false)
	req.SortBy([]string{"_id"})
	if after != "" {
		req.SearchAfter = []string{after}
	}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Get implements Backend.
func (b *BleveBackend) Get(_ context.Context, key string, value Value) (ResultSet, error) {
	var q query.Query
	switch value.Kind() {
	case KindString:
		tq := bleve.NewTermQuery(value.Str())
		tq.SetField(key)
		q = tq
	case KindNumber:
		n := value.Num()
		inclusive := true
		nq := bleve.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
		nq.SetField(key)
		q = nq
	case KindBool:
		bq := bleve.NewBoolFieldQuery(value.Boolean())
		bq.SetField(key)
		q = bq
	default:
		return nil, fmt.Errorf("invalid value")
	}
	return b.open(q)
}

// Query implements Backend.
//
// StringQuery: with a key, the text is a wildcard pattern on that field;
// without a key, it is a bleve query string ("name:alice age:>30").
//
// StructuredQuery accepts any bleve query.Query and NumberRange.
func (b *BleveBackend) Query(_ context.Context, key string, q Query) (ResultSet, error) {
	var bq query.Query
	switch q := q.(type) {
	case StringQuery:
		if key != "" {
			wq := bleve.NewWildcardQuery(q.Text)
			wq.SetField(key)
			bq = wq
		} else {
			qs := bleve.NewQueryStringQuery(q.Text)
			if _, err := qs.Parse(); err != nil {
				return nil, fmt.Errorf("invalid query string: %w", err)
			}
			bq = qs
		}
	case StructuredQuery:
		switch d := q.Descriptor.(type) {
		case query.Query:
			bq = d
		case NumberRange:
			if key == "" {
				return nil, fmt.Errorf("number range query requires a key")
			}
			inclusive := true
			nq := bleve.NewNumericRangeInclusiveQuery(d.Min, d.Max, &inclusive, &inclusive)
			nq.SetField(key)
			bq = nq
		default:
			return nil, fmt.Errorf("bleve backend does not support query object %T", q.Descriptor)
		}
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}
	return b.open(bq)
}

func (b *BleveBackend) open(q query.Query) (ResultSet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	return &bleveResult{backend: b, query: q}, nil
}

// bleveResult pages through a bleve search with search-after on document ID.
type bleveResult struct {
	backend *BleveBackend
	query   query.Query
	after   string
	done    bool
}

func (r *bleveResult) NextPage(ctx context.Context) ([]int64, error) {
	if r.done {
		return nil, nil
	}

	r.backend.mu.RLock()
	defer r.backend.mu.RUnlock()

	if r.backend.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docIDs, err := r.backend.searchPage(ctx, r.query, r.after)
	if err != nil {
		return nil, err
	}
	if len(docIDs) < r.backend.pageSize {
		r.done = true
	}
	if len(docIDs) == 0 {
		return nil, nil
	}
	r.after = docIDs[len(docIDs)-1]

	ids := make([]int64, 0, len(docIDs))
	for _, docID := range docIDs {
		id, err := bleveEntityOf(docID)
		if err != nil {
			return nil, fmt.Errorf("malformed document id %q: %w", docID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *bleveResult) Stable() bool { return false }

func (r *bleveResult) Done() bool { return r.done }

func (r *bleveResult) Close() error {
	r.done = true
	return nil
}

// Stats implements Backend.
func (b *BleveBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return Stats{Backend: b.Name()}, nil
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count documents: %w", err)
	}

	entities := roaring64.New()
	after := ""
	for {
		page, err := b.searchPage(ctx, bleve.NewMatchAllQuery(), after)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to scan documents: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, docID := range page {
			if id, err := bleveEntityOf(docID); err == nil {
				entities.Add(uint64(id))
			}
		}
		after = page[len(page)-1]
	}

	return Stats{
		Backend:  b.Name(),
		Entries:  int(docCount),
		Entities: int(entities.GetCardinality()),
	}, nil
}

// Close implements Backend.
func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

var _ Backend = (*BleveBackend)(nil)
