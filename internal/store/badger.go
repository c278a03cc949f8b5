package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for badger storage.
const (
	prefixPosting = byte('p') // p + key + value key + entity + seq -> (empty)
	prefixEntry   = byte('e') // e + entity + seq -> encoded pairs
	prefixDeleted = byte('x') // x + entity + commit -> cutoff seq
	prefixMeta    = byte('m') // m + name -> value
)

var (
	metaSeqKey    = []byte{prefixMeta, 's', 'e', 'q'} // last published seq
	metaCommitKey = []byte{prefixMeta, 'c', 'o', 'm'} // last published commit
	metaStagedKey = []byte{prefixMeta, 's', 't', 'g'} // commit being staged
)

// BadgerBackend stores committed pairs as badger posting keys. Keys sort by
// property key, then value (numbers in numeric order), then entity, so exact
// matches and number ranges are prefix/range scans.
//
// A commit is written in two steps. Records and delete markers are staged
// through a badger WriteBatch, which splits them over as many transactions
// as needed. A small final transaction then publishes the new sequence and
// commit number. Readers ignore records above the published sequence and
// markers above the published commit, so a batch becomes visible all at once
// whatever its size. Staged writes of a commit that never published are
// removed before the next commit and on open.
//
// Cursors read from a badger transaction snapshot and are therefore stable
// across later commits.
type BadgerBackend struct {
	mu       sync.RWMutex
	db       *badger.DB
	path     string
	pageSize int
	open     map[*badgerResult]struct{}
	closed   bool
}

// badgerLogger adapts slog to badger.Logger. Badger's info chatter is
// demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger", slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger", slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger", slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger", slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// NewBadgerBackend opens or creates a badger index at path.
// If path is empty, creates an in-memory database.
func NewBadgerBackend(path string, opts Options) (*BadgerBackend, error) {
	var badgerOpts badger.Options
	if path == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		badgerOpts = badger.DefaultOptions(path)
	}
	badgerOpts = badgerOpts.
		WithSyncWrites(opts.BadgerSyncWrites).
		WithLogger(badgerLogger{logger: slog.Default()})
	if opts.BadgerMemTableSize > 0 {
		badgerOpts = badgerOpts.WithMemTableSize(opts.BadgerMemTableSize)
		// Values must fit in one transaction (15% of the memtable).
		if limit := opts.BadgerMemTableSize * 15 / 100 / 4; badgerOpts.ValueThreshold > limit {
			badgerOpts = badgerOpts.WithValueThreshold(limit)
		}
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	b := &BadgerBackend{
		db:       db,
		path:     path,
		pageSize: opts.pageSize(),
		open:     make(map[*badgerResult]struct{}),
	}
	if err := b.discardUnpublished(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to discard unpublished commit: %w", err)
	}
	if err := b.purgeDeleted(); err != nil {
		slog.Warn("badger_purge_failed", slog.String("error", err.Error()))
	}

	slog.Debug("badger_backend_opened", slog.String("path", path))
	return b, nil
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return string(BackendBadger) }

// entityBytes encodes an entity ID so unsigned byte order matches signed order.
func entityBytes(id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id)^(1<<63))
	return buf[:]
}

func entityFromBytes(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf) ^ (1 << 63))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// readString is the inverse of appendString. Returns the rest of buf.
func readString(buf []byte) (string, []byte, error) {
	n, size := binary.Uvarint(buf)
	if size <= 0 || uint64(len(buf)-size) < n {
		return "", nil, fmt.Errorf("truncated string")
	}
	buf = buf[size:]
	return string(buf[:n]), buf[n:], nil
}

// postingKeyPrefix returns the prefix shared by all postings of key, or of
// key and value key when vkey is set.
func postingKeyPrefix(key string, vkey string, withValue bool) []byte {
	buf := []byte{prefixPosting}
	buf = appendString(buf, key)
	if withValue {
		buf = appendString(buf, vkey)
	}
	return buf
}

func postingKey(key string, v Value, entity int64, seq uint64) []byte {
	buf := postingKeyPrefix(key, v.Key(), true)
	buf = append(buf, entityBytes(entity)...)
	return binary.BigEndian.AppendUint64(buf, seq)
}

// postingRef is a decoded posting key.
type postingRef struct {
	key    string
	value  Value
	entity int64
	seq    uint64
}

func decodePostingKey(raw []byte) (postingRef, error) {
	if len(raw) == 0 || raw[0] != prefixPosting {
		return postingRef{}, fmt.Errorf("not a posting key")
	}
	key, rest, err := readString(raw[1:])
	if err != nil {
		return postingRef{}, err
	}
	vkey, rest, err := readString(rest)
	if err != nil {
		return postingRef{}, err
	}
	if len(rest) != 16 {
		return postingRef{}, fmt.Errorf("posting key suffix has %d bytes, want 16", len(rest))
	}
	v, err := ParseKey(vkey)
	if err != nil {
		return postingRef{}, err
	}
	return postingRef{
		key:    key,
		value:  v,
		entity: entityFromBytes(rest[:8]),
		seq:    binary.BigEndian.Uint64(rest[8:]),
	}, nil
}

func entryKey(entity int64, seq uint64) []byte {
	buf := append([]byte{prefixEntry}, entityBytes(entity)...)
	return binary.BigEndian.AppendUint64(buf, seq)
}

// deletedKey marks every record of entity up to a cutoff seq as deleted by
// the given commit.
func deletedKey(entity int64, commit uint64) []byte {
	buf := append([]byte{prefixDeleted}, entityBytes(entity)...)
	return binary.BigEndian.AppendUint64(buf, commit)
}

func uint64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// keySuffix returns the trailing seq of posting and entry keys, or the
// commit of delete markers.
func keySuffix(key []byte) (uint64, bool) {
	if len(key) < 17 {
		return 0, false
	}
	switch key[0] {
	case prefixPosting, prefixEntry, prefixDeleted:
		return binary.BigEndian.Uint64(key[len(key)-8:]), true
	}
	return 0, false
}

// published is the visible state of the store.
type published struct {
	seq    uint64
	commit uint64
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("meta value has %d bytes, want 8", len(val))
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func readPublished(txn *badger.Txn) (published, error) {
	seq, err := readUint64(txn, metaSeqKey)
	if err != nil {
		return published{}, fmt.Errorf("failed to read sequence: %w", err)
	}
	commit, err := readUint64(txn, metaCommitKey)
	if err != nil {
		return published{}, fmt.Errorf("failed to read commit: %w", err)
	}
	return published{seq: seq, commit: commit}, nil
}

// visibility decides which records a snapshot may return.
type visibility struct {
	published
	// deleted maps entities to the highest seq hidden by a published marker.
	deleted map[int64]uint64
}

func (v visibility) visible(entity int64, seq uint64) bool {
	if seq > v.seq {
		return false
	}
	cutoff, ok := v.deleted[entity]
	return !ok || seq > cutoff
}

// loadVisibility reads the published state and its delete markers. The
// marker keys are returned for purging.
func loadVisibility(txn *badger.Txn) (visibility, [][]byte, error) {
	pub, err := readPublished(txn)
	if err != nil {
		return visibility{}, nil, err
	}
	vis := visibility{published: pub}

	var markers [][]byte
	prefix := []byte{prefixDeleted}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if commit, _ := keySuffix(key); commit > pub.commit {
			continue
		}
		var cutoff uint64
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("delete marker has %d bytes, want 8", len(val))
			}
			cutoff = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return visibility{}, nil, err
		}
		entity := entityFromBytes(key[1:9])
		if vis.deleted == nil {
			vis.deleted = make(map[int64]uint64)
		}
		if cutoff > vis.deleted[entity] {
			vis.deleted[entity] = cutoff
		}
		markers = append(markers, key)
	}
	return vis, markers, nil
}

func encodePairs(pairs []Pair) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(pairs)))
	for _, p := range pairs {
		buf = appendString(buf, p.Key)
		buf = appendString(buf, p.Value.Key())
	}
	return buf
}

func decodePairs(buf []byte) ([]Pair, error) {
	n, size := binary.Uvarint(buf)
	if size <= 0 {
		return nil, fmt.Errorf("truncated pair count")
	}
	buf = buf[size:]
	pairs := make([]Pair, 0, n)
	for i := uint64(0); i < n; i++ {
		key, rest, err := readString(buf)
		if err != nil {
			return nil, err
		}
		vkey, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		v, err := ParseKey(vkey)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: key, Value: v})
		buf = rest
	}
	return pairs, nil
}

// Commit implements Backend. Deletes become markers that hide the entity's
// existing records, entries get fresh seqs, and nothing is visible until the
// final publish. A batch of any size commits atomically; only a single entry
// too large for one badger transaction fails, with ErrBatchTooLarge.
func (b *BadgerBackend) Commit(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if err := b.discardUnpublished(); err != nil {
		return fmt.Errorf("failed to discard unpublished commit: %w", err)
	}

	var pub published
	if err := b.db.View(func(txn *badger.Txn) error {
		var err error
		pub, err = readPublished(txn)
		return err
	}); err != nil {
		return err
	}
	next := published{seq: pub.seq, commit: pub.commit + 1}

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaStagedKey, uint64Bytes(next.commit))
	}); err != nil {
		return wrapTxnErr("failed to start commit", err)
	}

	err := b.stage(ctx, batch, pub, &next)
	if err == nil {
		err = b.db.Update(func(txn *badger.Txn) error {
			if err := txn.Set(metaSeqKey, uint64Bytes(next.seq)); err != nil {
				return err
			}
			return txn.Set(metaCommitKey, uint64Bytes(next.commit))
		})
		if err != nil {
			err = wrapTxnErr("failed to publish", err)
		}
	}
	if err != nil {
		if rbErr := b.discardUnpublished(); rbErr != nil {
			slog.Warn("badger_discard_failed",
				slog.Uint64("commit", next.commit),
				slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := b.purgeDeleted(); err != nil {
		slog.Warn("badger_purge_failed", slog.String("error", err.Error()))
	}
	return nil
}

// stage writes the batch's markers and records without publishing them.
// next.seq advances past the last staged entry.
func (b *BadgerBackend) stage(ctx context.Context, batch *Batch, pub published, next *published) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range batch.Deletes {
		if err := wb.Set(deletedKey(id, next.commit), uint64Bytes(pub.seq)); err != nil {
			return wrapTxnErr(fmt.Sprintf("failed to delete entity %d", id), err)
		}
	}

	for _, e := range batch.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		next.seq++
		if err := wb.Set(entryKey(e.Entity, next.seq), encodePairs(e.Pairs)); err != nil {
			return wrapTxnErr(fmt.Sprintf("failed to store entity %d", e.Entity), err)
		}
		for _, p := range e.Pairs {
			if err := wb.Set(postingKey(p.Key, p.Value, e.Entity, next.seq), nil); err != nil {
				return wrapTxnErr(fmt.Sprintf("failed to index entity %d", e.Entity), err)
			}
		}
	}

	if err := wb.Flush(); err != nil {
		return wrapTxnErr("failed to write batch", err)
	}
	return nil
}

func wrapTxnErr(msg string, err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%s: %w: %w", msg, ErrBatchTooLarge, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// discardUnpublished removes the staged writes of a commit that never
// published: records above the published seq and markers above the
// published commit.
func (b *BadgerBackend) discardUnpublished() error {
	var pub published
	var staged uint64
	if err := b.db.View(func(txn *badger.Txn) error {
		var err error
		if pub, err = readPublished(txn); err != nil {
			return err
		}
		staged, err = readUint64(txn, metaStagedKey)
		return err
	}); err != nil {
		return err
	}
	if staged <= pub.commit {
		return nil
	}
	slog.Warn("badger_unpublished_commit_discarded", slog.Uint64("commit", staged))

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			suffix, ok := keySuffix(key)
			if !ok {
				continue
			}
			limit := pub.seq
			if key[0] == prefixDeleted {
				limit = pub.commit
			}
			if suffix > limit {
				if err := wb.Delete(it.Item().KeyCopy(nil)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := wb.Set(metaStagedKey, uint64Bytes(pub.commit)); err != nil {
		return err
	}
	return wb.Flush()
}

// purgeDeleted removes records hidden by published delete markers, then the
// markers themselves. Hidden records are invisible either way, so a partial
// purge is harmless and the next one finishes it.
func (b *BadgerBackend) purgeDeleted() error {
	var markers [][]byte

	records := b.db.NewWriteBatch()
	defer records.Cancel()

	err := b.db.View(func(txn *badger.Txn) error {
		vis, keys, err := loadVisibility(txn)
		if err != nil {
			return err
		}
		markers = keys
		for entity, cutoff := range vis.deleted {
			if err := purgeEntity(txn, records, entity, cutoff); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(markers) == 0 {
		return nil
	}
	if err := records.Flush(); err != nil {
		return err
	}

	done := b.db.NewWriteBatch()
	defer done.Cancel()
	for _, key := range markers {
		if err := done.Delete(key); err != nil {
			return err
		}
	}
	return done.Flush()
}

// purgeEntity deletes the entry records and postings of entity up to cutoff.
func purgeEntity(txn *badger.Txn, wb *badger.WriteBatch, entity int64, cutoff uint64) error {
	prefix := append([]byte{prefixEntry}, entityBytes(entity)...)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		seq, _ := keySuffix(item.Key())
		if seq > cutoff {
			break
		}
		var pairs []Pair
		if err := item.Value(func(val []byte) error {
			var err error
			pairs, err = decodePairs(val)
			return err
		}); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := wb.Delete(postingKey(p.Key, p.Value, entity, seq)); err != nil {
				return err
			}
		}
		if err := wb.Delete(item.KeyCopy(nil)); err != nil {
			return err
		}
	}
	return nil
}

// Get implements Backend.
func (b *BadgerBackend) Get(_ context.Context, key string, value Value) (ResultSet, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("invalid value")
	}
	prefix := postingKeyPrefix(key, value.Key(), true)
	return b.scan(prefix, prefix, nil)
}

// Query implements Backend.
//
// StringQuery is a wildcard pattern ('*', '?') over the text of values.
// Without a key scope the text must be "key:pattern".
//
// StructuredQuery accepts MatchFunc and NumberRange. A NumberRange is a
// range scan over the ordered number encoding.
func (b *BadgerBackend) Query(_ context.Context, key string, q Query) (ResultSet, error) {
	switch q := q.(type) {
	case StringQuery:
		field, pattern, err := splitFieldPattern(key, q.Text)
		if err != nil {
			return nil, err
		}
		prefix := postingKeyPrefix(field, "", false)
		return b.scan(prefix, prefix, func(_ string, v Value) (bool, bool) {
			return wildcardMatch(pattern, v.Text()), false
		})
	case StructuredQuery:
		switch d := q.Descriptor.(type) {
		case MatchFunc:
			return b.scanKeys(key, d)
		case func(string, Value) bool:
			return b.scanKeys(key, d)
		case NumberRange:
			if key == "" {
				return nil, fmt.Errorf("number range query requires a key")
			}
			// Number value keys are 9 bytes: the tag and the ordered payload.
			prefix := postingKeyPrefix(key, "", false)
			prefix = append(binary.AppendUvarint(prefix, 9), 'n')
			seek := prefix
			if d.Min != nil {
				seek = binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), sortableFloat(*d.Min))
			}
			return b.scan(prefix, seek, func(_ string, v Value) (bool, bool) {
				if d.Max != nil && v.Num() > *d.Max {
					return false, true
				}
				return d.contains(v), false
			})
		default:
			return nil, fmt.Errorf("badger backend does not support query object %T", q.Descriptor)
		}
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}
}

func (b *BadgerBackend) scanKeys(key string, match MatchFunc) (ResultSet, error) {
	prefix := []byte{prefixPosting}
	if key != "" {
		prefix = postingKeyPrefix(key, "", false)
	}
	return b.scan(prefix, prefix, func(k string, v Value) (bool, bool) {
		return match(k, v), false
	})
}

// scan opens a snapshot cursor over posting keys with prefix, starting at
// seek. filter returns (accept, stop); nil accepts everything.
func (b *BadgerBackend) scan(prefix, seek []byte, filter func(string, Value) (bool, bool)) (ResultSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	txn := b.db.NewTransaction(false)
	vis, _, err := loadVisibility(txn)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(seek)

	r := &badgerResult{
		backend: b,
		txn:     txn,
		it:      it,
		vis:     vis,
		prefix:  prefix,
		filter:  filter,
	}
	b.open[r] = struct{}{}
	return r, nil
}

// badgerResult walks a badger iterator inside a read-only transaction.
type badgerResult struct {
	backend *BadgerBackend
	txn     *badger.Txn
	it      *badger.Iterator
	vis     visibility
	prefix  []byte
	filter  func(string, Value) (bool, bool)
	last    *int64
	done    bool
}

func (r *badgerResult) NextPage(ctx context.Context) ([]int64, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	if r.done {
		return nil, nil
	}
	if r.backend.closed {
		return nil, fmt.Errorf("index is closed")
	}

	size := r.backend.pageSize
	ids := make([]int64, 0, size)
	for ; r.it.ValidForPrefix(r.prefix); r.it.Next() {
		if len(ids) == size {
			return ids, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, err := decodePostingKey(r.it.Item().Key())
		if err != nil {
			return nil, fmt.Errorf("corrupt posting key: %w", err)
		}
		if !r.vis.visible(ref.entity, ref.seq) {
			continue
		}
		entity := ref.entity
		if r.filter != nil {
			accept, stop := r.filter(ref.key, ref.value)
			if stop {
				break
			}
			if !accept {
				continue
			}
		}
		// Postings of one value are grouped by entity; skip repeats.
		if r.last != nil && *r.last == entity {
			continue
		}
		r.last = &entity
		ids = append(ids, entity)
	}
	r.release()
	return ids, nil
}

func (r *badgerResult) Stable() bool { return true }

func (r *badgerResult) Done() bool {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	return r.done
}

func (r *badgerResult) Close() error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	r.release()
	return nil
}

// release closes the iterator and discards the transaction. Idempotent.
func (r *badgerResult) release() {
	if r.done {
		return
	}
	r.done = true
	r.it.Close()
	r.txn.Discard()
	delete(r.backend.open, r)
}

// Stats implements Backend.
func (b *BadgerBackend) Stats(_ context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{Backend: b.Name()}
	if b.closed {
		return st, nil
	}

	err := b.db.View(func(txn *badger.Txn) error {
		vis, _, err := loadVisibility(txn)
		if err != nil {
			return err
		}
		prefix := []byte{prefixEntry}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var last []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			seq, _ := keySuffix(key)
			if !vis.visible(entityFromBytes(key[1:9]), seq) {
				continue
			}
			st.Entries++
			if last == nil || string(last) != string(key[1:9]) {
				st.Entities++
				last = append(last[:0], key[1:9]...)
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// Close implements Backend. Open cursors are released first.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	for r := range b.open {
		r.release()
	}
	b.closed = true
	return b.db.Close()
}

var _ Backend = (*BadgerBackend)(nil)
