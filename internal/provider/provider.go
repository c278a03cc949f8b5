// Package provider owns the lifecycle of the batch indexes in a data
// directory: it creates node and relationship indexes on demand and, at
// shutdown, flushes and closes every one of them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/index"
	"github.com/Aman-CERP/batchidx/internal/store"
)

// Kind is the entity namespace of an index.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
)

// ParseKind validates an entity kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNode, KindRelationship:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown entity kind: %s (valid options: node, relationship)", s)
	}
}

// Options configures a Provider.
type Options struct {
	// DataDir holds the on-disk indexes. Empty keeps every index in memory
	// and takes no lock.
	DataDir string

	// Backend is the backend for new indexes ("" selects the store default).
	// Existing indexes keep the backend they were created with.
	Backend string

	// Store tunes backend construction.
	Store store.Options

	// CacheSize is the per-index exact-match cache size.
	CacheSize int

	// Retry controls the final flush at shutdown.
	Retry amerrors.RetryConfig
}

// DefaultOptions returns options for an in-memory provider.
func DefaultOptions() Options {
	return Options{
		Store:     store.DefaultOptions(),
		CacheSize: index.DefaultCacheSize,
		Retry:     amerrors.DefaultRetryConfig(),
	}
}

// Ref names one index.
type Ref struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

func (r Ref) String() string { return string(r.Kind) + "/" + r.Name }

// Provider creates and owns indexes. Safe for concurrent use.
type Provider struct {
	opts    Options
	lock    *dirLock
	mu      sync.Mutex
	indexes map[Ref]*index.Index
	closed  bool
}

// Open creates a provider. With a data directory, it takes an exclusive
// lock on it and fails with an ERR_207_INDEX_LOCKED error if another process
// holds it.
func Open(opts Options) (*Provider, error) {
	p := &Provider{
		opts:    opts,
		indexes: make(map[Ref]*index.Index),
	}
	if opts.DataDir == "" {
		return p, nil
	}

	p.lock = newDirLock(opts.DataDir)
	acquired, err := p.lock.tryLock()
	if err != nil {
		return nil, amerrors.IndexLockedError(opts.DataDir, err)
	}
	if !acquired {
		return nil, amerrors.IndexLockedError(opts.DataDir, nil)
	}

	slog.Debug("provider_opened", slog.String("data_dir", opts.DataDir))
	return p, nil
}

// NodeIndex returns the node index called name, creating it if needed.
func (p *Provider) NodeIndex(name string) (*index.Index, error) {
	return p.Index(KindNode, name)
}

// RelationshipIndex returns the relationship index called name, creating it
// if needed.
func (p *Provider) RelationshipIndex(name string) (*index.Index, error) {
	return p.Index(KindRelationship, name)
}

// Index returns the index of kind called name, creating it if needed.
func (p *Provider) Index(kind Kind, name string) (*index.Index, error) {
	if err := validateName(name); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, err.Error(), nil)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, err.Error(), nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, amerrors.ClosedIndexError("open index")
	}

	ref := Ref{Kind: kind, Name: name}
	if idx, ok := p.indexes[ref]; ok {
		return idx, nil
	}

	base := p.Path(ref)
	backend := p.opts.Backend
	if existing := store.DetectBackend(base); existing != "" {
		if backend != "" && backend != string(existing) {
			slog.Warn("index_backend_override_ignored",
				slog.String("index", ref.String()),
				slog.String("requested", backend),
				slog.String("existing", string(existing)))
		}
		backend = string(existing)
	}

	b, err := store.NewBackend(base, backend, p.opts.Store)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.ErrCodeCorruptIndex, fmt.Errorf("open %s: %w", ref, err))
	}
	idx, err := index.New(
		index.WithBackend(b),
		index.WithName(ref.String()),
		index.WithCacheSize(p.opts.CacheSize),
	)
	if err != nil {
		_ = b.Close()
		return nil, amerrors.InternalError("failed to create index", err)
	}

	p.indexes[ref] = idx
	slog.Debug("index_opened",
		slog.String("index", ref.String()),
		slog.String("backend", b.Name()),
		slog.String("path", base))
	return idx, nil
}

// Path returns the backend base path of an index, or "" in memory.
func (p *Provider) Path(ref Ref) string {
	if p.opts.DataDir == "" {
		return ""
	}
	return filepath.Join(p.opts.DataDir, string(ref.Kind), ref.Name)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("index name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid index name: %q", name)
	}
	return nil
}

// Opened returns the refs of the indexes opened so far, sorted.
func (p *Provider) Opened() []Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	refs := make([]Ref, 0, len(p.indexes))
	for ref := range p.indexes {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs
}

// Existing lists the indexes present on disk, sorted.
func (p *Provider) Existing() ([]Ref, error) {
	if p.opts.DataDir == "" {
		return p.Opened(), nil
	}

	var refs []Ref
	for _, kind := range []Kind{KindNode, KindRelationship} {
		entries, err := os.ReadDir(filepath.Join(p.opts.DataDir, string(kind)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s indexes: %w", kind, err)
		}
		seen := make(map[string]bool)
		for _, e := range entries {
			name := e.Name()
			for _, ext := range []string{".db", ".bleve", ".badger"} {
				if strings.HasSuffix(name, ext) {
					base := strings.TrimSuffix(name, ext)
					if !seen[base] {
						seen[base] = true
						refs = append(refs, Ref{Kind: kind, Name: base})
					}
				}
			}
		}
	}
	sortRefs(refs)
	return refs, nil
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Name < refs[j].Name
	})
}

func (p *Provider) snapshot() map[Ref]*index.Index {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[Ref]*index.Index, len(p.indexes))
	for ref, idx := range p.indexes {
		out[ref] = idx
	}
	return out
}

// FlushAll flushes every open index in parallel.
func (p *Provider) FlushAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range p.snapshot() {
		g.Go(func() error {
			return idx.Flush(gctx)
		})
	}
	return g.Wait()
}

// Shutdown flushes every open index, retrying failed flushes with backoff,
// then closes all of them and releases the data directory. Indexes are
// closed even when their flush ultimately fails. Later calls return nil.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	indexes := p.indexes
	p.indexes = make(map[Ref]*index.Index)
	p.mu.Unlock()

	var errMu sync.Mutex
	var errs []error

	// Flushes run independently; one failing index does not cancel the others.
	var g errgroup.Group
	for ref, idx := range indexes {
		g.Go(func() error {
			cfg := p.opts.Retry
			cfg.OnRetry = func(attempt int, err error) {
				slog.Warn("index_flush_retry",
					slog.String("index", ref.String()),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			if err := amerrors.Retry(ctx, cfg, func() error { return idx.Flush(ctx) }); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("flush %s: %w", ref, err))
				errMu.Unlock()
			}
			if err := idx.Close(); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("close %s: %w", ref, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if p.lock != nil {
		if err := p.lock.unlock(); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Info("provider_shutdown",
		slog.Int("indexes", len(indexes)),
		slog.Int("errors", len(errs)))
	return errors.Join(errs...)
}
