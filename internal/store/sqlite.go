package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Where is a structured SQLite query: a boolean SQL expression over the
// columns of the entries table (key, kind, sval, nval) with bind arguments.
//
//	store.Where{Clause: "nval > ? AND nval < ?", Args: []any{10, 20}}
//
// Clause is spliced into the statement text and must come from trusted code
// or an operator. Values belong in Args. A clause with a statement separator,
// a comment, or parentheses that close outside itself is rejected.
type Where struct {
	Clause string
	Args   []any
}

// SQLiteBackend stores committed pairs in SQLite. Every pair is a row in
// entries; string values are mirrored into the entries_fts FTS5 table under
// the same rowid for text queries.
type SQLiteBackend struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	pageSize int
	closed   bool
}

// validateSQLiteIntegrity checks if an SQLite index is valid before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name IN ('entries', 'entries_fts')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("index tables missing")
	}
	return nil
}

// NewSQLiteBackend opens or creates an SQLite index at path.
// If path is empty, creates an in-memory database.
func NewSQLiteBackend(path string, opts Options) (*SQLiteBackend, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			return nil, fmt.Errorf("sqlite index at %s is corrupted: %w", path, validErr)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and an in-memory database must not be
	// split across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	cacheMB := opts.SQLiteCacheMB
	if cacheMB <= 0 {
		cacheMB = 64
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteBackend{
		db:       db,
		path:     path,
		pageSize: opts.pageSize(),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Debug("sqlite_backend_opened", slog.String("path", path))
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- One row per committed pair. entry groups the pairs of one add call.
	-- vkey is the canonical value key used for exact matches.
	CREATE TABLE IF NOT EXISTS entries (
		id     INTEGER PRIMARY KEY,
		entity INTEGER NOT NULL,
		entry  INTEGER NOT NULL,
		key    TEXT NOT NULL,
		kind   INTEGER NOT NULL,
		vkey   TEXT NOT NULL,
		sval   TEXT,
		nval   REAL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_lookup ON entries(key, vkey, entity);
	CREATE INDEX IF NOT EXISTS idx_entries_entity ON entries(entity);

	-- String values, rowid = entries.id
	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		value,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS meta (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	INSERT OR IGNORE INTO meta (name, value) VALUES ('entry_seq', 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return string(BackendSQLite) }

// Commit implements Backend. One transaction per batch.
func (s *SQLiteBackend) Commit(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range batch.Deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entries_fts WHERE rowid IN (SELECT id FROM entries WHERE entity = ?)`, id); err != nil {
			return fmt.Errorf("failed to delete text of entity %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE entity = ?`, id); err != nil {
			return fmt.Errorf("failed to delete entity %d: %w", id, err)
		}
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'entry_seq'`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read entry sequence: %w", err)
	}

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries(entity, entry, key, kind, vkey, sval, nval) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries_fts(rowid, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer ftsStmt.Close()

	for _, e := range batch.Entries {
		seq++
		for _, p := range e.Pairs {
			var sval, nval any
			switch p.Value.Kind() {
			case KindString:
				sval = p.Value.Str()
			case KindNumber:
				nval = p.Value.Num()
			case KindBool:
				sval = p.Value.Text()
			}
			res, err := insertStmt.ExecContext(ctx,
				e.Entity, seq, p.Key, int(p.Value.Kind()), p.Value.TextKey(), sval, nval)
			if err != nil {
				return fmt.Errorf("failed to insert pair %q of entity %d: %w", p.Key, e.Entity, err)
			}
			if p.Value.Kind() != KindString {
				continue
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read row id: %w", err)
			}
			if _, err := ftsStmt.ExecContext(ctx, rowID, p.Value.Str()); err != nil {
				return fmt.Errorf("failed to index text of entity %d: %w", e.Entity, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = ? WHERE name = 'entry_seq'`, seq); err != nil {
		return fmt.Errorf("failed to store entry sequence: %w", err)
	}
	return tx.Commit()
}

// Get implements Backend.
func (s *SQLiteBackend) Get(ctx context.Context, key string, value Value) (ResultSet, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("invalid value")
	}
	return s.open(ctx,
		`SELECT DISTINCT entity FROM entries WHERE key = ? AND vkey = ?`,
		[]any{key, value.TextKey()})
}

// Query implements Backend.
//
// StringQuery is an FTS5 MATCH expression over string values, optionally
// restricted to key. StructuredQuery accepts Where and NumberRange.
func (s *SQLiteBackend) Query(ctx context.Context, key string, q Query) (ResultSet, error) {
	switch q := q.(type) {
	case StringQuery:
		base := `SELECT DISTINCT e.entity AS entity FROM entries_fts f JOIN entries e ON e.id = f.rowid
			WHERE entries_fts MATCH ?`
		args := []any{q.Text}
		if key != "" {
			base += ` AND e.key = ?`
			args = append(args, key)
		}
		return s.open(ctx, base, args)
	case StructuredQuery:
		switch d := q.Descriptor.(type) {
		case Where:
			if err := checkWhereClause(d.Clause); err != nil {
				return nil, err
			}
			base := `SELECT DISTINCT entity FROM entries WHERE (` + d.Clause + `)`
			args := append([]any(nil), d.Args...)
			if key != "" {
				base += ` AND key = ?`
				args = append(args, key)
			}
			return s.open(ctx, base, args)
		case NumberRange:
			if key == "" {
				return nil, fmt.Errorf("number range query requires a key")
			}
			base := `SELECT DISTINCT entity FROM entries WHERE key = ? AND kind = ?`
			args := []any{key, int(KindNumber)}
			if d.Min != nil {
				base += ` AND nval >= ?`
				args = append(args, *d.Min)
			}
			if d.Max != nil {
				base += ` AND nval <= ?`
				args = append(args, *d.Max)
			}
			return s.open(ctx, base, args)
		default:
			return nil, fmt.Errorf("sqlite backend does not support query object %T", q.Descriptor)
		}
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}
}

// checkWhereClause rejects clauses that could reach outside the WHERE
// expression they are placed in. Quoted literals and identifiers are skipped.
func checkWhereClause(clause string) error {
	if strings.TrimSpace(clause) == "" {
		return fmt.Errorf("empty where clause")
	}
	depth := 0
	for i := 0; i < len(clause); i++ {
		switch c := clause[i]; c {
		case '\'', '"', '`':
			end := strings.IndexByte(clause[i+1:], c)
			if end < 0 {
				return fmt.Errorf("unterminated quote in where clause")
			}
			i += end + 1
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced ')' in where clause")
			}
		case ';':
			return fmt.Errorf("where clause must be a single expression")
		case '-':
			if i+1 < len(clause) && clause[i+1] == '-' {
				return fmt.Errorf("comments are not allowed in where clause")
			}
		case '/':
			if i+1 < len(clause) && clause[i+1] == '*' {
				return fmt.Errorf("comments are not allowed in where clause")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced '(' in where clause")
	}
	return nil
}

// open prepares a keyset-paged statement over base, which must select a
// distinct "entity" column. The statement is validated here so malformed
// queries fail at open time.
func (s *SQLiteBackend) open(ctx context.Context, base string, args []any) (ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	paged := `SELECT entity FROM (` + base + `) WHERE (? = 0 OR entity > ?) ORDER BY entity LIMIT ?`
	stmt, err := s.db.PrepareContext(ctx, paged)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	return &sqliteResult{backend: s, stmt: stmt, args: args}, nil
}

// sqliteResult pages by entity ID; each page is a fresh execution of the
// prepared statement.
type sqliteResult struct {
	backend *SQLiteBackend
	stmt    *sql.Stmt
	args    []any
	started bool
	last    int64
	done    bool
	closed  bool
}

func (r *sqliteResult) NextPage(ctx context.Context) ([]int64, error) {
	if r.done || r.closed {
		return nil, nil
	}

	r.backend.mu.RLock()
	defer r.backend.mu.RUnlock()

	if r.backend.closed {
		return nil, fmt.Errorf("index is closed")
	}

	started := 0
	if r.started {
		started = 1
	}
	args := append(append([]any(nil), r.args...), started, r.last, r.backend.pageSize)
	rows, err := r.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, r.backend.pageSize)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(ids) < r.backend.pageSize {
		r.done = true
	}
	if len(ids) > 0 {
		r.started = true
		r.last = ids[len(ids)-1]
	}
	return ids, nil
}

func (r *sqliteResult) Stable() bool { return false }

func (r *sqliteResult) Done() bool { return r.done || r.closed }

func (r *sqliteResult) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stmt.Close()
}

// Stats implements Backend.
func (s *SQLiteBackend) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{Backend: s.Name()}, nil
	}

	st := Stats{Backend: s.Name()}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT entry), COUNT(DISTINCT entity) FROM entries`).Scan(&st.Entries, &st.Entities)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
