package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/index"
	"github.com/Aman-CERP/batchidx/internal/provider"
	"github.com/Aman-CERP/batchidx/internal/telemetry"
	"github.com/Aman-CERP/batchidx/internal/ui"
)

// record is one input line of the load command.
type record struct {
	ID      *int64         `json:"id"`
	Props   map[string]any `json:"props"`
	Replace bool           `json:"replace"`
}

type loadOptions struct {
	index      indexFlags
	backend    string
	flushEvery int
	strict     bool
	plain      bool
}

func newLoadCmd(st *state) *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load [FILE]",
		Short: "Bulk-load JSON-lines records into an index",
		Long: `Read JSON-lines records and add them to an index.

Each line is an object:

  {"id": 42, "props": {"name": "Ada", "tags": ["x", "y"]}, "replace": false}

"replace": true discards everything previously indexed for the ID before
adding the new properties. Records are flushed every --flush-every lines and
once at the end. FILE defaults to standard input ("-").`,
		Example: `  # Load people into the node index "people"
  batchidx load --index people people.jsonl

  # Load relationships from stdin on the badger backend
  cat knows.jsonl | batchidx load --kind relationship --index knows --backend badger`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runLoad(cmd, st, opts, path)
		},
	}

	opts.index.register(cmd)
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend for a new index: memory, sqlite, bleve, badger")
	cmd.Flags().IntVar(&opts.flushEvery, "flush-every", 10000, "Flush after this many records (0: only at the end)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on the first invalid record instead of skipping it")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
	return cmd
}

func runLoad(cmd *cobra.Command, st *state, opts loadOptions, path string) error {
	if opts.flushEvery < 0 {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "--flush-every must be >= 0", nil)
	}
	ref, err := opts.index.ref()
	if err != nil {
		return err
	}

	in, total, closeIn, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer closeIn()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
		ui.WithForcePlain(opts.plain),
		ui.WithTitle("batchidx load • "+ref.String())))

	ctx := cmd.Context()
	return st.withProvider(ctx, opts.backend, func(p *provider.Provider) error {
		idx, err := p.Index(ref.Kind, ref.Name)
		if err != nil {
			return err
		}
		if err := renderer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = renderer.Stop() }()

		l := &loader{idx: idx, renderer: renderer, opts: opts, total: total}
		start := time.Now()
		if err := l.run(ctx, in); err != nil {
			return err
		}

		renderer.Complete(ui.Summary{
			Index:      ref.String(),
			Backend:    idx.Backend(),
			Records:    l.records,
			Rejected:   l.rejected,
			Flushes:    l.flushes,
			Generation: idx.Generation(),
			Duration:   time.Since(start),
		})
		flushStats := idx.Metrics().Op(telemetry.OpFlush)
		slog.Info("load_completed",
			slog.String("index", ref.String()),
			slog.Int("records", l.records),
			slog.Int("rejected", l.rejected),
			slog.Uint64("generation", idx.Generation()),
			slog.Duration("flush_mean", flushStats.Mean()),
			slog.Duration("flush_max", flushStats.Max))
		return nil
	})
}

// openInput opens path, or standard input for "-". total is the input size
// when known.
func openInput(cmd *cobra.Command, path string) (io.Reader, int64, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), 0, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, amerrors.New(amerrors.ErrCodeFileNotFound, fmt.Sprintf("cannot open %s", path), err)
	}
	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	return f, total, func() { _ = f.Close() }, nil
}

// loader feeds records into one index.
type loader struct {
	idx      *index.Index
	renderer ui.Renderer
	opts     loadOptions
	total    int64

	line       int
	bytes      int64
	records    int
	rejected   int
	flushes    int
	sinceFlush int
}

func (l *loader) run(ctx context.Context, in io.Reader) error {
	r := bufio.NewReaderSize(in, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, readErr := r.ReadBytes('\n')
		l.bytes += int64(len(raw))
		if len(bytes.TrimSpace(raw)) > 0 {
			l.line++
			if err := l.apply(raw); err != nil {
				return err
			}
		} else if len(raw) > 0 {
			l.line++
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read input: %w", readErr)
		}
		if l.opts.flushEvery > 0 && l.sinceFlush >= l.opts.flushEvery {
			if err := l.flush(ctx); err != nil {
				return err
			}
		}
	}
	return l.flush(ctx)
}

// apply adds one record. Invalid records are rejected unless strict.
func (l *loader) apply(raw []byte) error {
	entity, props, replace, err := decodeRecord(raw)
	if err == nil {
		if replace {
			err = l.idx.UpdateOrAdd(entity, props)
		} else {
			err = l.idx.Add(entity, props)
		}
		if err != nil && amerrors.GetCode(err) != amerrors.ErrCodeInvalidProperty && amerrors.GetCode(err) != amerrors.ErrCodeInvalidInput {
			return err
		}
	}
	if err != nil {
		if l.opts.strict {
			return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("line %d: %v", l.line, err), err)
		}
		l.rejected++
		l.renderer.AddError(ui.ErrorEvent{Line: l.line, Err: err})
		return nil
	}

	l.records++
	l.sinceFlush++
	l.renderer.UpdateProgress(l.event(ui.StageReading))
	return nil
}

func (l *loader) flush(ctx context.Context) error {
	if l.idx.Pending() == 0 {
		l.sinceFlush = 0
		return nil
	}
	l.renderer.UpdateProgress(l.event(ui.StageFlushing))
	if err := l.idx.Flush(ctx); err != nil {
		return err
	}
	l.flushes++
	l.sinceFlush = 0
	l.renderer.UpdateProgress(l.event(ui.StageReading))
	return nil
}

func (l *loader) event(stage ui.Stage) ui.ProgressEvent {
	return ui.ProgressEvent{
		Stage:      stage,
		Records:    l.records,
		Bytes:      l.bytes,
		TotalBytes: l.total,
		Generation: l.idx.Generation(),
	}
}

// decodeRecord parses one JSON line into index arguments.
func decodeRecord(raw []byte) (int64, index.Properties, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var rec record
	if err := dec.Decode(&rec); err != nil {
		return 0, nil, false, fmt.Errorf("invalid JSON: %w", err)
	}
	if rec.ID == nil {
		return 0, nil, false, errors.New(`missing "id"`)
	}

	props := make(index.Properties, len(rec.Props))
	for k, v := range rec.Props {
		conv, err := jsonValue(v, true)
		if err != nil {
			return 0, nil, false, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = conv
	}
	return *rec.ID, props, rec.Replace, nil
}

// jsonValue converts a decoded JSON value into a property value. Arrays are
// allowed only at the top level.
func jsonValue(v any, top bool) (any, error) {
	switch t := v.(type) {
	case string, bool:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", t)
		}
		return f, nil
	case []any:
		if !top {
			return nil, errors.New("nested arrays are not supported")
		}
		out := make([]any, len(t))
		for i, e := range t {
			conv, err := jsonValue(e, false)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case nil:
		return nil, errors.New("null values are not supported")
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
