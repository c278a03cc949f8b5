// Package ui renders bulk-load progress and index summaries in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of a bulk load.
type Stage int

const (
	// StageReading parses input records and buffers them.
	StageReading Stage = iota
	// StageFlushing commits the buffered batch.
	StageFlushing
	// StageComplete means the load has finished.
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageReading:
		return "Reading"
	case StageFlushing:
		return "Flushing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Tag returns the short stage tag used in plain output.
func (s Stage) Tag() string {
	switch s {
	case StageReading:
		return "READ"
	case StageFlushing:
		return "FLUSH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports load progress.
type ProgressEvent struct {
	Stage Stage
	// Records is the number of input records buffered so far.
	Records int
	// Bytes and TotalBytes measure input consumed; TotalBytes is 0 when unknown.
	Bytes      int64
	TotalBytes int64
	// Generation is the index generation after the last flush.
	Generation uint64
	Message    string
}

// ErrorEvent reports a rejected input record.
type ErrorEvent struct {
	Line int
	Err  error
}

// Summary describes a finished load.
type Summary struct {
	Index      string
	Backend    string
	Records    int
	Rejected   int
	Flushes    int
	Generation uint64
	Duration   time.Duration
}

// Renderer displays load progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(summary Summary)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the header shown above the progress panel.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, Title: "batchidx load"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer for pipes, CI and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
