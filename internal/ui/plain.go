package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for pipes and CI logs.
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	lastStage Stage
	lastLine  time.Time
	interval  time.Duration
}

// NewPlainRenderer creates a plain text renderer. Reading updates are
// throttled to one line per second; stage changes always print.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:       cfg.Output,
		lastStage: -1,
		interval:  time.Second,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if ev.Stage == r.lastStage && now.Sub(r.lastLine) < r.interval {
		return
	}
	r.lastStage = ev.Stage
	r.lastLine = now

	switch {
	case ev.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %d records - %s\n", ev.Stage.Tag(), ev.Records, ev.Message)
	case ev.TotalBytes > 0:
		pct := float64(ev.Bytes) / float64(ev.TotalBytes) * 100
		_, _ = fmt.Fprintf(r.out, "[%s] %d records (%.0f%%)\n", ev.Stage.Tag(), ev.Records, pct)
	default:
		_, _ = fmt.Fprintf(r.out, "[%s] %d records\n", ev.Stage.Tag(), ev.Records)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "WARN: line %d: %v\n", ev.Line, ev.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d records into %s (%s) in %s, generation %d",
		s.Records, s.Index, s.Backend, s.Duration.Round(10*time.Millisecond), s.Generation)
	if s.Rejected > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d rejected)", s.Rejected)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
