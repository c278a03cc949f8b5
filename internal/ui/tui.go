package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *loadModel
	tracker *Tracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-terminal output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newLoadModel(tracker, cfg.Title, GetStyles(cfg.NoColor)),
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(ev ProgressEvent) {
	r.tracker.Update(ev)
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(ev ErrorEvent) {
	r.tracker.Reject()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Println(r.model.styles.Warning.Render(fmt.Sprintf("line %d: %v", ev.Line, ev.Err)))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(s))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program, started := r.program, r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// The program ignored Quit; cancel its context.
		r.cancel()
		<-r.done
	}
	r.cancel()
	return nil
}

type completeMsg Summary
type tickMsg time.Time

// loadModel is the bubbletea model of a running load.
type loadModel struct {
	tracker  *Tracker
	title    string
	styles   Styles
	width    int
	spinner  spinner.Model
	bar      progress.Model
	complete bool
	summary  Summary
}

func newLoadModel(tracker *Tracker, title string, styles Styles) *loadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	return &loadModel{
		tracker: tracker,
		title:   title,
		styles:  styles,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
	}
}

// Init implements tea.Model.
func (m *loadModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *loadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.summary = Summary(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *loadModel) View() string {
	if m.complete {
		return m.renderSummary()
	}

	snap := m.tracker.Snapshot()
	var lines []string
	lines = append(lines, m.renderStage(snap))
	if snap.TotalBytes > 0 {
		lines = append(lines, fmt.Sprintf("%s  %s",
			m.bar.ViewAs(snap.Fraction),
			m.styles.Active.Render(fmt.Sprintf("%3.0f%%", snap.Fraction*100))))
	}
	lines = append(lines, m.styles.Label.Render(fmt.Sprintf(
		"%d records  •  %d flushes  •  generation %d", snap.Records, snap.Flushes, snap.Generation)))
	rate := fmt.Sprintf("Speed: %.0f/s", snap.Rate)
	if snap.Peak > 0 {
		rate += fmt.Sprintf(" (peak %.0f)", snap.Peak)
	}
	lines = append(lines, m.styles.Dim.Render(rate))
	if snap.Rejected > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d rejected", snap.Rejected)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(m.title),
		m.styles.Panel.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n")),
	) + "\n"
}

func (m *loadModel) renderStage(snap Snapshot) string {
	parts := make([]string, 0, 2)
	for _, s := range []Stage{StageReading, StageFlushing} {
		var icon string
		style := m.styles.Dim
		if s == snap.Stage {
			icon, style = m.spinner.View(), m.styles.Active
		} else {
			icon = "○"
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}
	return strings.Join(parts, m.styles.Dim.Render("  ⇄  "))
}

func (m *loadModel) renderSummary() string {
	s := m.summary
	lines := []string{
		m.styles.Success.Render("✓ Load complete"),
		"",
		m.styles.Label.Render("Index:      ") + m.styles.Value.Render(fmt.Sprintf("%s (%s)", s.Index, s.Backend)),
		m.styles.Label.Render("Records:    ") + m.styles.Value.Render(fmt.Sprintf("%d", s.Records)),
		m.styles.Label.Render("Generation: ") + m.styles.Value.Render(fmt.Sprintf("%d", s.Generation)),
		m.styles.Label.Render("Duration:   ") + m.styles.Value.Render(formatDuration(s.Duration)),
	}
	if s.Rejected > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d rejected", s.Rejected)))
	}
	return m.styles.Panel.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats d for humans.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ Renderer = (*TUIRenderer)(nil)
