package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// IndexInfo is one row of the info command.
type IndexInfo struct {
	Index      string `json:"index"`
	Backend    string `json:"backend"`
	Path       string `json:"path,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
	Generation uint64 `json:"generation"`
	Entries    int    `json:"entries"`
	Entities   int    `json:"entities"`
}

// StatusRenderer prints index summaries.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor || DetectNoColor())}
}

// Render prints one aligned row per index under a header.
func (r *StatusRenderer) Render(dataDir string, infos []IndexInfo) error {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render("Indexes in "+dataDir))
	if len(infos) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("  (none)"))
		return nil
	}

	headers := []string{"INDEX", "BACKEND", "ENTRIES", "ENTITIES", "SIZE"}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Index,
			info.Backend,
			fmt.Sprintf("%d", info.Entries),
			fmt.Sprintf("%d", info.Entities),
			formatBytes(info.SizeBytes),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style.Width(widths[i]).Render(c)
		}
		return "  " + strings.Join(parts, "  ")
	}

	_, _ = fmt.Fprintln(r.out, line(headers, r.styles.Label))
	for _, row := range rows {
		_, _ = fmt.Fprintln(r.out, line(row, lipgloss.NewStyle()))
	}
	return nil
}

// RenderJSON prints infos as indented JSON.
func (r *StatusRenderer) RenderJSON(infos []IndexInfo) error {
	if infos == nil {
		infos = []IndexInfo{}
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
