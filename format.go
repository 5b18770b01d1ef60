package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Color modes accepted by [view] color.
const (
	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

// useColor decides whether output to w is styled. "auto" styles only
// terminals and honors NO_COLOR.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case colorAlways:
		return true
	case colorNever:
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// palette holds the styles used for one output stream.
type palette struct {
	Header  lipgloss.Style
	Scope   lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
	Changed lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
}

// newPalette builds styles bound to w. Without color every style renders
// its text unchanged.
func newPalette(w io.Writer, color bool) palette {
	r := lipgloss.NewRenderer(w)

	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return palette{
		Header:  r.NewStyle().Bold(true),
		Scope:   r.NewStyle().Foreground(lipgloss.Color("39")),
		Added:   r.NewStyle().Foreground(lipgloss.Color("42")),
		Removed: r.NewStyle().Foreground(lipgloss.Color("203")),
		Changed: r.NewStyle().Foreground(lipgloss.Color("220")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("244")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04:05")
	}

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer. headers and each
// row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	printStyledTable(w, lipgloss.NewStyle(), headers, rows)
}

// printStyledTable is printTable with the header row rendered in style.
// Widths are computed on the raw text so styling does not skew alignment.
func printStyledTable(w io.Writer, style lipgloss.Style, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	fmt.Fprintln(w, style.Render(padRow(headers, widths)))

	for _, row := range rows {
		fmt.Fprintln(w, padRow(row, widths))
	}
}

// padRow joins cells padded to widths. The last cell is not padded.
func padRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	return strings.Join(parts, "  ")
}

// yesNo renders a boolean column.
func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
