// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/pdiddy/batchblast/pkg/types"
)

// Theme defines colors and icons for terminal progress.
type Theme struct {
	Name    string
	Primary lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style

	IconInfo  string
	IconDone  string
	IconError string
}

// DefaultTheme returns the colored theme.
func DefaultTheme() Theme {
	return Theme{
		Name:      "default",
		Primary:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),  // blue
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("34")),  // green
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // red
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("242")), // gray
		Bold:      lipgloss.NewStyle().Bold(true),
		IconInfo:  "●",
		IconDone:  "✓",
		IconError: "✗",
	}
}

// MonoTheme returns a theme without colors for pipes and log files.
func MonoTheme() Theme {
	return Theme{
		Name:      "mono",
		Primary:   lipgloss.NewStyle(),
		Success:   lipgloss.NewStyle(),
		Error:     lipgloss.NewStyle(),
		Muted:     lipgloss.NewStyle(),
		Bold:      lipgloss.NewStyle(),
		IconInfo:  "*",
		IconDone:  "+",
		IconError: "x",
	}
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalSink renders events with a Theme. The final "job complete"
// headline is drawn with the success style.
type TerminalSink struct {
	w      io.Writer
	theme  Theme
	label  string
	mu     *sync.Mutex
	doneAt string
}

// NewTerminalSink returns a sink writing to w. label, when set, is shown
// before every headline.
func NewTerminalSink(w io.Writer, theme Theme, label, completeHeadline string) *TerminalSink {
	return &TerminalSink{w: w, theme: theme, label: label, mu: &sync.Mutex{}, doneAt: completeHeadline}
}

// Share returns a sink for another job writing to the same terminal.
func (s *TerminalSink) Share(label string) *TerminalSink {
	return &TerminalSink{w: s.w, theme: s.theme, label: label, mu: s.mu, doneAt: s.doneAt}
}

// Render formats ev without writing it.
func (s *TerminalSink) Render(ev types.ProgressEvent) string {
	icon, style := s.theme.IconInfo, s.theme.Primary
	switch {
	case ev.Kind == types.EventError:
		icon, style = s.theme.IconError, s.theme.Error
	case ev.Headline == s.doneAt:
		icon, style = s.theme.IconDone, s.theme.Success
	}

	var sb strings.Builder
	sb.WriteString(style.Render(icon))
	sb.WriteString(" ")
	if s.label != "" {
		sb.WriteString(s.theme.Bold.Render("[" + s.label + "]"))
		sb.WriteString(" ")
	}
	sb.WriteString(style.Render(ev.Headline))
	sb.WriteString("\n")
	for _, d := range ev.Details {
		sb.WriteString("    ")
		sb.WriteString(s.theme.Muted.Render(d))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Emit writes the rendered event.
func (s *TerminalSink) Emit(ev types.ProgressEvent) error {
	out := s.Render(ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, out)
	return err
}
