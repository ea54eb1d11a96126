package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "!"
	SymbolSkipped = "-"
)

// Styles holds the lipgloss styles used by the renderer. Without a
// terminal every style renders text unchanged.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Class   lipgloss.Style
	Member  lipgloss.Style
}

// NewStyles returns styles for a terminal or, when color is false, plain styles.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Class:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Member:  lipgloss.NewStyle().Underline(true),
	}
}

// FormatHeader formats a plain-text header: "# text" for level 1.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}
