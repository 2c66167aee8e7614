package cli

import (
	"github.com/allyourbase/ayb-import/internal/cli/ui"
	"github.com/charmbracelet/lipgloss"
)

// colorEnabled returns true if stderr is a terminal and color should be used.
func colorEnabled() bool {
	return ui.ColorEnabled()
}

// paint renders text with style when color is on. It uses the forced-ANSI
// renderer because the caller has already decided color is wanted.
func paint(text string, color bool, style func(lipgloss.Style) lipgloss.Style) string {
	if !color {
		return text
	}
	return style(ui.ForcedRenderer().NewStyle()).Render(text)
}

func bold(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Bold(true) })
}

func dim(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Faint(true) })
}

func cyan(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorCyan) })
}

func green(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorGreen) })
}

func boldCyan(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Bold(true).Foreground(ui.ColorCyan) })
}
