// Package ui holds the ayb-import terminal styles, status symbols, and
// TTY detection shared by every command.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// BrandEmoji prefixes the version line and the root help page.
const BrandEmoji = "\U0001F47E"

const (
	SymbolCheck   = "✓"
	SymbolCross   = "✗"
	SymbolWarning = "⚠"
	SymbolArrow   = "→"
)

// 4-bit ANSI colors; lipgloss downgrades them for the detected profile.
var (
	ColorRed    = lipgloss.Color("1")
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorCyan   = lipgloss.Color("6")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	StyleSuccess = fg(ColorGreen)
	StyleWarning = fg(ColorYellow)
	StyleError   = fg(ColorRed)
	StyleBoldRed = fg(ColorRed).Bold(true)
	StyleBold    = lipgloss.NewStyle().Bold(true)
	StyleHint    = lipgloss.NewStyle().Faint(true)
)

// ForcedRenderer returns a shared renderer that always emits ANSI codes, for
// callers that have already decided color is wanted.
var ForcedRenderer = sync.OnceValue(func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(os.Stderr)
	r.SetColorProfile(termenv.ANSI)
	return r
})

// ColorEnabled reports whether stderr is a color-capable terminal. NO_COLOR
// (any value) and TERM=dumb turn color off.
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
