package ui

import (
	"fmt"
	"strings"
)

// Status selects the symbol and color of a status line.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

// StatusLine renders an indented "symbol text" line without a newline.
func StatusLine(s Status, text string) string {
	switch s {
	case StatusWarn:
		return "  " + StyleWarning.Render(SymbolWarning) + " " + text
	case StatusFail:
		return "  " + StyleError.Render(SymbolCross) + " " + text
	default:
		return "  " + StyleSuccess.Render(SymbolCheck) + " " + text
	}
}

// FormatError renders err for stderr, followed by hints when there are any.
func FormatError(err error, hints ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleBoldRed.Render("Error:"), err)
	if len(hints) == 0 {
		return b.String()
	}
	b.WriteString("\n" + StyleHint.Render("  Try:") + "\n")
	for _, h := range hints {
		fmt.Fprintf(&b, "    %s %s\n", StyleHint.Render(SymbolArrow), h)
	}
	return b.String()
}
