package ui

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/allyourbase/ayb-import/internal/testutil"
)

func TestFormatError(t *testing.T) {
	out := FormatError(errors.New("apply.url is required"))
	testutil.Contains(t, out, "Error:")
	testutil.Contains(t, out, "apply.url is required")
	testutil.False(t, strings.Contains(out, "Try:"), "hints section without hints")

	out = FormatError(errors.New("apply.url is required"),
		"ayb-import config set apply.url <url>",
		"export AYB_IMPORT_URL=<url>",
	)
	testutil.Contains(t, out, "Try:")
	testutil.Contains(t, out, SymbolArrow+" ayb-import config set apply.url <url>")
	testutil.Contains(t, out, SymbolArrow+" export AYB_IMPORT_URL=<url>")
	testutil.True(t, strings.Index(out, "Try:") > strings.Index(out, "Error:"))
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		status Status
		symbol string
	}{
		{StatusOK, SymbolCheck},
		{StatusWarn, SymbolWarning},
		{StatusFail, SymbolCross},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			line := StatusLine(tt.status, "Import complete")
			testutil.True(t, strings.HasPrefix(line, "  "), "line %q is not indented", line)
			testutil.Contains(t, line, tt.symbol)
			testutil.True(t, strings.HasSuffix(line, " Import complete"), "line %q", line)
		})
	}
}

func TestStepSpinnerNoSpin(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStepSpinner(&buf, true)

	sp.Start("Reading dump")
	sp.Done()
	sp.Start("Analyzing statements")
	sp.Fail()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	testutil.SliceLen(t, lines, 2)
	testutil.Contains(t, lines[0], "Reading dump")
	testutil.Contains(t, lines[0], SymbolCheck)
	testutil.Contains(t, lines[1], "Analyzing statements")
	testutil.Contains(t, lines[1], SymbolCross)
}

func TestStepSpinnerShowsSlowSteps(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStepSpinner(&buf, true)
	clock := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	sp.now = func() time.Time { return clock }

	sp.Start("Reading dump")
	clock = clock.Add(2340 * time.Millisecond)
	sp.Done()
	testutil.Contains(t, buf.String(), "2.3s")

	buf.Reset()
	sp.Start("Analyzing statements")
	clock = clock.Add(300 * time.Millisecond)
	sp.Done()
	testutil.False(t, strings.Contains(buf.String(), "300ms"), "fast step shows no duration: %q", buf.String())
}

func TestStepSpinnerWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStepSpinner(&buf, true)
	sp.Done()
	sp.Fail()
	testutil.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestColorEnabled(t *testing.T) {
	t.Run("NO_COLOR set", func(t *testing.T) {
		t.Setenv("NO_COLOR", "1")
		testutil.False(t, ColorEnabled())
	})
	t.Run("NO_COLOR empty", func(t *testing.T) {
		// Presence alone disables color (https://no-color.org/).
		t.Setenv("NO_COLOR", "")
		testutil.False(t, ColorEnabled())
	})
	t.Run("dumb terminal", func(t *testing.T) {
		t.Setenv("NO_COLOR", "placeholder")
		os.Unsetenv("NO_COLOR")
		t.Setenv("TERM", "dumb")
		testutil.False(t, ColorEnabled())
	})
	t.Run("no terminal", func(t *testing.T) {
		t.Setenv("NO_COLOR", "placeholder")
		os.Unsetenv("NO_COLOR")
		testutil.False(t, ColorEnabled())
	})
}

func TestForcedRenderer(t *testing.T) {
	r := ForcedRenderer()
	testutil.NotNil(t, r)
	testutil.True(t, r == ForcedRenderer(), "renderer is not shared")

	out := r.NewStyle().Bold(true).Render("test")
	testutil.Contains(t, out, "test")
	testutil.Contains(t, out, "\x1b[")
}

func TestStylesKeepText(t *testing.T) {
	for name, render := range map[string]func(...string) string{
		"bold":     StyleBold.Render,
		"bold red": StyleBoldRed.Render,
		"success":  StyleSuccess.Render,
		"warning":  StyleWarning.Render,
		"error":    StyleError.Render,
		"hint":     StyleHint.Render,
	} {
		t.Run(name, func(t *testing.T) {
			testutil.Contains(t, render("hello"), "hello")
		})
	}
}
