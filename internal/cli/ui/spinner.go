package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// slowStep is the duration after which a finished step shows its elapsed time.
const slowStep = time.Second

// StepSpinner animates the local steps that run before an import, such as
// reading and analyzing the dump. With noSpin it prints plain lines.
type StepSpinner struct {
	w      io.Writer
	noSpin bool
	spin   *spinner.Spinner
	step   string
	began  time.Time
	now    func() time.Time
}

func NewStepSpinner(w io.Writer, noSpin bool) *StepSpinner {
	return &StepSpinner{w: w, noSpin: noSpin, now: time.Now}
}

func (s *StepSpinner) Start(step string) {
	s.step, s.began = step, s.now()
	if s.noSpin {
		fmt.Fprintf(s.w, "  %s", step)
		return
	}
	s.spin = spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(s.w))
	s.spin.Prefix = "  "
	s.spin.Suffix = " " + step
	s.spin.Start()
}

func (s *StepSpinner) Done() { s.finish(StyleSuccess.Render(SymbolCheck)) }

func (s *StepSpinner) Fail() { s.finish(StyleError.Render(SymbolCross)) }

// finish ends the current line with mark. Safe to call without Start.
func (s *StepSpinner) finish(mark string) {
	if s.spin != nil {
		s.spin.Stop()
		s.spin = nil
		fmt.Fprintf(s.w, "\r  %s", s.step)
	}
	suffix := ""
	if !s.began.IsZero() {
		if d := s.now().Sub(s.began); d >= slowStep {
			suffix = " " + StyleHint.Render(d.Round(100*time.Millisecond).String())
		}
	}
	fmt.Fprintf(s.w, " %s%s\n", mark, suffix)
	s.step, s.began = "", time.Time{}
}
