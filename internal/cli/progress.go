package cli

import (
	"time"

	"github.com/allyourbase/ayb-import/internal/migrate"
	"github.com/allyourbase/ayb-import/internal/sqlimport"
)

var (
	usersPhase = migrate.Phase{Name: "Auth users", Index: 1, Total: 2}
	dataPhase  = migrate.Phase{Name: "Data", Index: 2, Total: 2}
)

// phaseBridge turns the engine's progress callbacks into reporter phases.
// Callbacks arrive sequentially from Run, so no locking is needed.
type phaseBridge struct {
	r       migrate.ProgressReporter
	now     func() time.Time
	current *migrate.Phase
	started time.Time
	last    sqlimport.Progress
}

func newPhaseBridge(r migrate.ProgressReporter) *phaseBridge {
	return &phaseBridge{r: r, now: time.Now}
}

func (b *phaseBridge) OnProgress(p sqlimport.Progress) {
	phase := usersPhase
	if p.Phase == sqlimport.PhaseData {
		phase = dataPhase
	}
	if b.current == nil || b.current.Index != phase.Index {
		b.Finish()
		b.current = &phase
		b.started = b.now()
		b.r.StartPhase(phase, p.Total)
	}
	b.last = p
	b.r.Progress(phase, migrate.Step{Done: p.Processed, Total: p.Total, Percent: p.Percent})
}

// Finish completes the phase in progress, if any.
func (b *phaseBridge) Finish() {
	if b.current == nil {
		return
	}
	b.r.CompletePhase(*b.current, b.last.Processed, b.now().Sub(b.started))
	b.current = nil
}
