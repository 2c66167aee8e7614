package sqlimport

import "fmt"

// Phase names an import phase. The values are also the wire phase names.
type Phase string

const (
	PhaseUsers Phase = "users"
	PhaseData  Phase = "data"
)

// Progress is a snapshot handed to Options.OnProgress.
type Progress struct {
	Phase     Phase  `json:"phase"`
	Processed int    `json:"processed"`
	Total     int    `json:"total,omitempty"` // 0 when unknown
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
}

// Overall progress is weighted: the users phase covers 0-40% (statement scan
// 0-10%, user batches 10-40%) and the data phase covers 40-100%.
const (
	scanEndPercent  = 10
	usersEndPercent = 40
)

// scaled maps done/total onto [lo, hi]. An unknown total reports lo.
func scaled(done, total, lo, hi int) int {
	if total <= 0 {
		return lo
	}
	done = min(max(done, 0), total)
	return lo + (hi-lo)*done/total
}

type progressEmitter struct {
	fn    func(Progress)
	every int
}

func (p progressEmitter) emit(pr Progress) {
	if p.fn != nil {
		p.fn(pr)
	}
}

// tick emits only every p.every statements.
func (p progressEmitter) tick(processed int, build func() Progress) {
	if p.fn == nil || p.every <= 0 || processed%p.every != 0 {
		return
	}
	p.fn(build())
}

func scanProgress(processed, total int) Progress {
	return Progress{
		Phase:     PhaseUsers,
		Processed: processed,
		Total:     total,
		Percent:   scaled(processed, total, 0, scanEndPercent),
		Message:   fmt.Sprintf("Scanning dump for users (%d statements)", processed),
	}
}

func usersProgress(sent, total int) Progress {
	pct := usersEndPercent
	if total > 0 {
		pct = scaled(sent, total, scanEndPercent, usersEndPercent)
	}
	return Progress{
		Phase:     PhaseUsers,
		Processed: sent,
		Total:     total,
		Percent:   pct,
		Message:   fmt.Sprintf("Migrated %d/%d users", sent, total),
	}
}

func dataProgress(processed, total int) Progress {
	return Progress{
		Phase:     PhaseData,
		Processed: processed,
		Total:     total,
		Percent:   scaled(processed, total, usersEndPercent, 100),
		Message:   fmt.Sprintf("Processed %d/%d statements", processed, total),
	}
}
