// Package migrate provides the shared reporting infrastructure for dump
// imports: phase progress, pre-flight analysis and post-run validation.
package migrate

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Phase names one stage of an import and its position in the run.
type Phase struct {
	Name  string
	Index int // 1-based
	Total int
}

func (p Phase) tag() string {
	return fmt.Sprintf("[%d/%d] %-12s", p.Index, p.Total, p.Name)
}

// Step is a progress update within a phase. Percent is the position in the
// whole run (0-100), so the users phase never reaches 100.
type Step struct {
	Done    int
	Total   int // 0 when unknown
	Percent int
}

// ProgressReporter receives progress updates from an import.
type ProgressReporter interface {
	StartPhase(phase Phase, total int)
	Progress(phase Phase, step Step)
	CompletePhase(phase Phase, done int, elapsed time.Duration)
	Warn(msg string)
}

const barWidth = 20

// CLIReporter draws a single rewritten progress line per phase.
type CLIReporter struct {
	mu    sync.Mutex
	w     io.Writer
	width int  // length of the last line drawn, for blanking
	open  bool // a line is drawn without its newline
}

func NewCLIReporter(w io.Writer) *CLIReporter {
	return &CLIReporter{w: w}
}

func (r *CLIReporter) draw(line string) {
	pad := max(r.width-len(line), 0)
	fmt.Fprintf(r.w, "\r%s%s", line, strings.Repeat(" ", pad))
	r.width = len(line)
	r.open = true
}

func (r *CLIReporter) endLine() {
	if r.open {
		fmt.Fprintln(r.w)
	}
	r.open = false
	r.width = 0
}

func (r *CLIReporter) StartPhase(phase Phase, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	r.draw("  " + phase.tag())
}

func (r *CLIReporter) Progress(phase Phase, s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf("  %s %s %3d%%", phase.tag(), bar(s.Percent), clampPercent(s.Percent))
	if s.Total > 0 {
		line += fmt.Sprintf("  %d/%d", s.Done, s.Total)
	} else if s.Done > 0 {
		line += fmt.Sprintf("  %d", s.Done)
	}
	r.draw(line)
}

func (r *CLIReporter) CompletePhase(phase Phase, done int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := fmt.Sprintf("%d processed", done)
	if done == 0 {
		status = "nothing to do"
	}
	r.draw(fmt.Sprintf("  %s ✓ %s (%s)", phase.tag(), status, formatDuration(elapsed)))
	r.endLine()
}

// Warn prints msg on its own line, finishing any progress line first.
func (r *CLIReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	fmt.Fprintf(r.w, "  ⚠ %s\n", msg)
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}

func bar(percent int) string {
	filled := clampPercent(percent) * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

// NopReporter discards all progress updates.
type NopReporter struct{}

func (NopReporter) StartPhase(Phase, int)                   {}
func (NopReporter) Progress(Phase, Step)                    {}
func (NopReporter) CompletePhase(Phase, int, time.Duration) {}
func (NopReporter) Warn(string)                             {}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// AnalysisReport is the pre-flight view of a dump: what the import would
// send, computed without contacting the endpoint.
type AnalysisReport struct {
	SourceType    string   `json:"sourceType"`
	SourceInfo    string   `json:"sourceInfo"` // "backup.sql.gz, 7.2 MB"
	Statements    int      `json:"statements"`
	Tables        int      `json:"tables"`
	Records       int      `json:"records"`
	ClearTables   int      `json:"clearTables"`
	AuthUsers     int      `json:"authUsers"`
	AuthSkipped   int      `json:"authSkipped"`
	AuthOther     int      `json:"authOther"`
	Skipped       int      `json:"skipped"`
	Unparseable   int      `json:"unparseable"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Operations is the number of operations the data phase will send.
func (r *AnalysisReport) Operations() int {
	return r.Records + r.ClearTables
}

type fact struct {
	label string
	value string
}

// facts lists the report lines in print order. Optional counts are left out
// when zero.
func (r *AnalysisReport) facts() []fact {
	out := []fact{
		{"Statements", fmt.Sprint(r.Statements)},
		{"Tables", fmt.Sprint(r.Tables)},
		{"Records", fmt.Sprint(r.Records)},
	}
	optional := func(label string, n int, suffix string) {
		if n > 0 {
			out = append(out, fact{label, fmt.Sprint(n) + suffix})
		}
	}
	optional("Table resets", r.ClearTables, "")
	optional("Auth users", r.AuthUsers, "")
	optional("Users skipped", r.AuthSkipped, "")
	optional("Auth internal", r.AuthOther, " (managed by the destination)")
	out = append(out, fact{"Skipped", fmt.Sprint(r.Skipped)})
	optional("Unparseable", r.Unparseable, "")
	if r.FileSizeBytes > 0 {
		out = append(out, fact{"Size", FormatBytes(r.FileSizeBytes)})
	}
	return out
}

// PrintReport writes the report as aligned "Label: value" lines.
func (r *AnalysisReport) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "\n  AYB Import Report: %s\n\n", r.SourceType)
	if r.SourceInfo != "" {
		fmt.Fprintf(w, "  Source: %s\n\n", r.SourceInfo)
	}
	for _, f := range r.facts() {
		fmt.Fprintf(w, "  %-13s %s\n", f.label+":", f.value)
	}
	fmt.Fprintln(w)
	printWarnings(w, r.Warnings)
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, "  Warnings:")
	for _, msg := range warnings {
		fmt.Fprintf(w, "    - %s\n", msg)
	}
	fmt.Fprintln(w)
}

// FormatBytes renders b with a binary unit (B, KB, MB, GB).
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	value := float64(b) / unit
	suffix := "KB"
	for _, next := range []string{"MB", "GB"} {
		if value < unit {
			break
		}
		value /= unit
		suffix = next
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

// ValidationSummary sets the counts predicted by analysis against the counts
// the endpoint reported.
type ValidationSummary struct {
	SourceLabel string
	TargetLabel string
	Rows        []ValidationRow
	Warnings    []string
}

type ValidationRow struct {
	Label       string
	SourceCount int
	TargetCount int
}

func (row ValidationRow) status() string {
	if d := row.TargetCount - row.SourceCount; d != 0 {
		return fmt.Sprintf("MISMATCH (%+d)", d)
	}
	return "ok"
}

// Mismatches returns the rows whose counts differ.
func (v *ValidationSummary) Mismatches() []ValidationRow {
	var out []ValidationRow
	for _, row := range v.Rows {
		if row.SourceCount != row.TargetCount {
			out = append(out, row)
		}
	}
	return out
}

func (v *ValidationSummary) AllMatch() bool {
	return len(v.Mismatches()) == 0
}

// PrintSummary writes one row per count with the label column sized to the
// longest label.
func (v *ValidationSummary) PrintSummary(w io.Writer) {
	width := len("Count")
	for _, row := range v.Rows {
		width = max(width, len(row.Label))
	}
	fmt.Fprintf(w, "\n  Validation Summary\n\n")
	fmt.Fprintf(w, "  %-*s  %16s  %16s\n", width, "Count", v.SourceLabel, v.TargetLabel)
	for _, row := range v.Rows {
		fmt.Fprintf(w, "  %-*s  %16d  %16d  %s\n", width, row.Label, row.SourceCount, row.TargetCount, row.status())
	}
	fmt.Fprintln(w)
	if v.AllMatch() {
		fmt.Fprintf(w, "  All counts match.\n\n")
	}
	printWarnings(w, v.Warnings)
}
