package migrate

import (
	"strings"
	"testing"
	"time"

	"github.com/allyourbase/ayb-import/internal/testutil"
)

var (
	usersPhase = Phase{Name: "Auth users", Index: 1, Total: 2}
	dataPhase  = Phase{Name: "Data", Index: 2, Total: 2}
)

// lastFrame returns what a terminal shows for the final carriage-return
// frame of out.
func lastFrame(out string) string {
	out = strings.TrimRight(out, "\n")
	if i := strings.LastIndex(out, "\r"); i >= 0 {
		out = out[i+1:]
	}
	return strings.TrimRight(out, " ")
}

func TestCLIReporterDrawsBar(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.StartPhase(usersPhase, 10)
	r.Progress(usersPhase, Step{Done: 5, Total: 10, Percent: 25})

	testutil.Equal(t, "  [1/2] Auth users   [#####---------------]  25%  5/10", lastFrame(buf.String()))
	testutil.False(t, strings.Contains(buf.String(), "\n"), "progress must stay on one line")
}

func TestCLIReporterUnknownTotal(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.Progress(dataPhase, Step{Done: 7, Percent: 55})
	testutil.Equal(t, "  [2/2] Data         [###########---------]  55%  7", lastFrame(buf.String()))
}

func TestCLIReporterClampsPercent(t *testing.T) {
	testutil.Equal(t, "[--------------------]", bar(-5))
	testutil.Equal(t, "[####################]", bar(140))
	testutil.Equal(t, "[########------------]", bar(40))
}

func TestCLIReporterCompletePhase(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.StartPhase(dataPhase, 5000)
	r.Progress(dataPhase, Step{Done: 2500, Total: 5000, Percent: 70})
	r.CompletePhase(dataPhase, 5000, 2500*time.Millisecond)

	out := buf.String()
	testutil.True(t, strings.HasSuffix(out, "\n"))
	testutil.Equal(t, "  [2/2] Data         ✓ 5000 processed (2.5s)", lastFrame(out))
	testutil.Equal(t, 1, strings.Count(out, "\n"))
}

func TestCLIReporterEmptyPhase(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.StartPhase(usersPhase, 0)
	r.CompletePhase(usersPhase, 0, 5*time.Millisecond)
	testutil.Contains(t, buf.String(), "nothing to do (5ms)")
}

func TestCLIReporterWarnBreaksLine(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.StartPhase(dataPhase, 4)
	r.Progress(dataPhase, Step{Done: 2, Total: 4, Percent: 70})
	r.Warn("stopped in data batch 3")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	testutil.SliceLen(t, lines, 2)
	testutil.Contains(t, lines[0], "2/4")
	testutil.Equal(t, "  ⚠ stopped in data batch 3", lines[1])
}

func TestCLIReporterBlanksShorterFrames(t *testing.T) {
	var buf strings.Builder
	r := NewCLIReporter(&buf)

	r.Progress(dataPhase, Step{Done: 1000, Total: 1000, Percent: 100})
	long := buf.Len()
	buf.Reset()
	r.Progress(dataPhase, Step{Done: 1, Percent: 41})
	// The second frame is padded over the first.
	testutil.Equal(t, long, buf.Len())
}

func TestNopReporter(t *testing.T) {
	var r ProgressReporter = NopReporter{}
	r.StartPhase(usersPhase, 10)
	r.Progress(usersPhase, Step{Done: 5, Total: 10})
	r.CompletePhase(usersPhase, 10, time.Second)
	r.Warn("ignored")
}

func TestAnalysisReportFull(t *testing.T) {
	report := &AnalysisReport{
		SourceType:    "PostgreSQL dump",
		SourceInfo:    "backup.sql.gz, 7.2 MB",
		Statements:    9120,
		Tables:        12,
		Records:       8432,
		ClearTables:   12,
		AuthUsers:     347,
		AuthSkipped:   3,
		AuthOther:     690,
		Skipped:       676,
		Unparseable:   4,
		FileSizeBytes: 89 << 20,
		Warnings:      []string{"4 INSERT statements could not be parsed"},
	}
	var buf strings.Builder
	report.PrintReport(&buf)
	out := buf.String()

	for _, want := range []string{
		"AYB Import Report: PostgreSQL dump",
		"Source: backup.sql.gz, 7.2 MB",
		"  Statements:   9120\n",
		"  Tables:       12\n",
		"  Records:      8432\n",
		"  Table resets: 12\n",
		"  Auth users:   347\n",
		"  Users skipped: 3\n",
		"  Auth internal: 690 (managed by the destination)\n",
		"  Skipped:      676\n",
		"  Unparseable:  4\n",
		"  Size:         89.0 MB\n",
		"    - 4 INSERT statements could not be parsed\n",
	} {
		testutil.Contains(t, out, want)
	}
	testutil.Equal(t, 8444, report.Operations())
}

func TestAnalysisReportHidesZeroCounts(t *testing.T) {
	report := &AnalysisReport{SourceType: "PostgreSQL dump", Statements: 101, Tables: 3, Records: 100, Skipped: 1}
	var labels []string
	for _, f := range report.facts() {
		labels = append(labels, f.label)
	}
	testutil.Equal(t, "Statements,Tables,Records,Skipped", strings.Join(labels, ","))

	var buf strings.Builder
	report.PrintReport(&buf)
	testutil.False(t, strings.Contains(buf.String(), "Source:"))
	testutil.False(t, strings.Contains(buf.String(), "Warnings:"))
}

func TestValidationSummaryMatching(t *testing.T) {
	summary := &ValidationSummary{
		SourceLabel: "Dump (analysis)",
		TargetLabel: "Apply endpoint",
		Rows: []ValidationRow{
			{Label: "Auth users", SourceCount: 347, TargetCount: 347},
			{Label: "Operations", SourceCount: 8444, TargetCount: 8444},
		},
	}
	var buf strings.Builder
	summary.PrintSummary(&buf)
	out := buf.String()

	testutil.True(t, summary.AllMatch())
	testutil.SliceLen(t, summary.Mismatches(), 0)
	testutil.Contains(t, out, "Validation Summary")
	testutil.Contains(t, out, "  Count        Dump (analysis)    Apply endpoint\n")
	testutil.Contains(t, out, "  Operations              8444              8444  ok\n")
	testutil.Contains(t, out, "All counts match.")
}

func TestValidationSummaryMismatch(t *testing.T) {
	summary := &ValidationSummary{
		SourceLabel: "Dump (analysis)",
		TargetLabel: "Apply endpoint",
		Rows: []ValidationRow{
			{Label: "Auth users", SourceCount: 12, TargetCount: 12},
			{Label: "Operations", SourceCount: 100, TargetCount: 98},
		},
		Warnings: []string{"2 errors reported by the apply endpoint"},
	}
	var buf strings.Builder
	summary.PrintSummary(&buf)
	out := buf.String()

	testutil.False(t, summary.AllMatch())
	mismatches := summary.Mismatches()
	testutil.SliceLen(t, mismatches, 1)
	testutil.Equal(t, "Operations", mismatches[0].Label)
	testutil.Contains(t, out, "MISMATCH (-2)")
	testutil.False(t, strings.Contains(out, "All counts match"))
	testutil.Contains(t, out, "    - 2 errors reported by the apply endpoint\n")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{89 << 20, "89.0 MB"},
		{5 << 29, "2.5 GB"},
		{3 << 40, "3072.0 GB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			testutil.Equal(t, tt.want, FormatBytes(tt.in))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	testutil.Equal(t, "50ms", formatDuration(50*time.Millisecond))
	testutil.Equal(t, "999ms", formatDuration(999*time.Millisecond))
	testutil.Equal(t, "1.0s", formatDuration(time.Second))
	testutil.Equal(t, "14.1s", formatDuration(14100*time.Millisecond))
}
