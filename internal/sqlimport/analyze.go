package sqlimport

import (
	"fmt"
	"maps"
	"slices"

	"github.com/allyourbase/ayb-import/internal/migrate"
	"github.com/allyourbase/ayb-import/internal/sqldump"
)

// Analyze runs both passes locally, without contacting the apply endpoint,
// and reports what Run would send for the same options.
func Analyze(opts Options) *migrate.AnalysisReport {
	opts = opts.withDefaults()
	opts.OnProgress = nil
	im := newImporter(nil, opts)

	users, local, total := im.collectUsers()
	report := &migrate.AnalysisReport{
		SourceType:  "PostgreSQL dump",
		Statements:  total,
		AuthUsers:   len(users),
		AuthSkipped: local.UsersSkipped,
	}

	remap := newRemapper(nil)
	filtered := map[string]bool{}
	tables := map[string]bool{}
	var b dataBatcher
	for stmt := range sqldump.Statements(opts.SQL) {
		if sqldump.IsOtherAuthStatement(stmt) {
			report.AuthOther++
		}
		switch im.step(stmt, remap, filtered, &b) {
		case stepQueued:
			op := b.ops[len(b.ops)-1]
			tables[op.Table()] = true
			if op.Kind() == OpDeleteAll {
				report.ClearTables++
			} else {
				report.Records++
			}
		case stepUnparseable:
			report.Unparseable++
		}
		b.ops = b.ops[:0]
	}
	report.Tables = len(tables)
	report.Skipped = b.skipped

	if report.Unparseable > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d data statements could not be parsed and will be skipped", report.Unparseable))
	}
	if report.AuthSkipped > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d auth users are anonymous, duplicated, or missing an id or email and will not be created", report.AuthSkipped))
	}
	for _, table := range slices.Sorted(maps.Keys(filtered)) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("table %s is excluded by configuration", table))
	}
	return report
}

// BuildValidationSummary compares an analysis with the result of the run
// that followed it.
func BuildValidationSummary(report *migrate.AnalysisReport, res ImportResult) *migrate.ValidationSummary {
	summary := &migrate.ValidationSummary{
		SourceLabel: "Dump (analysis)",
		TargetLabel: "Apply endpoint",
		Rows: []migrate.ValidationRow{
			{Label: "Auth users", SourceCount: report.AuthUsers + report.AuthSkipped, TargetCount: res.UsersCreated + res.UsersSkipped},
			{Label: "Operations", SourceCount: report.Operations(), TargetCount: res.Executed},
			{Label: "Skipped", SourceCount: report.Skipped, TargetCount: res.Skipped},
		},
	}
	if n := len(res.Errors); n > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%d errors reported by the apply endpoint", n))
	}
	return summary
}
