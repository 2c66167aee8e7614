package sqlimport

import (
	"context"
	"fmt"

	"github.com/allyourbase/ayb-import/internal/sqldump"
)

// dataBatcher accumulates operations in dump order together with the
// statements skipped since the last flush.
type dataBatcher struct {
	ops     []Operation
	skipped int
	details []string
}

func (b *dataBatcher) skip(detail string) {
	b.skipped++
	if detail != "" {
		b.details = appendDetail(b.details, detail)
	}
}

func (b *dataBatcher) note(detail string) {
	b.details = appendDetail(b.details, detail)
}

// local returns the skips and notes gathered since the last flush.
func (b *dataBatcher) local() ImportResult {
	return skipped(b.skipped, b.details...)
}

func (b *dataBatcher) reset() {
	b.ops = nil
	b.skipped = 0
	b.details = nil
}

// replayData walks the dump a second time and sends every eligible data
// statement to the apply endpoint in batches. acc is the users phase result.
func (im *importer) replayData(ctx context.Context, acc ImportResult, total int) (ImportResult, error) {
	remap := newRemapper(acc.UserMapping)
	mapping := remap.mapping
	size := im.opts.OpsBatchSize
	im.log.Info("data phase starting", "statements", total, "batch_size", size)

	var b dataBatcher
	batch := 0
	processed := 0
	filtered := map[string]bool{}

	flush := func() error {
		acc = Merge(acc, b.local())
		if len(b.ops) == 0 {
			b.reset()
			return nil
		}
		batch++
		var err error
		acc, err = im.apply(ctx, Request{
			Phase:          PhaseData,
			DryRun:         im.opts.DryRun,
			SkipAuthTables: im.opts.SkipAuthTables,
			UserMapping:    mapping,
			Operations:     b.ops,
		}, batch, acc)
		if err != nil {
			return err
		}
		im.log.Debug("data batch applied", "batch", batch, "operations", len(b.ops), "processed", processed)
		b.reset()
		return nil
	}

	for stmt := range sqldump.Statements(im.opts.SQL) {
		processed++
		im.step(stmt, remap, filtered, &b)
		if len(b.ops) >= size {
			if err := flush(); err != nil {
				return ImportResult{}, err
			}
			im.progress.emit(dataProgress(processed, total))
		} else {
			im.progress.tick(processed, func() Progress { return dataProgress(processed, total) })
		}
	}
	if err := flush(); err != nil {
		return ImportResult{}, err
	}
	im.progress.emit(dataProgress(total, total))
	im.log.Info("data phase complete", "batches", batch, "executed", acc.Executed, "skipped", acc.Skipped)
	return acc, nil
}

type stepOutcome uint8

const (
	stepQueued stepOutcome = iota
	stepSkipped
	stepFiltered
	stepUnparseable
)

// step classifies one statement and either queues an operation or records a skip.
func (im *importer) step(stmt sqldump.Statement, remap *remapper, filtered map[string]bool, b *dataBatcher) stepOutcome {
	class := sqldump.Classify(stmt)
	switch class {
	case sqldump.ClassInsert, sqldump.ClassDeleteAll:
	default:
		b.skip("")
		return stepSkipped
	}

	table := sqldump.ExtractTableName(stmt)
	if reason, ok := im.tableFilter(table); ok {
		detail := ""
		if !filtered[table] {
			filtered[table] = true
			detail = fmt.Sprintf("data: skipped %s table %s", reason, table)
		}
		b.skip(detail)
		return stepFiltered
	}

	if class == sqldump.ClassDeleteAll {
		if t, ok := sqldump.ParseDeleteAll(stmt); ok {
			b.ops = append(b.ops, ClearTableOp(t))
			return stepQueued
		}
	} else if rec, ok := sqldump.ParseInsertToRecord(stmt); ok {
		rec, warnings := remap.record(rec)
		for _, w := range warnings {
			b.note(w)
		}
		b.ops = append(b.ops, InsertOp(rec))
		return stepQueued
	}
	b.skip(fmt.Sprintf("data: statement %d: skipped unparseable %s into %s", stmt.Index+1, class, table))
	return stepUnparseable
}
