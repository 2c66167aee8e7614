package sqlimport

import (
	"context"
	"fmt"

	"github.com/allyourbase/ayb-import/internal/sqldump"
	"github.com/google/uuid"
)

// dryRunNamespace seeds the destination ids synthesized during dry runs.
var dryRunNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://allyourbase.io/ayb-import/dry-run"))

// DryRunUserID is the destination id a dry run assigns to sourceID when the
// endpoint does not return one. It is stable across runs.
func DryRunUserID(sourceID string) string {
	return uuid.NewSHA1(dryRunNamespace, []byte(sourceID)).String()
}

// collectUsers scans the whole dump once. It returns the users to create, a
// partial result counting users skipped locally, and the exact statement count.
func (im *importer) collectUsers() ([]sqldump.UserRecord, ImportResult, int) {
	local := NewResult()
	seen := map[string]bool{}
	var users []sqldump.UserRecord

	n := 0
	for stmt := range sqldump.Statements(im.opts.SQL) {
		n++
		im.progress.tick(n, func() Progress { return scanProgress(n, im.opts.TotalStatements) })
		if !sqldump.IsAuthSubjectInsert(stmt) {
			continue
		}
		u, ok := sqldump.ParseAuthUserInsert(stmt)
		switch {
		case !ok:
			local.UsersSkipped++
			local.Details = appendDetail(local.Details,
				fmt.Sprintf("users: statement %d: skipped auth.users insert without id or email", stmt.Index+1))
		case u.IsAnonymous:
			local.UsersSkipped++
		case seen[u.ID]:
			local.UsersSkipped++
			local.Details = appendDetail(local.Details,
				fmt.Sprintf("users: statement %d: duplicate user id %s", stmt.Index+1, u.ID))
		default:
			seen[u.ID] = true
			users = append(users, u)
		}
	}
	im.progress.emit(scanProgress(n, n))
	return users, local, n
}

// migrateUsers runs the users phase and returns the aggregate so far, which
// carries the completed user mapping, and the dump's statement count.
func (im *importer) migrateUsers(ctx context.Context) (ImportResult, int, error) {
	users, acc, total := im.collectUsers()
	im.log.Info("users phase starting", "users", len(users), "skipped", acc.UsersSkipped, "statements", total)

	size := im.opts.UsersBatchSize
	batch := 0
	for start := 0; start < len(users); start += size {
		chunk := users[start:min(start+size, len(users))]
		batch++
		var err error
		acc, err = im.apply(ctx, Request{
			Phase:          PhaseUsers,
			DryRun:         im.opts.DryRun,
			SkipAuthTables: im.opts.SkipAuthTables,
			Users:          chunk,
		}, batch, acc)
		if err != nil {
			return ImportResult{}, 0, err
		}
		sent := start + len(chunk)
		im.log.Debug("users batch applied", "batch", batch, "users", len(chunk), "sent", sent)
		im.progress.emit(usersProgress(sent, len(users)))
	}
	if len(users) == 0 {
		im.progress.emit(usersProgress(0, 0))
	}

	if im.opts.DryRun {
		acc = withDryRunMapping(acc, users)
	}
	im.log.Info("users phase complete",
		"created", acc.UsersCreated, "skipped", acc.UsersSkipped, "mapped", len(acc.UserMapping))
	return acc, total, nil
}

// withDryRunMapping fills in a destination id for every user the endpoint
// left unmapped.
func withDryRunMapping(acc ImportResult, users []sqldump.UserRecord) ImportResult {
	synth := NewResult()
	for _, u := range users {
		if _, ok := acc.UserMapping[u.ID]; ok {
			continue
		}
		if synth.UserMapping == nil {
			synth.UserMapping = map[string]string{}
		}
		synth.UserMapping[u.ID] = DryRunUserID(u.ID)
	}
	if synth.UserMapping == nil {
		return acc
	}
	return Merge(acc, synth)
}

func appendDetail(details []string, d string) []string {
	if len(details) >= MaxDetails {
		return details
	}
	return append(details, d)
}
