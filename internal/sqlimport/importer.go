package sqlimport

import (
	"context"
	"log/slog"
	"strings"
)

// Defaults applied by Run when the corresponding option is zero.
const (
	DefaultUsersBatchSize = 100
	DefaultOpsBatchSize   = 200
	DefaultProgressEvery  = 1500
)

// DefaultSensitiveTables are skipped when SkipAuthTables is set and no list is given.
var DefaultSensitiveTables = []string{"profiles", "user_roles"}

// Options configures Run.
type Options struct {
	SQL            string
	DryRun         bool
	SkipAuthTables bool

	// TotalStatements is an estimate used for progress until the dump has
	// been scanned once. Zero means unknown.
	TotalStatements int
	OnProgress      func(Progress)

	UsersBatchSize int
	OpsBatchSize   int
	ProgressEvery  int

	// SensitiveTables are skipped when SkipAuthTables is set.
	SensitiveTables []string
	// ExcludeTables are always skipped.
	ExcludeTables []string

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.UsersBatchSize <= 0 {
		o.UsersBatchSize = DefaultUsersBatchSize
	}
	if o.OpsBatchSize <= 0 {
		o.OpsBatchSize = DefaultOpsBatchSize
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.SensitiveTables == nil {
		o.SensitiveTables = DefaultSensitiveTables
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Run imports opts.SQL through applier in two sequential phases: users, then
// data. Every remote call is awaited before the next one is sent.
//
// It returns the merged result when every batch call succeeded, even if the
// result carries validation errors (Success is then false). A non-nil error
// means the run stopped early; it is an *AbortError wrapping the
// *TransportError or context error that caused it.
func Run(ctx context.Context, applier Applier, opts Options) (ImportResult, error) {
	if applier == nil {
		return ImportResult{}, ErrNoApplier
	}
	im := newImporter(applier, opts.withDefaults())

	res, total, err := im.migrateUsers(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	res, err = im.replayData(ctx, res, total)
	if err != nil {
		return ImportResult{}, err
	}
	res = Finalize(res)
	im.log.Info("import finished",
		"dry_run", im.opts.DryRun,
		"executed", res.Executed,
		"skipped", res.Skipped,
		"users_created", res.UsersCreated,
		"users_skipped", res.UsersSkipped,
		"errors", len(res.Errors),
	)
	return res, nil
}

type importer struct {
	applier   Applier
	opts      Options
	log       *slog.Logger
	progress  progressEmitter
	sensitive map[string]bool
	excluded  map[string]bool
}

func newImporter(applier Applier, opts Options) *importer {
	im := &importer{
		applier:  applier,
		opts:     opts,
		log:      opts.Logger,
		progress: progressEmitter{fn: opts.OnProgress, every: opts.ProgressEvery},
		excluded: tableSet(opts.ExcludeTables),
	}
	if opts.SkipAuthTables {
		im.sensitive = tableSet(opts.SensitiveTables)
	}
	return im
}

// tableSet normalizes configured table names to the form ExtractTableName
// returns: public tables unqualified, other schemas qualified.
func tableSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		n = strings.TrimPrefix(n, "public.")
		if n != "" {
			set[n] = true
		}
	}
	return set
}

// tableFilter reports why a data statement targeting table must be skipped.
func (im *importer) tableFilter(table string) (string, bool) {
	switch {
	case im.excluded[table]:
		return "excluded", true
	case im.sensitive[table]:
		return "sensitive", true
	}
	return "", false
}

// apply sends one request, aborting the run on a cancelled context or a
// failed call. acc is the aggregate merged so far.
func (im *importer) apply(ctx context.Context, req Request, batch int, acc ImportResult) (ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return acc, &AbortError{Phase: req.Phase, Batch: batch, Partial: Finalize(acc), Err: err}
	}
	res, err := im.applier.Apply(ctx, req)
	if err != nil {
		im.log.Error("apply call failed", "phase", req.Phase, "batch", batch, "error", err)
		return acc, &AbortError{Phase: req.Phase, Batch: batch, Partial: Finalize(acc), Err: err}
	}
	if len(res.Errors) > 0 {
		im.log.Warn("batch reported errors", "phase", req.Phase, "batch", batch, "errors", len(res.Errors))
	}
	return Merge(acc, res), nil
}
