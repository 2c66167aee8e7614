package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/allyourbase/ayb-import/internal/cli/ui"
	"github.com/allyourbase/ayb-import/internal/config"
	"github.com/allyourbase/ayb-import/internal/journal"
	"github.com/allyourbase/ayb-import/internal/migrate"
	"github.com/allyourbase/ayb-import/internal/sqlimport"
	"github.com/spf13/cobra"
)

// maxPrintedErrors bounds the validation errors listed after a run.
const maxPrintedErrors = 10

var runCmd = &cobra.Command{
	Use:   "run <dump>",
	Short: "Import a dump through the apply endpoint",
	Long: `Import a plain-text PostgreSQL dump (pg_dump --data-only --inserts or similar).

The dump is read from a file, stdin ("-"), or an s3://bucket/key object
(see the [source] config section). Gzip input is detected automatically.
auth.users rows are migrated first, in batches; the ids the destination
assigns are then substituted into every data row that references them.
Other auth.* tables are never replayed.

Batches already applied stay applied if the import stops early. With
--journal, rerunning the same command resends only the unfinished batches.`,
	Example: `ayb-import run backup.sql
ayb-import run backup.sql.gz --dry-run
ayb-import run s3://backups/nightly.sql.gz --journal nightly.journal
pg_dump --data-only --inserts mydb | ayb-import run - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	runCmd.Flags().String("url", "", "Apply endpoint URL")
	runCmd.Flags().String("service-key", "", "Service key sent as the bearer token")
	runCmd.Flags().Bool("dry-run", false, "Validate every batch on the endpoint without writing")
	runCmd.Flags().Bool("skip-auth-tables", false, "Skip auth-owned tables (sensitive_tables) in the data phase")
	runCmd.Flags().Int("users-batch-size", 0, "Users per identity request (default from config)")
	runCmd.Flags().Int("ops-batch-size", 0, "Operations per data request (default from config)")
	runCmd.Flags().Int("timeout", 0, "Seconds to wait for each request (default from config)")
	runCmd.Flags().String("exclude-tables", "", "Comma-separated tables to leave out of the data phase")
	runCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	runCmd.Flags().String("journal", "", "SQLite file recording applied batches; rerunning with it skips them")
}

// flagOverrides collects the named flags the user actually set, in the form
// config.Load expects.
func flagOverrides(cmd *cobra.Command, names ...string) map[string]string {
	out := map[string]string{}
	for _, name := range names {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			out[name] = f.Value.String()
		}
	}
	return out
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := flagOverrides(cmd, "url", "service-key", "skip-auth-tables",
		"users-batch-size", "ops-batch-size", "timeout", "exclude-tables", "log-level")
	cfg, err := config.Load(configPath(cmd), flags)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func importOptions(cfg *config.Config, sql string, dryRun bool, logger *slog.Logger) sqlimport.Options {
	return sqlimport.Options{
		SQL:             sql,
		DryRun:          dryRun,
		SkipAuthTables:  cfg.Import.SkipAuthTables,
		UsersBatchSize:  cfg.Import.UsersBatchSize,
		OpsBatchSize:    cfg.Import.OpsBatchSize,
		ProgressEvery:   cfg.Import.ProgressEvery,
		SensitiveTables: cfg.Import.SensitiveTables,
		ExcludeTables:   cfg.Import.ExcludeTables,
		Logger:          logger,
	}
}

// dumpObjects returns the object store for s3:// dumps, or nil for local ones.
func dumpObjects(cfg *config.Config, arg string) (migrate.ObjectOpener, error) {
	if migrate.DetectInput(arg) != migrate.InputS3 {
		return nil, nil
	}
	opener, err := migrate.NewS3Opener(migrate.S3Config{
		Endpoint:  cfg.Source.S3Endpoint,
		Region:    cfg.Source.S3Region,
		AccessKey: cfg.Source.S3AccessKey,
		SecretKey: cfg.Source.S3SecretKey,
		UseSSL:    cfg.Source.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return opener, nil
}

// readDump opens the dump and runs the local analysis, with spinner steps
// on interactive terminals.
func readDump(cmd *cobra.Command, cfg *config.Config, arg string, quiet bool, opts func(string) sqlimport.Options) (migrate.Dump, *migrate.AnalysisReport, error) {
	objects, err := dumpObjects(cfg, arg)
	if err != nil {
		return migrate.Dump{}, nil, err
	}

	w := cmd.ErrOrStderr()
	if quiet {
		w = io.Discard
	}
	sp := ui.NewStepSpinner(w, quiet || !ui.ColorEnabled())

	sp.Start("Reading dump")
	dump, err := migrate.OpenDump(cmd.Context(), arg, cmd.InOrStdin(), objects)
	if err != nil {
		sp.Fail()
		return migrate.Dump{}, nil, err
	}
	sp.Done()

	sp.Start("Analyzing statements")
	report := sqlimport.Analyze(opts(dump.Text))
	report.SourceInfo = dump.Info()
	report.FileSizeBytes = dump.SizeBytes
	sp.Done()
	return dump, report, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Apply.RequireEndpoint(); err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOut := jsonOutput(cmd)
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := newLogger(stderr, cfg.Logging.Level, cfg.Logging.Format)

	build := func(sql string) sqlimport.Options { return importOptions(cfg, sql, dryRun, logger) }
	dump, report, err := readDump(cmd, cfg, args[0], jsonOut, build)
	if err != nil {
		return err
	}
	if !jsonOut {
		report.PrintReport(stderr)
	}

	remote, err := sqlimport.NewHTTPApplier(sqlimport.HTTPConfig{
		URL:        cfg.Apply.URL,
		ServiceKey: cfg.Apply.ServiceKey,
		JWTSecret:  cfg.Apply.JWTSecret,
		TokenTTL:   cfg.Apply.TokenLifetime(),
		Timeout:    cfg.Apply.RequestTimeout(),
	})
	if err != nil {
		return err
	}
	var applier sqlimport.Applier = remote
	var journaled *sqlimport.JournaledApplier
	if path, _ := cmd.Flags().GetString("journal"); path != "" {
		j, err := journal.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer j.Close()
		if counts, err := j.Counts(cmd.Context()); err == nil && !jsonOut {
			if n := counts[sqlimport.PhaseUsers] + counts[sqlimport.PhaseData]; n > 0 {
				fmt.Fprintf(stderr, "  Resuming from %s (%d batches recorded)\n", path, n)
			}
		}
		journaled = sqlimport.NewJournaledApplier(remote, j, logger)
		applier = journaled
	}

	var reporter migrate.ProgressReporter = migrate.NopReporter{}
	if !jsonOut {
		reporter = migrate.NewCLIReporter(stderr)
	}
	bridge := newPhaseBridge(reporter)

	opts := build(dump.Text)
	opts.TotalStatements = report.Statements
	opts.OnProgress = bridge.OnProgress

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sqlimport.Run(ctx, applier, opts)
	if err == nil {
		bridge.Finish()
	}
	if journaled != nil && journaled.Replayed() > 0 && !jsonOut {
		fmt.Fprintf(stderr, "  %s %d batches already applied, skipped via journal\n",
			ui.StyleHint.Render(ui.SymbolArrow), journaled.Replayed())
	}
	if err != nil {
		var abort *sqlimport.AbortError
		if errors.As(err, &abort) {
			if jsonOut {
				writeAbortJSON(stdout, abort)
			} else {
				reporter.Warn(abortNotice(abort, journaled != nil))
				printResult(stderr, abort.Partial, dryRun)
			}
		}
		return fmt.Errorf("import failed: %w", err)
	}

	if jsonOut {
		if err := json.NewEncoder(stdout).Encode(res); err != nil {
			return err
		}
	} else {
		printResult(stdout, res, dryRun)
		sqlimport.BuildValidationSummary(report, res).PrintSummary(stdout)
	}
	if !res.Success {
		return fmt.Errorf("import finished with %d errors", len(res.Errors))
	}
	return nil
}

func writeAbortJSON(w io.Writer, abort *sqlimport.AbortError) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"aborted": true,
		"phase":   abort.Phase,
		"batch":   abort.Batch,
		"error":   abort.Err.Error(),
		"partial": abort.Partial,
	})
}

func printResult(w io.Writer, res sqlimport.ImportResult, dryRun bool) {
	title := "Import complete"
	if dryRun {
		title = "Dry run complete"
	}
	fmt.Fprintln(w)
	if res.Success {
		fmt.Fprintln(w, ui.StatusLine(ui.StatusOK, ui.StyleBold.Render(title)))
	} else {
		fmt.Fprintln(w, ui.StatusLine(ui.StatusWarn, ui.StyleBold.Render(title+" with errors")))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Users created:  %d\n", res.UsersCreated)
	fmt.Fprintf(w, "  Users skipped:  %d\n", res.UsersSkipped)
	fmt.Fprintf(w, "  Executed:       %d\n", res.Executed)
	fmt.Fprintf(w, "  Skipped:        %d\n", res.Skipped)

	if n := len(res.Errors); n > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Errors (%d):\n", n)
		for i, e := range res.Errors {
			if i == maxPrintedErrors {
				fmt.Fprintf(w, "    %s\n", ui.StyleHint.Render(fmt.Sprintf("... and %d more (use --json for all)", n-maxPrintedErrors)))
				break
			}
			fmt.Fprintln(w, "  "+ui.StatusLine(ui.StatusFail, e.String()))
		}
	}
}

func abortNotice(abort *sqlimport.AbortError, journaled bool) string {
	msg := fmt.Sprintf("stopped in %s batch %d", abort.Phase, abort.Batch)
	if journaled {
		return msg + "; rerun with the same --journal to resume"
	}
	return msg + "; batches before it were applied"
}
