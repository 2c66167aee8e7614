package cli

import (
	"encoding/json"

	"github.com/allyourbase/ayb-import/internal/sqlimport"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dump>",
	Short: "Report what an import of the dump would do",
	Long: `Scan a dump locally and report the statements, auth users, and data
operations an import would send, without contacting the apply endpoint.
Table filters from the config file and flags are applied.`,
	Example: `ayb-import analyze backup.sql
ayb-import analyze backup.sql.gz --exclude-tables audit_log --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("skip-auth-tables", false, "Skip auth-owned tables (sensitive_tables) in the data phase")
	analyzeCmd.Flags().String("exclude-tables", "", "Comma-separated tables to leave out of the data phase")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jsonOut := jsonOutput(cmd)
	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	_, report, err := readDump(cmd, cfg, args[0], jsonOut, func(sql string) sqlimport.Options {
		return importOptions(cfg, sql, false, logger)
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
	}
	report.PrintReport(cmd.OutOrStdout())
	return nil
}
