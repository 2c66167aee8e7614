package cli

import (
	"errors"
	"net/http"

	"github.com/allyourbase/ayb-import/internal/config"
	"github.com/allyourbase/ayb-import/internal/sqlimport"
	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "ayb-import",
	Short: "Replay a PostgreSQL dump into an Allyourbase project",
	Long: `ayb-import reads a plain-text PostgreSQL dump, migrates its auth.users rows
through the project's apply endpoint, then replays the data statements with
every user reference rewritten to the newly assigned ids.

Preview what a dump contains:
  ayb-import analyze backup.sql

Import it:
  ayb-import run backup.sql --url https://<project>/functions/v1/sql-import`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to ayb-import.toml config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	initHelp()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func configPath(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}

// Hints suggests fixes for errors a user can resolve from the command line.
func Hints(err error) []string {
	var te *sqlimport.TransportError
	switch {
	case errors.Is(err, config.ErrNoEndpoint):
		return []string{
			"ayb-import config set apply.url https://<project>/functions/v1/sql-import",
			"ayb-import run <dump> --url <endpoint> --service-key <key>",
		}
	case errors.As(err, &te) && (te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden):
		return []string{"check apply.service_key or apply.jwt_secret (ayb-import config)"}
	case errors.As(err, &te) && te.StatusCode == 0:
		return []string{"check that apply.url is reachable", "raise apply.timeout for slow endpoints"}
	}
	return nil
}
