package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/allyourbase/ayb-import/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved ayb-import configuration as TOML.
Shows the result of merging defaults, ayb-import.toml, and AYB_IMPORT_* environment
variables. Credentials are masked.`,
	RunE: runConfig,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long: `Get a specific configuration value by dotted key path.
Examples: apply.url, import.ops_batch_size, import.exclude_tables`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in ayb-import.toml",
	Long: `Set a configuration value in the ayb-import.toml config file.
Creates the file if it doesn't exist. List values are comma-separated.`,
	Example: `ayb-import config set apply.url https://<project>/functions/v1/sql-import
ayb-import config set import.ops_batch_size 500
ayb-import config set import.exclude_tables audit_log,events`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default ayb-import.toml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
}

func targetConfigPath(cmd *cobra.Command) string {
	if p := configPath(cmd); p != "" {
		return p
	}
	return config.DefaultPath
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd), nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = cfg.Redacted()

	if jsonOutput(cmd) {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	}
	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd), nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	value, err := config.GetValue(cfg, args[0])
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"key": args[0], "value": value})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := targetConfigPath(cmd)
	key, value := args[0], args[1]

	if err := config.SetValue(path, key, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	shown := value
	if config.IsSecretKey(key) {
		shown = "****"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, shown)
	fmt.Fprintf(cmd.OutOrStdout(), "Written to %s\n", path)

	// Only warn: values may be set one at a time.
	if _, err := config.Load(path, nil); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: config file has errors: %v\n", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := targetConfigPath(cmd)
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.GenerateDefault(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
