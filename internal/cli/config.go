// config.go implements "genstory config init" and "genstory config validate".
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or check the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long: `Write the built-in defaults to --config (or ./` + config.DefaultFileName + `).
Secrets are left out; set GEMINI_API_KEY or OPENAI_API_KEY instead.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var forceFlag bool

// ErrInvalidConfig is returned by "config validate" when errors were found.
var ErrInvalidConfig = errors.New("configuration has errors")

func init() {
	configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configFlag
	if path == "" {
		path = config.DefaultFileName
	}
	if _, err := os.Stat(path); err == nil && !forceFlag {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteConfig(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return reportValidation(cmd.OutOrStdout(), cfg.Validate())
}

func reportValidation(w io.Writer, res config.ValidationResult) error {
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error:   %s\n", e)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if !res.Valid {
		return ErrInvalidConfig
	}
	fmt.Fprintln(w, "Configuration is valid.")
	return nil
}
