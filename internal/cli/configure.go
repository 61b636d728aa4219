package cli

import (
	"fmt"
	"os"

	"github.com/harun/afkd/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up afkd.
The wizard asks for the game bridge, the control API port and shared secret,
and the log level. Existing values are offered as defaults.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	var base *config.Config
	if _, err := os.Stat(loader.GetConfigPath()); err == nil {
		existing, err := loader.Load()
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		base = existing
	}

	cfg, err := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout()).Run(base)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("\nConfiguration saved to: %s\n", loader.GetConfigPath())
	cmd.Println("\nYou can now start afkd with: afkd serve")
	return nil
}
