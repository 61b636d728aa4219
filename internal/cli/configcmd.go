package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration afkd would run with, after defaults,
the config file and AFKD_* environment variables are merged.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets instead of masking them")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if !showSecrets {
		if cfg.Gateway.SharedSecret != "" {
			cfg.Gateway.SharedSecret = redacted
		}
		if cfg.Bridge.Secret != "" {
			cfg.Bridge.Secret = redacted
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
