package cli

import (
	"fmt"

	"github.com/harun/afkd/internal/daemon"
	"github.com/harun/afkd/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the afkd daemon in the foreground",
	Long: `Run the afkd daemon in the foreground until SIGINT or SIGTERM.
The control API listens on the configured gateway address and the config
file is watched for log level changes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if pid, running := daemon.RunningPID(pidFile); running {
		return fmt.Errorf("daemon is already running with PID %d (PID file: %s)", pid, pidFile)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.Options{ConfigPath: loader.GetConfigPath()})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(cmd.Context())
}
