package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/harun/afkd/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show whether the afkd daemon is running, with its PID and uptime.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	return printDaemonStatus(cmd, daemon.PIDFilePath(cfg.DataDir))
}

func printDaemonStatus(cmd *cobra.Command, pidFile string) error {
	pid, running := daemon.RunningPID(pidFile)
	if !running {
		cmd.Println("Status: stopped")
		return nil
	}

	cmd.Println("Status: running")
	cmd.Printf("PID: %d\n", pid)

	// The PID file is written at startup, so its mtime marks the start time.
	if info, err := os.Stat(pidFile); err == nil {
		cmd.Printf("Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
