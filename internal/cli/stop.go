package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/afkd/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the afkd daemon",
	Long: `Stop the afkd daemon gracefully.
Sends SIGTERM to the daemon, waits for every bot to disconnect, and falls
back to SIGKILL after the timeout.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for daemon to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	return stopDaemon(cmd, daemon.PIDFilePath(cfg.DataDir), time.Duration(stopTimeout)*time.Second)
}

func stopDaemon(cmd *cobra.Command, pidFile string, timeout time.Duration) error {
	pid, running := daemon.RunningPID(pidFile)
	if !running {
		return fmt.Errorf("daemon is not running (PID file: %s)", pidFile)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			cmd.Println("Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	cmd.Println("Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	// A killed daemon cannot clean up after itself.
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	cmd.Println("Daemon killed")
	return nil
}
