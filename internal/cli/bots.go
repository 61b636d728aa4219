package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/afkd/pkg/gateway"
	"github.com/spf13/cobra"
)

var (
	gatewayAddr   string
	startPort     int
	startBotName  string
	startVersion  string
	historyLimit  int
	statusShowLog bool
)

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "Manage bots through a running daemon",
	Long: `Manage bots through the control API of a running afkd daemon.
The API address and shared secret are taken from the config file.`,
}

var botsStartCmd = &cobra.Command{
	Use:   "start <identity> <server[:port]>",
	Short: "Start a bot and wait until it is online",
	Args:  cobra.ExactArgs(2),
	RunE:  runBotsStart,
}

var botsStopCmd = &cobra.Command{
	Use:   "stop <identity>",
	Short: "Stop a bot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsStop,
}

var botsStatusCmd = &cobra.Command{
	Use:   "status [identity]",
	Short: "Show one bot, or every active bot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBotsStatus,
}

var botsCommandCmd = &cobra.Command{
	Use:   "command <identity> <text...>",
	Short: "Send chat text or a slash command as the bot",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runBotsCommand,
}

var botsHistoryCmd = &cobra.Command{
	Use:   "history <identity>",
	Short: "List a bot's archived runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotsHistory,
}

func init() {
	botsCmd.PersistentFlags().StringVar(&gatewayAddr, "addr", "", "control API base URL (default from config)")

	botsStartCmd.Flags().IntVar(&startPort, "port", 0, "server port, overrides the one in the address")
	botsStartCmd.Flags().StringVar(&startBotName, "name", "", "in-game bot name (default <identity>_Bot)")
	botsStartCmd.Flags().StringVar(&startVersion, "game-version", "", "game protocol version (default 1.21.4)")
	botsStatusCmd.Flags().BoolVar(&statusShowLog, "logs", false, "print the bot's event log")
	botsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum number of runs")

	botsCmd.AddCommand(botsStartCmd, botsStopCmd, botsStatusCmd, botsCommandCmd, botsHistoryCmd)
	rootCmd.AddCommand(botsCmd)
}

func clientFromConfig() (*gatewayClient, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	base := gatewayAddr
	if base == "" {
		base = gatewayURL(cfg)
	}
	return newGatewayClient(strings.TrimRight(base, "/"), cfg.Gateway.SharedSecret), nil
}

func runBotsStart(cmd *cobra.Command, args []string) error {
	client, err := clientFromConfig()
	if err != nil {
		return err
	}

	view, err := client.start(cmd.Context(), gateway.StartRequest{
		Identity: args[0],
		Server:   args[1],
		Port:     startPort,
		BotName:  startBotName,
		Version:  startVersion,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Bot %s is online\n", args[0])
	if view != nil {
		printStatus(cmd, *view, false)
	}
	return nil
}

func runBotsStop(cmd *cobra.Command, args []string) error {
	client, err := clientFromConfig()
	if err != nil {
		return err
	}
	if err := client.stop(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Bot %s stopped\n", args[0])
	return nil
}

func runBotsStatus(cmd *cobra.Command, args []string) error {
	client, err := clientFromConfig()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		view, err := client.status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printStatus(cmd, *view, statusShowLog)
		return nil
	}

	views, err := client.list(cmd.Context())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		cmd.Println("No active bots.")
		return nil
	}
	for i, view := range views {
		if i > 0 {
			cmd.Println()
		}
		printStatus(cmd, view, statusShowLog)
	}
	return nil
}

func runBotsCommand(cmd *cobra.Command, args []string) error {
	client, err := clientFromConfig()
	if err != nil {
		return err
	}
	if err := client.command(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
		return err
	}
	cmd.Println("Sent")
	return nil
}

func runBotsHistory(cmd *cobra.Command, args []string) error {
	client, err := clientFromConfig()
	if err != nil {
		return err
	}

	runs, err := client.history(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Printf("No runs recorded for %s.\n", args[0])
		return nil
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %s  %-12s %s  %s", run.StartedAt.Local().Format(time.DateTime), run.RunID,
			run.FinalState, run.Server, formatDuration(run.EndedAt.Sub(run.StartedAt)))
		if run.Reason != "" {
			line += "  " + run.Reason
		}
		cmd.Println(line)
	}
	return nil
}

func printStatus(cmd *cobra.Command, view gateway.StatusView, withLogs bool) {
	if !view.Active {
		cmd.Printf("%s: inactive\n", view.Identity)
		return
	}

	cmd.Printf("%s: %s\n", view.Identity, view.State)
	cmd.Printf("  Server:   %s (%s)\n", view.Server, view.Version)
	cmd.Printf("  Bot:      %s\n", view.BotName)
	cmd.Printf("  Health:   %.1f  Food: %.1f\n", view.Health, view.Food)
	cmd.Printf("  Position: %d %d %d", view.Position.X, view.Position.Y, view.Position.Z)
	if view.Dimension != "" {
		cmd.Printf(" in %s", view.Dimension)
	}
	cmd.Println()
	cmd.Printf("  Uptime:   %s\n", formatDuration(time.Duration(view.UptimeSeconds)*time.Second))
	if view.ReconnectAttempts > 0 {
		cmd.Printf("  Reconnects: %d\n", view.ReconnectAttempts)
	}
	if view.Error != "" {
		cmd.Printf("  Error:    %s\n", view.Error)
	}

	if withLogs {
		for _, entry := range view.Logs {
			cmd.Printf("  [%s] %-10s %s\n", entry.Timestamp.Local().Format(time.TimeOnly), entry.Type, entry.Message)
		}
	}
}
