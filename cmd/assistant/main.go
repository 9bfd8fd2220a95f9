// Package main is the entrypoint for the ai-assistant binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wookiee/ai-assistant/internal/config"
	"github.com/wookiee/ai-assistant/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "assistant: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. serve is the default.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assistant",
		Short: "Telegram assistant for Bitrix24 tasks and calendar",
		Long: `Links Telegram accounts to Bitrix24 users and sends daily task and
calendar digests.

Environment: BITRIX24_WEBHOOK, TELEGRAM_BOT_TOKEN, DATABASE_URL (required for
serve), DATABASE_SCHEMA, COMMS_URL, REDIS_URL, CRON_SECRET. See README.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the assistant (HTTP webhook, jobs, COMMS)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return server.Run()
			},
		},
		newMigrateCmd(),
		newEnsureDBCmd(),
		newClearCmd(),
		newDigestCmd(),
		newExportUsersCmd(),
		newCheckWebhookCmd(),
	)
	return root
}

// loadConfig loads config and installs the logger for one-shot commands.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	return cfg, nil
}
