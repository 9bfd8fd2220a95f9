package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wookiee/ai-assistant/internal/config"
	"github.com/wookiee/ai-assistant/internal/server"
	"github.com/wookiee/ai-assistant/pkg/chat"
	"github.com/wookiee/ai-assistant/pkg/commsutil"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/digest"
	"github.com/wookiee/ai-assistant/pkg/export"
	"github.com/wookiee/ai-assistant/pkg/jobs"
)

func newDigestCmd() *cobra.Command {
	var (
		dryRun   bool
		viaComms bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:       "digest morning|evening",
		Short:     "Send the morning or evening digest to every linked user",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(digest.KindMorning), string(digest.KindEvening)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := digest.ParseKind(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if viaComms {
				return runDigestViaComms(ctx, cmd, kind, dryRun)
			}
			return runDigestLocal(ctx, cmd, kind, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose digests but print them instead of sending")
	cmd.Flags().BoolVar(&viaComms, "via-comms", false, "ask a running service to run the batch over COMMS")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall batch timeout")
	return cmd
}

func runDigestLocal(ctx context.Context, cmd *cobra.Command, kind digest.Kind, dryRun bool) error {
	return withPool(ctx, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		if err := cfg.ValidateForCRM(); err != nil {
			return err
		}
		crmClient, err := server.NewCRMClient(cfg)
		if err != nil {
			return err
		}

		var sender chat.Sender
		recorder := &chat.RecordingSender{}
		if dryRun {
			sender = recorder
		} else {
			if err := cfg.ValidateForChat(); err != nil {
				return err
			}
			if sender, err = server.NewSender(cfg); err != nil {
				return err
			}
		}

		repo := db.NewRepository(pool)
		runner := digest.NewRunner(digest.RunnerParams{
			Users:    repo,
			Composer: digest.NewComposer(crmClient, repo, cfg.DefaultTimezone),
			Sender:   sender,
			SendRate: cfg.DigestSendRate,
		})
		res, err := runner.Run(ctx, kind)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, m := range recorder.Sent() {
			fmt.Fprintf(out, "--- chat %d ---\n%s\n\n", m.ChatID, m.Text)
		}
		fmt.Fprintf(out, "%s digest: %d sent, %d failed\n", kind, res.Processed, res.Failed)
		return nil
	})
}

func runDigestViaComms(ctx context.Context, cmd *cobra.Command, kind digest.Kind, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return fmt.Errorf("connect COMMS: %w", err)
	}
	defer nc.Close()

	method := jobs.MethodMorningDigest
	if kind == digest.KindEvening {
		method = jobs.MethodEveningDigest
	}
	resp, err := jobs.Request(ctx, nc, cfg.JobsSubject, method, jobs.DigestParams{DryRun: dryRun})
	if err != nil {
		return err
	}
	if !resp.Ok {
		if resp.Error == nil {
			return fmt.Errorf("%s failed without error detail", method)
		}
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := commsutil.EncodePayload(resp.Result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newExportUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-users [path]",
		Short: "Export active Bitrix24 employees into a SQLite file (default " + export.DefaultPath + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForCRM(); err != nil {
				return err
			}
			client, err := server.NewCRMClient(cfg)
			if err != nil {
				return err
			}
			path := export.DefaultPath
			if len(args) > 0 && args[0] != "" {
				path = args[0]
			}
			res, err := export.Export(cmd.Context(), client, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d employees to %s (%d stored) in %s\n",
				res.Fetched, res.Path, res.Stored, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newCheckWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-webhook",
		Short: "Call user.get once to verify the Bitrix24 webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForCRM(); err != nil {
				return err
			}
			client, err := server.NewCRMClient(cfg)
			if err != nil {
				return err
			}
			n, err := client.CheckWebhook(cmd.Context())
			if err != nil {
				return fmt.Errorf("webhook check failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook OK: %d users on the first page\n", n)
			return nil
		},
	}
}
