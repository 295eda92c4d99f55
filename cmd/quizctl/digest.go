package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/quizdesk/internal/app"
)

func newDigestCmd() *cobra.Command {
	var reminders bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send today's question digest now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, cfg.Server.ShutdownTimeout)

			send, what := a.Digests.SendDigest, "digest"
			if reminders {
				send, what = a.Digests.SendReminders, "reminder"
			}
			n, err := send(ctx)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d %s messages\n", n, what)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reminders, "reminders", false, "send pending-answer reminders instead of the digest")
	return cmd
}
