package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/crmupdater/internal/config"
)

func newWatchCmd() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register the Gmail push watch",
		Long: `Register (or renew) the Gmail users.watch subscription that publishes
mailbox changes to the configured Pub/Sub topic. Gmail expires watches after
seven days, so run this from a scheduler or call /refresh_watch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext(cmd)
			defer cancel()

			logger := newLogger(os.Stderr)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if topic != "" {
				cfg.Gmail.Topic = topic
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res, err := a.serverContext.RefreshWatch(ctx)
			if err != nil {
				return fmt.Errorf("failed to register watch on %s: %w", cfg.Gmail.Topic, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watch registered on %s\n", cfg.Gmail.Topic)
			fmt.Fprintf(out, "History ID: %d\n", res.HistoryID)
			fmt.Fprintf(out, "Expires:    %s\n", res.Expiration.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Pub/Sub topic (default from config or GMAIL_TOPIC)")

	return cmd
}
