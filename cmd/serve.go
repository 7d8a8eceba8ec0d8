package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/crmupdater/internal/config"
	"github.com/teemow/crmupdater/internal/server"
)

type serveOptions struct {
	addr           string
	metricsEnabled bool
	metricsAddr    string
	enableMCP      bool
	yolo           bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Pub/Sub webhook server",
		Long: `Run the HTTP server that receives Gmail push notifications from Cloud
Pub/Sub on /pubsub and updates the CRM for each new message.

Configuration is read from --config (or $CRMUPDATER_CONFIG) and environment
variables such as CRM_MODE, AFFINITY_API_KEY and OPERATOR_EMAIL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Webhook listen address (default from config, or :$PORT)")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics", false, "Serve Prometheus metrics on a separate port (env: METRICS_ENABLED)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Metrics listen address (env: METRICS_ADDR)")
	cmd.Flags().BoolVar(&opts.enableMCP, "mcp", false, "Also expose the MCP tools over streamable HTTP on /mcp")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Register MCP tools that write to the CRM or mailbox")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	logger := newLogger(os.Stderr)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.metricsEnabled {
		cfg.Metrics.Enabled = true
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var webhookOpts []server.WebhookOption
	if opts.enableMCP {
		mcpSrv, err := newMCPServer(a.serverContext, !opts.yolo)
		if err != nil {
			return err
		}
		webhookOpts = append(webhookOpts, server.WithMCPServer(mcpSrv))
	}

	webhook, err := server.NewWebhookServer(a.serverContext, cfg.Server.Addr, webhookOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webhook.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		if !a.provider.Enabled() {
			logger.Warn("metrics server requested but instrumentation is disabled")
		} else {
			metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
				Addr:                    cfg.Metrics.Addr,
				InstrumentationProvider: a.provider,
			})
			if err != nil {
				return fmt.Errorf("failed to create metrics server: %w", err)
			}
			g.Go(func() error {
				return metricsServer.Run(gctx)
			})
		}
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// runContext returns a context cancelled on SIGINT or SIGTERM.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
