package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/crmupdater/internal/affinity"
	"github.com/teemow/crmupdater/internal/config"
	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/drive"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/google"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
	"github.com/teemow/crmupdater/internal/lookup"
	"github.com/teemow/crmupdater/internal/notify"
	"github.com/teemow/crmupdater/internal/pipeline"
	"github.com/teemow/crmupdater/internal/server"
)

// app holds the components wired from a Config.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	provider      *instrumentation.Provider
	processor     *pipeline.Processor
	serverContext *server.ServerContext
}

// newApp builds every component from cfg. ctx must outlive the app; it is
// used for token refreshes.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	log := logging.NewSlogAdapter(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return nil, err
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)

	a := &app{cfg: cfg, logger: logger, provider: provider}

	store := &google.CredentialStore{
		MountedPath: cfg.Credentials.MountedPath,
		TokenPath:   cfg.Credentials.TokenPath,
		Project:     cfg.Credentials.GCPProject,
		SecretName:  cfg.Credentials.SecretName,
		Metrics:     metrics,
		Logger:      log,
	}
	httpClient, err := store.HTTPClient(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}

	gmailClient, err := gmail.NewClient(ctx, httpClient, nil,
		gmail.WithLabel(cfg.Gmail.Label),
		gmail.WithMetrics(metrics))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	driveClient, err := drive.NewClient(ctx, httpClient, nil,
		drive.WithParentFolder(cfg.Drive.ParentFolderID),
		drive.WithShareDomain(cfg.Drive.ShareDomain),
		drive.WithMetrics(metrics))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if err := cfg.RequireOperator(); err != nil {
		log.Warn("error reports will be dropped", logging.Err(err))
	}
	reporter := notify.NewReporter(gmailClient, cfg.Notify.OperatorAddress, metrics, log)

	upserter, err := newUpserter(cfg, gmailClient, reporter, metrics, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	tracker, err := pipeline.NewTracker(cfg.Dedup.Size)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.processor, err = pipeline.NewProcessor(gmailClient, driveClient, upserter, reporter,
		pipeline.WithReportUnmatched(cfg.Notify.ReportUnmatched),
		pipeline.WithTracker(tracker),
		pipeline.WithMetrics(metrics),
		pipeline.WithAuditLogger(audit),
		pipeline.WithLogger(log))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.serverContext, err = server.NewServerContext(ctx, server.Dependencies{
		Pipeline: a.processor,
		Watcher:  gmailClient,
		Topic:    cfg.Gmail.Topic,
		Label:    cfg.Gmail.Label,
		Metrics:  metrics,
		Audit:    audit,
		Logger:   log,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	log.Info("components ready", "mode", upserter.Mode(), "label", cfg.Gmail.Label)
	return a, nil
}

// newUpserter selects the CRM upserter for cfg.Mode.
func newUpserter(cfg *config.Config, sender crm.Sender, reporter crm.Reporter, metrics *instrumentation.Metrics, log logging.Logger) (crm.Upserter, error) {
	opts := []crm.Option{crm.WithMetrics(metrics), crm.WithLogger(log)}

	switch cfg.Mode {
	case config.ModeDirect:
		client, err := affinity.NewClient(cfg.Affinity.APIKey,
			affinity.WithBaseURL(cfg.Affinity.BaseURL),
			affinity.WithListID(cfg.Affinity.ListID),
			affinity.WithMetrics(metrics))
		if err != nil {
			return nil, fmt.Errorf("failed to create Affinity client: %w", err)
		}
		return crm.NewDirectUpserter(client, reporter, opts...), nil

	case config.ModeRelay:
		resolver, err := lookup.NewClient(lookup.Config{
			APIKey:  cfg.Lookup.APIKey,
			BaseURL: cfg.Lookup.BaseURL,
			Model:   cfg.Lookup.Model,
			Metrics: metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create lookup client: %w", err)
		}
		upserter, err := crm.NewRelayUpserter(resolver, sender,
			cfg.Relay.ListIntakeAddress, cfg.Relay.NoteIntakeAddress, reporter, opts...)
		if err != nil {
			return nil, err
		}
		return upserter, nil

	default:
		return nil, fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
}

// Close stops the server context and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if a.serverContext != nil {
		_ = a.serverContext.Shutdown()
	}
	if err := a.provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}
