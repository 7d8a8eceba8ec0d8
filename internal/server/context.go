package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
	"github.com/teemow/crmupdater/internal/pipeline"
)

// Pipeline runs update jobs. *pipeline.Processor satisfies it.
type Pipeline interface {
	Run(ctx context.Context, trig pipeline.Trigger) (*pipeline.Outcome, error)
	ProcessMessage(ctx context.Context, msg *gmail.InboundMessage) *pipeline.Outcome
	Upserter() crm.Upserter
}

// Watcher registers the mailbox push watch. *gmail.Client satisfies it.
type Watcher interface {
	Watch(ctx context.Context, topic string, labels ...string) (*gmail.WatchResult, error)
}

// Dependencies are the wired components shared by the webhook and MCP surfaces.
type Dependencies struct {
	Pipeline Pipeline
	Watcher  Watcher
	// Topic is the Pub/Sub topic the watch publishes to.
	Topic string
	// Label scopes the watch. Empty means gmail.DefaultLabel.
	Label   string
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  logging.Logger
}

// ServerContext holds the components built at startup. They are read-only
// after construction; only the shutdown flag changes.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Dependencies

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context
func NewServerContext(ctx context.Context, deps Dependencies) (*ServerContext, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Watcher == nil {
		return nil, fmt.Errorf("watcher is required")
	}
	if deps.Label == "" {
		deps.Label = gmail.DefaultLabel
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Pipeline returns the update pipeline.
func (sc *ServerContext) Pipeline() Pipeline {
	return sc.deps.Pipeline
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.deps.Metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.deps.Audit
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() logging.Logger {
	return sc.deps.Logger
}

// RefreshWatch re-registers the mailbox watch on the configured topic.
func (sc *ServerContext) RefreshWatch(ctx context.Context) (*gmail.WatchResult, error) {
	return sc.deps.Watcher.Watch(ctx, sc.deps.Topic, sc.deps.Label)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
