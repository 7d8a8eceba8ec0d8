package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
	"github.com/teemow/crmupdater/internal/pipeline"
	"github.com/teemow/crmupdater/internal/pubsub"
)

const (
	// DefaultWebhookAddr is the default listen address of the webhook server.
	DefaultWebhookAddr = ":8080"

	// maxPushBodyBytes bounds a Pub/Sub push body.
	maxPushBodyBytes = 1 << 20

	// A run may wait on Perplexity and several Affinity calls.
	webhookWriteTimeout = 5 * time.Minute
)

// Response status values.
const (
	statusOK      = "ok"
	statusSuccess = "success"
	statusError   = "error"
)

// WebhookServer receives Pub/Sub pushes and serves the operational endpoints.
type WebhookServer struct {
	sc         *ServerContext
	health     *HealthChecker
	httpServer *http.Server
	addr       string
	listener   net.Listener
}

// WebhookOption configures a WebhookServer.
type WebhookOption func(*webhookOptions)

type webhookOptions struct {
	mcpServer *mcpserver.MCPServer
}

// WithMCPServer exposes the MCP tools over streamable HTTP at /mcp.
func WithMCPServer(s *mcpserver.MCPServer) WebhookOption {
	return func(o *webhookOptions) {
		o.mcpServer = s
	}
}

// NewWebhookServer builds the HTTP handler tree for sc.
func NewWebhookServer(sc *ServerContext, addr string, opts ...WebhookOption) (*WebhookServer, error) {
	if sc == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if addr == "" {
		addr = DefaultWebhookAddr
	}
	var o webhookOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &WebhookServer{
		sc:     sc,
		health: NewHealthChecker(sc),
		addr:   addr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /pubsub", s.handlePush)
	mux.HandleFunc("GET /refresh_watch", s.handleRefreshWatch)
	mux.HandleFunc("POST /refresh_watch", s.handleRefreshWatch)
	s.health.RegisterHealthEndpoints(mux)
	if o.mcpServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(o.mcpServer, mcpserver.WithEndpointPath("/mcp")))
	}

	s.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(s.metricsMiddleware(mux), "crmupdater"),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      webhookWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests.
func (s *WebhookServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Health returns the server's health checker.
func (s *WebhookServer) Health() *HealthChecker {
	return s.health
}

// Addr returns the listen address, resolved once Listen has run.
func (s *WebhookServer) Addr() string {
	return s.addr
}

// Listen binds the listener.
func (s *WebhookServer) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *WebhookServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.sc.Logger().Info("webhook server listening", "addr", s.addr)
		errCh <- s.httpServer.Serve(s.listener)
	}()
	s.health.SetReady(true)

	select {
	case err := <-errCh:
		s.health.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	_ = s.sc.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	s.sc.Logger().Info("shutting down webhook server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *WebhookServer) handlePush(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.sc.Logger().With(logging.KeyRequestID, requestID)
	ids := errorIDs{requestID: requestID, traceID: instrumentation.GetTraceID(r.Context())}
	if ids.traceID != "" {
		logger = logger.With(logging.KeyTraceID, ids.traceID)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ids, err)
		return
	}

	note, err := pubsub.Decode(body)
	if err != nil {
		err = apperrors.WithRequestID(err, requestID)
		logger.Warn("rejected push", logging.Err(err))
		writeError(w, apperrors.HTTPStatus(err), ids, err)
		return
	}

	logger.Info("received notification", logging.HistoryID(note.HistoryID), "pubsub_message_id", note.MessageID)

	_, err = s.sc.Pipeline().Run(r.Context(), pipeline.Trigger{
		RequestID: requestID,
		HistoryID: note.HistoryID,
		Source:    pipeline.SourcePubSub,
	})
	if err != nil {
		writeError(w, apperrors.HTTPStatus(err), ids, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": statusOK})
}

func (s *WebhookServer) handleRefreshWatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.sc.RefreshWatch(r.Context())
	if err != nil {
		s.sc.Logger().Error("failed to refresh watch", logging.Err(err))
		writeError(w, http.StatusInternalServerError, errorIDs{traceID: instrumentation.GetTraceID(r.Context())}, err)
		return
	}
	s.sc.Logger().Info("watch refreshed", "history_id", res.HistoryID, "expiration", res.Expiration)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     statusSuccess,
		"history_id": strconv.FormatUint(res.HistoryID, 10),
		"expiration": res.Expiration.UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorIDs correlates an error response with logs and traces.
type errorIDs struct {
	requestID string
	traceID   string
}

func writeError(w http.ResponseWriter, code int, ids errorIDs, err error) {
	resp := map[string]string{
		"status": statusError,
		"detail": err.Error(),
	}
	if ids.requestID != "" {
		resp["request_id"] = ids.requestID
	}
	if ids.traceID != "" {
		resp["trace_id"] = ids.traceID
	}
	writeJSON(w, code, resp)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *WebhookServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, routeLabel(r), rec.status, time.Since(start))
	})
}

// routeLabel keeps the path label bounded to registered routes.
// The mux records the matched pattern on the request it was given.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}
