package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/pipeline"
	"github.com/teemow/crmupdater/internal/pubsub"
)

type fakeUpserter struct{}

func (fakeUpserter) Upsert(context.Context, crm.Batch) ([]crm.Result, error) { return nil, nil }
func (fakeUpserter) Mode() string                                             { return crm.ModeDirect }

type fakePipeline struct {
	mu       sync.Mutex
	triggers []pipeline.Trigger
	messages []*gmail.InboundMessage
	err      error
}

func (f *fakePipeline) Run(_ context.Context, trig pipeline.Trigger) (*pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trig)
	if f.err != nil {
		return &pipeline.Outcome{RequestID: trig.RequestID}, f.err
	}
	return &pipeline.Outcome{RequestID: trig.RequestID, Result: "processed"}, nil
}

func (f *fakePipeline) ProcessMessage(_ context.Context, msg *gmail.InboundMessage) *pipeline.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return &pipeline.Outcome{RequestID: "req-local", MessageID: msg.ID, Result: "processed"}
}

func (f *fakePipeline) Upserter() crm.Upserter { return fakeUpserter{} }

type fakeWatcher struct {
	topic  string
	labels []string
	err    error
}

func (f *fakeWatcher) Watch(_ context.Context, topic string, labels ...string) (*gmail.WatchResult, error) {
	f.topic = topic
	f.labels = labels
	if f.err != nil {
		return nil, f.err
	}
	return &gmail.WatchResult{HistoryID: 12345, Expiration: time.UnixMilli(1700000000000)}, nil
}

func newTestServer(t *testing.T, p *fakePipeline, w *fakeWatcher) *WebhookServer {
	t.Helper()
	sc, err := NewServerContext(context.Background(), Dependencies{
		Pipeline: p,
		Watcher:  w,
		Topic:    "projects/p/topics/gmail",
	})
	require.NoError(t, err)
	srv, err := NewWebhookServer(sc, "127.0.0.1:0")
	require.NoError(t, err)
	return srv
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlePush(t *testing.T) {
	valid, err := pubsub.Encode("m-1", "deals@example.com", "777")
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        string
		pipelineErr error
		wantCode    int
		wantStatus  string
		wantRuns    int
	}{
		{
			name:       "valid notification",
			body:       string(valid),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantRuns:   1,
		},
		{
			name:       "not json",
			body:       "not json",
			wantCode:   http.StatusBadRequest,
			wantStatus: "error",
		},
		{
			name:       "missing history id",
			body:       `{"message":{"data":"e30="}}`,
			wantCode:   http.StatusBadRequest,
			wantStatus: "error",
		},
		{
			name:        "fetch failure",
			body:        string(valid),
			pipelineErr: apperrors.Fetch(errors.New("gmail down"), "failed to list messages"),
			wantCode:    http.StatusInternalServerError,
			wantStatus:  "error",
			wantRuns:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{err: tt.pipelineErr}
			srv := newTestServer(t, p, &fakeWatcher{})

			req := httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantStatus, body["status"])
			if tt.wantStatus == "error" {
				assert.NotEmpty(t, body["detail"])
				assert.NotEmpty(t, body["request_id"])
			}

			require.Len(t, p.triggers, tt.wantRuns)
			if tt.wantRuns > 0 {
				assert.Equal(t, "777", p.triggers[0].HistoryID)
				assert.Equal(t, pipeline.SourcePubSub, p.triggers[0].Source)
				assert.NotEmpty(t, p.triggers[0].RequestID)
			}
		})
	}
}

func TestHandlePush_ErrorCarriesTraceID(t *testing.T) {
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample())))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	srv := newTestServer(t, &fakePipeline{}, &fakeWatcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader("not json")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	traceID, ok := body["trace_id"].(string)
	require.True(t, ok, "trace_id missing from %v", body)
	assert.Len(t, traceID, 32)
	assert.NotEqual(t, strings.Repeat("0", 32), traceID)
}

func TestHandlePush_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, &fakeWatcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pubsub", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRefreshWatch(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			w := &fakeWatcher{}
			srv := newTestServer(t, &fakePipeline{}, w)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/refresh_watch", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "success", body["status"])
			assert.Equal(t, "12345", body["history_id"])
			assert.Equal(t, float64(1700000000000), body["expiration"])
			assert.Equal(t, "projects/p/topics/gmail", w.topic)
			assert.Equal(t, []string{gmail.DefaultLabel}, w.labels)
		})
	}
}

func TestHandleRefreshWatch_Error(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, &fakeWatcher{err: errors.New("topic not found")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh_watch", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["detail"], "topic not found")
}

func TestWebhookServer_Run(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, &fakeWatcher{})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, srv.Health().IsReady, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook server did not shut down")
	}
	assert.False(t, srv.Health().IsReady())
	assert.True(t, srv.sc.IsShutdown())
}

func TestNewServerContext_Validation(t *testing.T) {
	_, err := NewServerContext(context.Background(), Dependencies{Watcher: &fakeWatcher{}})
	assert.Error(t, err)

	_, err = NewServerContext(context.Background(), Dependencies{Pipeline: &fakePipeline{}})
	assert.Error(t, err)

	_, err = NewWebhookServer(nil, "")
	assert.Error(t, err)
}
