package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/drive"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

type fakeFetcher struct {
	msg *gmail.InboundMessage
	err error
}

func (f *fakeFetcher) FetchLatest(_ context.Context) (*gmail.InboundMessage, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.msg, f.msg != nil, nil
}

type fakeUploader struct {
	fail     map[string]bool
	uploaded []string
}

func (f *fakeUploader) UploadAttachment(_ context.Context, filename string, _ []byte, _ string) (*drive.UploadedFile, error) {
	if f.fail[filename] {
		return nil, apperrors.Upload(errors.New("storage quota exceeded"), filename)
	}
	f.uploaded = append(f.uploaded, filename)
	return &drive.UploadedFile{FileID: "id-" + filename, SourceFilename: filename, Link: "https://drive/" + filename}, nil
}

type fakeUpserter struct {
	mu      sync.Mutex
	batches []crm.Batch
	err     error
}

func (f *fakeUpserter) Mode() string { return crm.ModeDirect }

func (f *fakeUpserter) Upsert(_ context.Context, b crm.Batch) ([]crm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	if f.err != nil {
		return nil, f.err
	}
	results := make([]crm.Result, 0, len(b.Companies))
	for i, c := range b.Companies {
		results = append(results, crm.Result{Company: c, CompanyID: int64(i + 1)})
	}
	return results, nil
}

type fakeReporter struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (f *fakeReporter) Report(_ context.Context, subject, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
}

type fixture struct {
	fetcher  *fakeFetcher
	uploader *fakeUploader
	upserter *fakeUpserter
	reporter *fakeReporter
	logs     *bytes.Buffer
	proc     *Processor
}

func newFixture(t *testing.T, msg *gmail.InboundMessage, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:  &fakeFetcher{msg: msg},
		uploader: &fakeUploader{fail: map[string]bool{}},
		upserter: &fakeUpserter{},
		reporter: &fakeReporter{},
		logs:     &bytes.Buffer{},
	}
	logger := logging.NewSlogAdapter(slog.New(slog.NewJSONHandler(f.logs, nil)))

	proc, err := NewProcessor(f.fetcher, f.uploader, f.upserter, f.reporter, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	f.proc = proc
	return f
}

func TestRun_EndToEnd(t *testing.T) {
	msg := &gmail.InboundMessage{
		ID:   "msg-1",
		From: "Partner <partner@example.com>",
		Body: "Nova Credit upload to affinity\n\nNotes: \"Track closely.\"",
	}
	f := newFixture(t, msg)

	out, err := f.proc.Run(context.Background(), Trigger{RequestID: "req-1", HistoryID: "12345"})
	require.NoError(t, err)

	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "msg-1", out.MessageID)
	assert.Equal(t, instrumentation.NotificationProcessed, out.Result)
	require.NotNil(t, out.Intent)
	assert.Equal(t, []string{"nova credit"}, out.Intent.Companies)

	require.Len(t, f.upserter.batches, 1)
	batch := f.upserter.batches[0]
	assert.Equal(t, "Track closely.", batch.CompositeNoteFor(0))
	assert.Empty(t, batch.Links)
	assert.Empty(t, f.reporter.subjects)

	assert.Contains(t, f.logs.String(), `"request_id":"req-1"`)
	assert.NotContains(t, f.logs.String(), "partner@example.com")
}

func TestRun_AttachmentFailureIsReportedAndSkipped(t *testing.T) {
	msg := &gmail.InboundMessage{
		ID:   "msg-2",
		Body: "acme, globex upload to affinity",
		Attachments: []gmail.Attachment{
			{Filename: "deck.pdf", MimeType: "application/pdf", Content: []byte("1")},
			{Filename: "broken.pdf", MimeType: "application/pdf", Content: []byte("2")},
			{Filename: "memo.docx", MimeType: "application/msword", Content: []byte("3")},
		},
	}
	f := newFixture(t, msg)
	f.uploader.fail["broken.pdf"] = true

	out, err := f.proc.Run(context.Background(), Trigger{})
	require.NoError(t, err)

	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, []string{"https://drive/deck.pdf", "https://drive/memo.docx"}, out.Links)
	assert.Equal(t, []string{"deck.pdf", "memo.docx"}, f.uploader.uploaded)

	require.Len(t, f.reporter.subjects, 1)
	assert.Contains(t, f.reporter.subjects[0], "Drive upload failed for broken.pdf: ")
	assert.Equal(t, msg.Body, f.reporter.bodies[0])

	require.Len(t, f.upserter.batches, 1)
	assert.Equal(t, out.Links, f.upserter.batches[0].Links)
	assert.Len(t, out.Results, 2)
}

func TestRun_AttachmentDownloadFailureIsReportedAndSkipped(t *testing.T) {
	msg := &gmail.InboundMessage{
		ID:   "msg-7",
		Body: "acme upload to affinity",
		Attachments: []gmail.Attachment{
			{Filename: "deck.pdf", MimeType: "application/pdf", Content: []byte("1")},
			{Filename: "gone.pdf", MimeType: "application/pdf", Err: apperrors.Fetch(errors.New("404"), "failed to get attachment gone.pdf")},
		},
	}
	f := newFixture(t, msg)

	out, err := f.proc.Run(context.Background(), Trigger{})
	require.NoError(t, err)

	assert.Equal(t, instrumentation.NotificationProcessed, out.Result)
	assert.Equal(t, []string{"deck.pdf"}, f.uploader.uploaded)
	assert.Equal(t, []string{"https://drive/deck.pdf"}, out.Links)

	require.Len(t, f.reporter.subjects, 1)
	assert.Contains(t, f.reporter.subjects[0], "Drive upload failed for gone.pdf: ")
	assert.Contains(t, f.reporter.subjects[0], "404")

	require.Len(t, f.upserter.batches, 1)
	assert.Equal(t, out.Links, f.upserter.batches[0].Links)
	assert.Contains(t, f.logs.String(), `"stage":"relay"`)
	assert.Contains(t, f.logs.String(), `"stage":"upsert"`)
}

func TestRun_Unmatched(t *testing.T) {
	msg := &gmail.InboundMessage{ID: "msg-3", Body: "Lunch on Friday?"}

	t.Run("reported by default", func(t *testing.T) {
		f := newFixture(t, msg)

		out, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)
		assert.Equal(t, instrumentation.NotificationUnmatched, out.Result)
		require.Len(t, f.reporter.subjects, 1)
		assert.Contains(t, f.reporter.subjects[0], "upload to affinity")
		assert.Equal(t, "Lunch on Friday?", f.reporter.bodies[0])
		assert.Empty(t, f.upserter.batches)
	})

	t.Run("silent when disabled", func(t *testing.T) {
		f := newFixture(t, msg, WithReportUnmatched(false))

		out, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)
		assert.Equal(t, instrumentation.NotificationUnmatched, out.Result)
		assert.Empty(t, f.reporter.subjects)
	})
}

func TestRun_Skips(t *testing.T) {
	t.Run("empty mailbox", func(t *testing.T) {
		f := newFixture(t, nil)

		out, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)
		assert.Equal(t, instrumentation.NotificationSkipped, out.Result)
		assert.Empty(t, f.upserter.batches)
	})

	t.Run("own error report", func(t *testing.T) {
		msg := &gmail.InboundMessage{
			ID:      "msg-4",
			Body:    "Error: x upload to affinity",
			Headers: map[string]string{"X-CRMUpdater-Report": "1"},
		}
		f := newFixture(t, msg)

		out, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)
		assert.Equal(t, instrumentation.NotificationSelfReport, out.Result)
		assert.Empty(t, f.upserter.batches)
		assert.Empty(t, f.reporter.subjects)
	})

	t.Run("already processed", func(t *testing.T) {
		msg := &gmail.InboundMessage{ID: "msg-5", Body: "acme upload to affinity"}
		f := newFixture(t, msg)

		first, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)
		second, err := f.proc.Run(context.Background(), Trigger{})
		require.NoError(t, err)

		assert.Equal(t, instrumentation.NotificationProcessed, first.Result)
		assert.Equal(t, instrumentation.NotificationDuplicate, second.Result)
		assert.Len(t, f.upserter.batches, 1)
	})
}

func TestRun_ConcurrentNotificationsProcessOnce(t *testing.T) {
	msg := &gmail.InboundMessage{ID: "msg-6", Body: "acme upload to affinity"}
	f := newFixture(t, msg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.proc.Run(context.Background(), Trigger{})
		}()
	}
	wg.Wait()

	assert.Len(t, f.upserter.batches, 1)
}

func TestRun_FetchError(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.err = errors.New("token expired")

	out, err := f.proc.Run(context.Background(), Trigger{RequestID: "req-9"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.CodeFetch))
	assert.Equal(t, instrumentation.NotificationFailed, out.Result)
	assert.Empty(t, f.reporter.subjects)
}

func TestRun_UpsertBatchFailure(t *testing.T) {
	msg := &gmail.InboundMessage{ID: "msg-7", Body: "acme upload to affinity"}
	f := newFixture(t, msg)
	f.upserter.err = apperrors.CrmOperation(errors.New("503"), "list_members")

	out, err := f.proc.Run(context.Background(), Trigger{})
	require.NoError(t, err)
	assert.Equal(t, instrumentation.NotificationFailed, out.Result)
	// the upserter reports batch failures itself
	assert.Empty(t, f.reporter.subjects)
}

func TestProcessMessage(t *testing.T) {
	f := newFixture(t, nil)

	out := f.proc.ProcessMessage(context.Background(), &gmail.InboundMessage{Body: "acme, initech upload to affinity"})
	assert.Equal(t, instrumentation.NotificationProcessed, out.Result)
	assert.Len(t, out.Results, 2)
	assert.NotEmpty(t, out.RequestID)
}

func TestNewProcessor_RequiresStages(t *testing.T) {
	_, err := NewProcessor(nil, &fakeUploader{}, &fakeUpserter{}, &fakeReporter{})
	assert.Error(t, err)
}

func TestSenderAddress(t *testing.T) {
	assert.Equal(t, "partner@example.com", senderAddress("Partner <partner@example.com>"))
	assert.Equal(t, "a@b.com", senderAddress("a@b.com"))
	assert.Equal(t, "not an address", senderAddress("not an address"))
	assert.Equal(t, "", senderAddress(""))
}
