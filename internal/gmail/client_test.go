package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// fakeMailbox serves the subset of the Gmail API the client uses.
type fakeMailbox struct {
	mu          sync.Mutex
	messages    []map[string]any
	attachments map[string]string
	sizes       map[string]int
	failList    bool
	sentRaw     []string
	listQueries []string
	watchBody   map[string]any
}

func (f *fakeMailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/messages/send"):
		var body struct {
			Raw string `json:"raw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.sentRaw = append(f.sentRaw, body.Raw)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sent-1"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/watch"):
		_ = json.NewDecoder(r.Body).Decode(&f.watchBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"historyId": "555", "expiration": "1700000000000"})

	case strings.Contains(path, "/attachments/"):
		id := path[strings.LastIndex(path, "/")+1:]
		data, ok := f.attachments[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		size, ok := f.sizes[id]
		if !ok {
			size = len(data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "size": size})

	case strings.HasSuffix(path, "/messages"):
		f.listQueries = append(f.listQueries, r.URL.RawQuery)
		if f.failList {
			http.Error(w, `{"error":{"code":403,"message":"insufficient permission"}}`, http.StatusForbidden)
			return
		}
		refs := []map[string]any{}
		for _, m := range f.messages {
			refs = append(refs, map[string]any{"id": m["id"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})

	case strings.Contains(path, "/messages/"):
		id := path[strings.LastIndex(path, "/")+1:]
		for _, m := range f.messages {
			if m["id"] == id {
				_ = json.NewEncoder(w).Encode(m)
				return
			}
		}
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, mailbox *fakeMailbox, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(mailbox)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
	}, opts...)
	require.NoError(t, err)
	return c
}

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestFetchLatest(t *testing.T) {
	mailbox := &fakeMailbox{
		messages: []map[string]any{{
			"id":       "msg-1",
			"threadId": "thr-1",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Deal flow"},
					{"name": "From", "value": "Partner <partner@example.com>"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]any{"data": b64url("Acme upload to affinity\n")}},
					{"mimeType": "application/pdf", "filename": "deck.pdf", "body": map[string]any{"attachmentId": "att-1"}},
					{"mimeType": "image/jpeg", "filename": "photo.jpg", "body": map[string]any{"attachmentId": "att-2"}},
				},
			},
		}},
		attachments: map[string]string{"att-1": b64url("%PDF-1.4")},
	}
	c := newTestClient(t, mailbox)

	msg, found, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "Deal flow", msg.Subject)
	assert.Equal(t, "Partner <partner@example.com>", msg.From)
	assert.Equal(t, "Acme upload to affinity\n", msg.Body)
	assert.Equal(t, "Deal flow", msg.Header("subject"))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "deck.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].MimeType)
	assert.Equal(t, []byte("%PDF-1.4"), msg.Attachments[0].Content)

	require.Len(t, mailbox.listQueries, 1)
	assert.Contains(t, mailbox.listQueries[0], "maxResults=1")
	assert.Contains(t, mailbox.listQueries[0], "labelIds=INBOX")
}

func TestFetchLatest_EmptyMailbox(t *testing.T) {
	c := newTestClient(t, &fakeMailbox{})

	msg, found, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, msg)
}

func TestFetchLatest_WithoutLabel(t *testing.T) {
	mailbox := &fakeMailbox{}
	c := newTestClient(t, mailbox, WithLabel(""))

	_, _, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, mailbox.listQueries, 1)
	assert.NotContains(t, mailbox.listQueries[0], "labelIds")
}

func TestFetchLatest_ProviderErrors(t *testing.T) {
	t.Run("list fails", func(t *testing.T) {
		c := newTestClient(t, &fakeMailbox{failList: true})

		_, found, err := c.FetchLatest(context.Background())
		require.Error(t, err)
		assert.False(t, found)
		assert.True(t, apperrors.IsKind(err, apperrors.CodeFetch))
	})
}

func TestFetchLatest_AttachmentFailureIsKeptOnMessage(t *testing.T) {
	mailbox := &fakeMailbox{
		messages: []map[string]any{{
			"id": "msg-2",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]any{"data": b64url("Acme upload to affinity")}},
					{"mimeType": "application/pdf", "filename": "gone.pdf", "body": map[string]any{"attachmentId": "missing"}},
					{"mimeType": "application/pdf", "filename": "deck.pdf", "body": map[string]any{"attachmentId": "att-1"}},
				},
			},
		}},
		attachments: map[string]string{"att-1": b64url("%PDF-1.4")},
	}
	c := newTestClient(t, mailbox)

	msg, found, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, msg.Attachments, 2)

	gone := msg.Attachments[0]
	assert.Equal(t, "gone.pdf", gone.Filename)
	assert.Nil(t, gone.Content)
	require.Error(t, gone.Err)
	assert.True(t, apperrors.IsKind(gone.Err, apperrors.CodeFetch))
	assert.Contains(t, gone.Err.Error(), "gone.pdf")

	assert.NoError(t, msg.Attachments[1].Err)
	assert.Equal(t, []byte("%PDF-1.4"), msg.Attachments[1].Content)
}

func TestFetchLatest_LargeAttachment(t *testing.T) {
	const thirtyMB = 30 * 1024 * 1024
	mailbox := &fakeMailbox{
		messages: []map[string]any{{
			"id": "msg-3",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"parts": []map[string]any{
					{"mimeType": "application/pdf", "filename": "deck.pdf", "body": map[string]any{"attachmentId": "att-big", "size": thirtyMB}},
				},
			},
		}},
		attachments: map[string]string{"att-big": b64url("%PDF-1.7")},
		sizes:       map[string]int{"att-big": thirtyMB},
	}
	c := newTestClient(t, mailbox)

	msg, found, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, msg.Attachments, 1)
	assert.NoError(t, msg.Attachments[0].Err)
	assert.Equal(t, []byte("%PDF-1.7"), msg.Attachments[0].Content)
}

func TestFetchLatest_AttachmentFilenameIsSanitized(t *testing.T) {
	mailbox := &fakeMailbox{
		messages: []map[string]any{{
			"id": "msg-4",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"parts": []map[string]any{
					{"mimeType": "application/pdf", "filename": "../q3/deck.pdf", "body": map[string]any{"attachmentId": "att-1"}},
				},
			},
		}},
		attachments: map[string]string{"att-1": b64url("%PDF-1.4")},
	}
	c := newTestClient(t, mailbox)

	msg, found, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "__q3_deck.pdf", msg.Attachments[0].Filename)
}

func TestWatch(t *testing.T) {
	mailbox := &fakeMailbox{}
	c := newTestClient(t, mailbox)

	res, err := c.Watch(context.Background(), "projects/p/topics/gmail-topic")
	require.NoError(t, err)
	assert.Equal(t, uint64(555), res.HistoryID)
	assert.Equal(t, int64(1700000000000), res.Expiration.UnixMilli())

	assert.Equal(t, "projects/p/topics/gmail-topic", mailbox.watchBody["topicName"])
	assert.Equal(t, []any{"INBOX"}, mailbox.watchBody["labelIds"])

	_, err = c.Watch(context.Background(), "")
	assert.Error(t, err)
}

func TestSendEmail(t *testing.T) {
	mailbox := &fakeMailbox{}
	c := newTestClient(t, mailbox)

	id, err := c.SendEmail(context.Background(), &EmailMessage{
		To:      []string{"ops@example.com"},
		Subject: "CRMUpdater: Affinity Upload Failed for acme",
		Body:    "Error: boom",
		Headers: map[string]string{"X-CRMUpdater-Report": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)

	require.Len(t, mailbox.sentRaw, 1)
	raw, err := base64.URLEncoding.DecodeString(mailbox.sentRaw[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: ops@example.com\r\n")
	assert.Contains(t, string(raw), "X-CRMUpdater-Report: 1\r\n")
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\nError: boom"))
}

func TestSendEmail_Validation(t *testing.T) {
	c := newTestClient(t, &fakeMailbox{})

	_, err := c.SendEmail(context.Background(), &EmailMessage{Subject: "x"})
	assert.Error(t, err)

	_, err = c.SendEmail(context.Background(), &EmailMessage{To: []string{"a@example.com"}})
	assert.Error(t, err)
}
