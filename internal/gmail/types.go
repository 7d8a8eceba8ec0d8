package gmail

import (
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// InboundMessage is the content of one mailbox message relevant to the pipeline.
type InboundMessage struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	// Body is the concatenation of all text/plain parts, depth-first.
	Body        string
	Attachments []Attachment
	Headers     map[string]string
}

// Header returns the value of the named header, case-insensitively.
func (m *InboundMessage) Header(name string) string {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Attachment is an attachment whose MIME type is allowed.
type Attachment struct {
	Filename string
	MimeType string
	Content  []byte

	// Err is set when the content could not be downloaded. Content is then nil.
	Err error
}

// AttachmentRef points at an attachment that still needs to be downloaded.
type AttachmentRef struct {
	PartID       string
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// PartsResult is what ExtractParts collects from a message part tree.
type PartsResult struct {
	Texts       []string
	Attachments []AttachmentRef
}

// Body joins the collected text fragments.
func (r PartsResult) Body() string {
	return strings.Join(r.Texts, "")
}

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	IsHTML  bool
	// Headers are extra RFC 2822 headers, e.g. X-CRMUpdater-Report.
	Headers map[string]string
}

// WatchResult is the outcome of registering a mailbox watch.
type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time
}

// HeaderValue returns the value of the named header on a message, or "" if absent.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}
