package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
)

const (
	// DefaultUser addresses the authenticated mailbox.
	DefaultUser = "me"

	// DefaultLabel limits fetches and watches to the inbox.
	DefaultLabel = "INBOX"
)

// Client wraps the Gmail Users service for a single mailbox
type Client struct {
	svc     *gmail.UsersService
	user    string
	label   string
	metrics *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLabel sets the label used to select the latest message. An empty label
// selects across the whole mailbox.
func WithLabel(label string) ClientOption {
	return func(c *Client) {
		c.label = label
	}
}

// WithMetrics records Google API operation metrics on m.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Gmail client that authenticates through httpClient.
// Additional API options (e.g. option.WithEndpoint) are passed through.
func NewClient(ctx context.Context, httpClient *http.Client, opts []option.ClientOption, clientOpts ...ClientOption) (*Client, error) {
	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	c := &Client{
		svc:   svc.Users,
		user:  DefaultUser,
		label: DefaultLabel,
	}
	for _, opt := range clientOpts {
		opt(c)
	}
	return c, nil
}

// observe records metrics for one API call and returns err unchanged.
func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) error {
	if c.metrics != nil {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	}
	return err
}

// LatestMessageID returns the id of the most recent message.
// found is false when the mailbox (or label) holds no messages.
func (c *Client) LatestMessageID(ctx context.Context) (id string, found bool, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList)
	defer span.End()

	start := time.Now()
	req := c.svc.Messages.List(c.user).MaxResults(1).Context(ctx)
	if c.label != "" {
		req = req.LabelIds(c.label)
	}
	res, err := req.Do()
	if err := c.observe(ctx, instrumentation.OperationList, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", false, fmt.Errorf("failed to list messages: %w", err)
	}

	if len(res.Messages) == 0 {
		return "", false, nil
	}
	return res.Messages[0].Id, true, nil
}

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer span.End()

	start := time.Now()
	msg, err := c.svc.Messages.Get(c.user, messageID).Format("full").Context(ctx).Do()
	if err := c.observe(ctx, instrumentation.OperationGet, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// FetchLatest retrieves the most recent message with its allowed attachments.
// found is false when there is no message; that is not an error.
// Provider failures are returned as FETCH_ERROR. Attachment download failures
// are recorded on the attachment instead.
func (c *Client) FetchLatest(ctx context.Context) (*InboundMessage, bool, error) {
	id, found, err := c.LatestMessageID(ctx)
	if err != nil {
		return nil, false, apperrors.Fetch(err, "failed to find latest message")
	}
	if !found {
		return nil, false, nil
	}

	msg, err := c.GetMessage(ctx, id)
	if err != nil {
		return nil, false, apperrors.Fetch(err, "failed to get latest message")
	}

	parts := ExtractParts(msg.Payload)
	inbound := &InboundMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Subject:  HeaderValue(msg, "Subject"),
		From:     HeaderValue(msg, "From"),
		Body:     parts.Body(),
		Headers:  headerMap(msg),
	}

	// a failed download only costs that attachment; the relay stage reports it
	for _, ref := range parts.Attachments {
		att := Attachment{Filename: SanitizeFilename(ref.Filename), MimeType: ref.MimeType}
		att.Content, err = c.GetAttachment(ctx, msg.Id, ref.AttachmentID)
		if err != nil {
			att.Err = apperrors.Fetch(err, "failed to get attachment "+ref.Filename)
		}
		inbound.Attachments = append(inbound.Attachments, att)
	}

	return inbound, true, nil
}

// Watch registers (or renews) push notifications for the mailbox on topic.
func (c *Client) Watch(ctx context.Context, topic string, labels ...string) (*WatchResult, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if len(labels) == 0 {
		labels = []string{DefaultLabel}
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationWatch)
	defer span.End()

	start := time.Now()
	res, err := c.svc.Watch(c.user, &gmail.WatchRequest{
		LabelIds:  labels,
		TopicName: topic,
	}).Context(ctx).Do()
	if err := c.observe(ctx, instrumentation.OperationWatch, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to register watch: %w", err)
	}

	return &WatchResult{
		HistoryID:  res.HistoryId,
		Expiration: time.UnixMilli(res.Expiration),
	}, nil
}

func headerMap(m *gmail.Message) map[string]string {
	headers := make(map[string]string)
	if m == nil || m.Payload == nil {
		return headers
	}
	for _, h := range m.Payload.Headers {
		if _, ok := headers[h.Name]; !ok {
			headers[h.Name] = h.Value
		}
	}
	return headers
}
