package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/crmupdater/internal/instrumentation"
)

// encodeRFC2047 encodes a string for use in email headers according to RFC 2047
// This is necessary for non-ASCII characters (like German umlauts) in subjects
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// sanitizeHeader strips line breaks so values cannot inject extra headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// buildRaw renders msg in RFC 2822 format.
func buildRaw(msg *EmailMessage) string {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(sanitizeHeader(strings.Join(msg.To, ", ")))
	b.WriteString("\r\n")

	if len(msg.Cc) > 0 {
		b.WriteString("Cc: ")
		b.WriteString(sanitizeHeader(strings.Join(msg.Cc, ", ")))
		b.WriteString("\r\n")
	}

	if len(msg.Bcc) > 0 {
		b.WriteString("Bcc: ")
		b.WriteString(sanitizeHeader(strings.Join(msg.Bcc, ", ")))
		b.WriteString("\r\n")
	}

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(sanitizeHeader(msg.Subject)))
	b.WriteString("\r\n")

	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(sanitizeHeader(name))
		b.WriteString(": ")
		b.WriteString(encodeRFC2047(sanitizeHeader(msg.Headers[name])))
		b.WriteString("\r\n")
	}

	if msg.IsHTML {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return b.String()
}

// SendEmail sends an email through Gmail API and returns the sent message id.
func (c *Client) SendEmail(ctx context.Context, msg *EmailMessage) (string, error) {
	if msg == nil || len(msg.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend)
	defer span.End()

	raw := base64.URLEncoding.EncodeToString([]byte(buildRaw(msg)))

	start := time.Now()
	sent, err := c.svc.Messages.Send(c.user, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err := c.observe(ctx, instrumentation.OperationSend, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return sent.Id, nil
}
