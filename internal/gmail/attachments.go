package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/crmupdater/internal/instrumentation"
)

// AllowedMimeTypes are the attachment types relayed to Drive: PDF, DOC, DOCX, PPT and PPTX.
var AllowedMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// GetAttachment retrieves the content of an attachment (returns []byte)
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer span.End()

	start := time.Now()
	attachment, err := c.svc.Messages.Attachments.Get(c.user, messageID, attachmentID).Context(ctx).Do()
	if err := c.observe(ctx, instrumentation.OperationGet, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	data, err := decodeBase64(attachment.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// ExtractParts walks a message part tree depth-first, in parts order.
// text/plain leaves with inline data contribute their decoded text. Parts with
// a filename, an allowed MIME type and an attachment id contribute a reference.
// All other parts are only traversed.
func ExtractParts(part *gmail.MessagePart) PartsResult {
	var result PartsResult
	if part == nil {
		return result
	}

	switch {
	case part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "":
		if text, err := decodeBase64(part.Body.Data); err == nil {
			result.Texts = append(result.Texts, strings.ToValidUTF8(string(text), ""))
		}
	case part.Filename != "" && ValidateMimeType(part.MimeType, AllowedMimeTypes) &&
		part.Body != nil && part.Body.AttachmentId != "":
		result.Attachments = append(result.Attachments, AttachmentRef{
			PartID:       part.PartId,
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			Size:         part.Body.Size,
		})
	}

	for _, sub := range part.Parts {
		child := ExtractParts(sub)
		result.Texts = append(result.Texts, child.Texts...)
		result.Attachments = append(result.Attachments, child.Attachments...)
	}

	return result
}

// decodeBase64 decodes Gmail's base64url data, falling back to standard base64.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 data")
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	// Remove path separators and other potentially dangerous characters
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return filename
}

// ValidateMimeType checks if a MIME type is in the allowed list
func ValidateMimeType(mimeType string, allowedTypes []string) bool {
	if len(allowedTypes) == 0 {
		return true // No restrictions if list is empty
	}

	for _, allowed := range allowedTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}
