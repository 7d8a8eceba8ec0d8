// Package pubsub decodes Cloud Pub/Sub push deliveries carrying Gmail
// watch notifications.
package pubsub

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// Envelope is the body of a Pub/Sub push request.
type Envelope struct {
	Message      *PushMessage `json:"message"`
	Subscription string       `json:"subscription"`
}

// PushMessage is the message wrapped by a push Envelope.
type PushMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Notification is a decoded Gmail watch notification.
type Notification struct {
	// MessageID is the Pub/Sub message id, not a Gmail message id.
	MessageID    string
	Subscription string
	// HistoryID is the mailbox change indicator, normalized to its decimal form.
	HistoryID    string
	EmailAddress string
}

// Decode parses a push request body into a Notification.
func Decode(body []byte) (Notification, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, apperrors.MalformedEnvelope("invalid Pub/Sub message format", err)
	}
	if env.Message == nil || env.Message.Data == "" {
		return Notification{}, apperrors.MalformedEnvelope("invalid Pub/Sub message format: missing message data", nil)
	}

	payload, err := decodeData(env.Message.Data)
	if err != nil {
		return Notification{}, apperrors.MalformedEnvelope("failed to decode message data", err)
	}

	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Notification{}, apperrors.MalformedEnvelope("message data is not a JSON object", err)
	}

	historyID := stringField(fields["historyId"])
	if historyID == "" {
		return Notification{}, apperrors.MissingChangeIndicator("missing historyId in Gmail payload")
	}

	return Notification{
		MessageID:    env.Message.MessageID,
		Subscription: env.Subscription,
		HistoryID:    historyID,
		EmailAddress: stringField(fields["emailAddress"]),
	}, nil
}

// decodeData accepts standard and URL-safe base64, padded or not.
func decodeData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(data); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("data is not valid base64")
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// Encode builds a push Envelope around a Gmail notification payload.
// historyID must be a decimal number.
func Encode(messageID, emailAddress, historyID string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"emailAddress": emailAddress,
		"historyId":    json.Number(historyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return json.Marshal(Envelope{
		Message: &PushMessage{
			Data:      base64.StdEncoding.EncodeToString(payload),
			MessageID: messageID,
		},
	})
}
