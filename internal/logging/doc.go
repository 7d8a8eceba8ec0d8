// Package logging provides structured logging utilities for crmupdater.
//
// It centralizes attribute naming (request_id, message_id, stage, company)
// and PII handling on top of the standard library's slog package.
//
// # Usage Patterns
//
//	logger := logging.WithRequest(logging.WithOperation(base, "pubsub"), requestID)
//	logger.Info("processing message",
//	    logging.MessageID(msg.ID),
//	    logging.SenderHash(msg.From))
//
// Components that only need to emit records depend on the Logger interface;
// SlogAdapter wraps an *slog.Logger to satisfy it.
//
// # Security Considerations
//
//   - Sender addresses are hashed so log lines can be correlated without PII
//   - API keys and tokens are never logged
package logging
