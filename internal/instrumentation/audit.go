package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Invocation kinds.
const (
	InvocationNotification = "notification"
	InvocationTool         = "tool"
)

// Invocation captures one audited unit of work: a pipeline run for a mailbox
// notification or an MCP tool call.
//
// # Privacy Considerations
//
// Sender contains PII. LogAttrs only emits its domain; LogAuditAttrs emits the
// full address and belongs in audit-specific log streams.
type Invocation struct {
	Kind string
	Name string

	RequestID string
	MessageID string
	Sender    string
	Mode      string

	// Companies is the number of companies named by the message.
	Companies int
	// Upserted is the number of companies that reached the CRM.
	Upserted int

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewInvocation creates a new Invocation with timing started.
// Call Complete() when the work finishes.
func NewInvocation(kind, name string) *Invocation {
	return &Invocation{
		Kind:      kind,
		Name:      name,
		StartTime: time.Now(),
	}
}

// SenderDomain returns the domain portion of the sender for lower-cardinality logging.
func (inv *Invocation) SenderDomain() string {
	return ExtractUserDomain(inv.Sender)
}

// Status returns "success" or "error" based on the Success field.
func (inv *Invocation) Status() string {
	if inv.Success {
		return StatusSuccess
	}
	return StatusError
}

// WithRequest sets the correlation id and the message being processed.
func (inv *Invocation) WithRequest(requestID, messageID string) *Invocation {
	inv.RequestID = requestID
	inv.MessageID = messageID
	return inv
}

// WithSender sets the message sender.
func (inv *Invocation) WithSender(sender string) *Invocation {
	inv.Sender = sender
	return inv
}

// WithUpsert sets the upsert mode and company counts.
func (inv *Invocation) WithUpsert(mode string, companies, upserted int) *Invocation {
	inv.Mode = mode
	inv.Companies = companies
	inv.Upserted = upserted
	return inv
}

// WithSpanContext extracts trace context from the current span.
func (inv *Invocation) WithSpanContext(ctx context.Context) *Invocation {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		inv.TraceID = sc.TraceID().String()
		inv.SpanID = sc.SpanID().String()
	}
	return inv
}

// Complete marks the invocation as finished and calculates duration.
func (inv *Invocation) Complete(err error) *Invocation {
	inv.Duration = time.Since(inv.StartTime)
	inv.Success = err == nil
	if err != nil {
		inv.Error = err.Error()
	}
	return inv
}

// LogAttrs returns slog attributes with cardinality-controlled values.
func (inv *Invocation) LogAttrs() []slog.Attr {
	return inv.attrs(slog.String("sender_domain", inv.SenderDomain()))
}

// LogAuditAttrs returns slog attributes including the full sender address.
//
// # Security Warning
//
// Ensure audit logs are stored securely with appropriate access controls.
func (inv *Invocation) LogAuditAttrs() []slog.Attr {
	attrs := inv.attrs(slog.String("sender", inv.Sender))
	if inv.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", inv.SpanID))
	}
	return attrs
}

func (inv *Invocation) attrs(identity slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", inv.Kind),
		slog.String("name", inv.Name),
		slog.Duration("duration", inv.Duration),
		slog.Bool("success", inv.Success),
	}
	if inv.Sender != "" {
		attrs = append(attrs, identity)
	}
	if inv.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", inv.RequestID))
	}
	if inv.MessageID != "" {
		attrs = append(attrs, slog.String("message_id", inv.MessageID))
	}
	if inv.Mode != "" {
		attrs = append(attrs,
			slog.String("mode", inv.Mode),
			slog.Int("companies", inv.Companies),
			slog.Int("upserted", inv.Upserted),
		)
	}
	if inv.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", inv.TraceID))
	}
	if inv.Error != "" {
		attrs = append(attrs, slog.String("error", inv.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per Invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes inv at info level on success and warn level on failure.
// A nil AuditLogger is a no-op.
func (al *AuditLogger) Log(inv *Invocation) {
	if al == nil || !al.enabled || inv == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = inv.LogAuditAttrs()
	} else {
		attrs = inv.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if inv.Success {
		al.logger.Info(inv.Kind+"_completed", args...)
	} else {
		al.logger.Warn(inv.Kind+"_failed", args...)
	}
}
