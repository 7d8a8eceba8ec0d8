package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the crmupdater module.
const TracerName = "github.com/teemow/crmupdater"

// Span attribute keys.
const (
	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"

	// SpanAttrService is the remote service attribute (gmail, drive, affinity, perplexity).
	SpanAttrService = "remote.service"

	// SpanAttrOperation is the remote operation attribute.
	SpanAttrOperation = "remote.operation"

	// SpanAttrStage is the pipeline stage attribute.
	SpanAttrStage = "pipeline.stage"

	// SpanAttrMessageID is the Gmail message id being processed.
	SpanAttrMessageID = "gmail.message_id"

	// SpanAttrHistoryID is the change indicator carried by the notification.
	SpanAttrHistoryID = "gmail.history_id"

	// SpanAttrCompany is the company name being upserted.
	SpanAttrCompany = "crm.company"

	// SpanAttrMode is the upsert mode (direct or relay).
	SpanAttrMode = "crm.mode"

	// SpanAttrRequestID is the correlation id of the inbound request.
	SpanAttrRequestID = "request.id"
)

// Pipeline stage names.
const (
	StageReceive = "receive"
	StageFetch   = "fetch"
	StageRelay   = "relay"
	StageParse   = "parse"
	StageUpsert  = "upsert"
	StageReport  = "report"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithService adds the remote service attribute.
func (b *SpanAttributeBuilder) WithService(service string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrService, service))
	return b
}

// WithOperation adds the operation type attribute.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperation, operation))
	return b
}

// WithMessage adds the Gmail message and history ids, skipping empty values.
func (b *SpanAttributeBuilder) WithMessage(messageID, historyID string) *SpanAttributeBuilder {
	if messageID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrMessageID, messageID))
	}
	if historyID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrHistoryID, historyID))
	}
	return b
}

// WithCompany adds the company attribute.
func (b *SpanAttributeBuilder) WithCompany(company string) *SpanAttributeBuilder {
	if company != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrCompany, company))
	}
	return b
}

// WithMode adds the upsert mode attribute.
func (b *SpanAttributeBuilder) WithMode(mode string) *SpanAttributeBuilder {
	if mode != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrMode, mode))
	}
	return b
}

// WithRequestID adds the request correlation id.
func (b *SpanAttributeBuilder) WithRequestID(id string) *SpanAttributeBuilder {
	if id != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrRequestID, id))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a span of the given kind on the package tracer.
// The caller ends it.
func StartSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// StartStageSpan starts an internal span named pipeline.<stage>.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrStage, stage)}, attrs...)
	return StartSpan(ctx, "pipeline."+stage, trace.SpanKindInternal, all...)
}

// StartToolSpan starts a server span named tool.<name> for an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append(NewSpanAttributeBuilder().WithTool(toolName).Build(), attrs...)
	return StartSpan(ctx, "tool."+toolName, trace.SpanKindServer, all...)
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startClientSpan(ctx, "google.", service, operation, attrs)
}

// StartCRMSpan starts a client span named crm.<service>.<operation>.
func StartCRMSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startClientSpan(ctx, "crm.", service, operation, attrs)
}

func startClientSpan(ctx context.Context, prefix, service, operation string, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	all := append(NewSpanAttributeBuilder().WithService(service).WithOperation(operation).Build(), attrs...)
	return StartSpan(ctx, prefix+service+"."+operation, trace.SpanKindClient, all...)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
