package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrMode      = "mode"
	attrSource    = "source"
	attrSender    = "sender_domain"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// CRM and lookup API metrics
	crmAPIOperationsTotal   metric.Int64Counter
	crmAPIOperationDuration metric.Float64Histogram

	// Pipeline metrics
	notificationsTotal  metric.Int64Counter
	companiesTotal      metric.Int64Counter
	attachmentsTotal    metric.Int64Counter
	errorReportsTotal   metric.Int64Counter
	credentialLoadTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.crmAPIOperationsTotal, err = meter.Int64Counter(
		"crm_api_operations_total",
		metric.WithDescription("Total number of CRM and company lookup API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create crm_api_operations_total counter: %w", err)
	}

	m.crmAPIOperationDuration, err = meter.Float64Histogram(
		"crm_api_operation_duration_seconds",
		metric.WithDescription("CRM and company lookup API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create crm_api_operation_duration_seconds histogram: %w", err)
	}

	m.notificationsTotal, err = meter.Int64Counter(
		"notifications_processed_total",
		metric.WithDescription("Total number of mailbox notifications handled, by result"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications_processed_total counter: %w", err)
	}

	m.companiesTotal, err = meter.Int64Counter(
		"companies_upserted_total",
		metric.WithDescription("Total number of company upserts, by mode and status"),
		metric.WithUnit("{company}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create companies_upserted_total counter: %w", err)
	}

	m.attachmentsTotal, err = meter.Int64Counter(
		"attachments_uploaded_total",
		metric.WithDescription("Total number of attachment uploads to Drive, by status"),
		metric.WithUnit("{attachment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachments_uploaded_total counter: %w", err)
	}

	m.errorReportsTotal, err = meter.Int64Counter(
		"error_reports_total",
		metric.WithDescription("Total number of operator error reports, by delivery status"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error_reports_total counter: %w", err)
	}

	m.credentialLoadTotal, err = meter.Int64Counter(
		"credential_loads_total",
		metric.WithDescription("Total number of Google credential loads, by source and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_loads_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, drive)
//   - operation: Operation type (list, get, send, watch, upload, share)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCRMOperation records a call against the CRM (affinity) or the company
// lookup service (perplexity).
func (m *Metrics) RecordCRMOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.crmAPIOperationsTotal == nil || m.crmAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.crmAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.crmAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordNotification records the outcome of one mailbox notification.
// Result should be one of the Notification* constants.
// sender is only attached (as its domain) when detailed labels are enabled.
func (m *Metrics) RecordNotification(ctx context.Context, result, sender string) {
	if m == nil || m.notificationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && sender != "" {
		attrs = append(attrs, attribute.String(attrSender, ExtractUserDomain(sender)))
	}

	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCompanyUpsert records one company processed by an upserter.
func (m *Metrics) RecordCompanyUpsert(ctx context.Context, mode, status string) {
	if m == nil || m.companiesTotal == nil {
		return // Instrumentation not initialized
	}

	m.companiesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrStatus, status),
	))
}

// RecordAttachmentUpload records one attachment relayed to Drive.
func (m *Metrics) RecordAttachmentUpload(ctx context.Context, status string) {
	if m == nil || m.attachmentsTotal == nil {
		return // Instrumentation not initialized
	}

	m.attachmentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordErrorReport records one operator report and whether it was delivered.
func (m *Metrics) RecordErrorReport(ctx context.Context, status string) {
	if m == nil || m.errorReportsTotal == nil {
		return // Instrumentation not initialized
	}

	m.errorReportsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordCredentialLoad records a credential load attempt from source.
// Result should be one of: "success", "failure", "missing"
func (m *Metrics) RecordCredentialLoad(ctx context.Context, source, result string) {
	if m == nil || m.credentialLoadTotal == nil {
		return // Instrumentation not initialized
	}

	m.credentialLoadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSource, source),
		attribute.String(attrResult, result),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "crm_parse_email", "gmail_refresh_watch")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
