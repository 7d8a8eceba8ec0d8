// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the crmupdater service.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, path and status
//
// Remote APIs:
//   - google_api_operations_total, google_api_operation_duration_seconds (gmail, drive)
//   - crm_api_operations_total, crm_api_operation_duration_seconds (affinity, perplexity)
//
// Pipeline:
//   - notifications_processed_total by result
//   - companies_upserted_total by mode and status
//   - attachments_uploaded_total by status
//   - error_reports_total by delivery status
//   - credential_loads_total by source and result
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created per pipeline stage (pipeline.<stage>), per MCP tool
// (tool.<name>), and per remote call (google.<service>.<operation>,
// crm.<service>.<operation>). Inbound and outbound HTTP is traced by otelhttp
// using the global providers installed by NewProvider.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: K_SERVICE, then crmupdater)
//   - METRICS_EXPORT_INTERVAL: push interval for otlp and stdout (default: 10s)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII: audit trail switches
//
// On Cloud Run, K_SERVICE and K_REVISION tag the resource as a gcp_cloud_run
// workload; GOOGLE_CLOUD_PROJECT and GCP_REGION add the account and region.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordNotification(ctx, instrumentation.NotificationProcessed, "")
package instrumentation
