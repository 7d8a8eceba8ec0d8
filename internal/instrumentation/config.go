package instrumentation

import (
	"os"
	"strconv"
	"time"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// Config controls the OpenTelemetry provider.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Cloud Run sets K_SERVICE, K_REVISION and K_CONFIGURATION. When the
	// service name is present the resource is tagged as a Cloud Run workload.
	CloudRunService  string
	CloudRunRevision string
	GCPProject       string
	GCPRegion        string

	// Enabled switches metrics and tracing off entirely when false.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme. Shared by both OTLP exporters.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio for new traces, 0.0 to 1.0.
	TraceSamplingRate float64

	// MetricInterval is the push interval of the periodic readers (otlp, stdout).
	MetricInterval time.Duration

	// DetailedLabels adds sender domains to notification metrics.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the audit trail of pipeline runs and tool calls.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs full sender addresses instead of a hash and domain.
	IncludePII bool
}

// DefaultMetricInterval is the export interval of push-based metric readers.
const DefaultMetricInterval = 10 * time.Second

// DefaultConfig reads the configuration from the process environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from getenv, falling back to defaults for
// unset or unparsable values.
func ConfigFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)
	return Config{
		ServiceName:       env.str("OTEL_SERVICE_NAME", env.str("K_SERVICE", "crmupdater")),
		ServiceVersion:    "unknown",
		CloudRunService:   env.str("K_SERVICE", ""),
		CloudRunRevision:  env.str("K_REVISION", ""),
		GCPProject:        env.str("GOOGLE_CLOUD_PROJECT", env.str("GCP_PROJECT", "")),
		GCPRegion:         env.str("GCP_REGION", ""),
		Enabled:           env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:   env.str("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   env.str("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		MetricInterval:    env.duration("METRICS_EXPORT_INTERVAL", DefaultMetricInterval),
		DetailedLabels:    env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks exporter names, the sampling rate and OTLP endpoint presence.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return apperrors.Config("trace sampling rate must be between 0.0 and 1.0, got " +
			strconv.FormatFloat(c.TraceSamplingRate, 'f', -1, 64))
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return apperrors.Config("invalid metrics exporter " + strconv.Quote(c.MetricsExporter) +
			", must be one of: prometheus, otlp, stdout")
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return apperrors.Config("invalid tracing exporter " + strconv.Quote(c.TracingExporter) +
			", must be one of: otlp, stdout, none")
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return apperrors.Config("OTLP endpoint is required when an otlp exporter is selected")
	}

	return nil
}

func (c *Config) metricInterval() time.Duration {
	if c.MetricInterval <= 0 {
		return DefaultMetricInterval
	}
	return c.MetricInterval
}

type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	v, err := strconv.ParseBool(e(key))
	if err != nil {
		return def
	}
	return v
}

func (e envReader) float(key string, def float64) float64 {
	v, err := strconv.ParseFloat(e(key), 64)
	if err != nil {
		return def
	}
	return v
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(e(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
