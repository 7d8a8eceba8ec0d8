package instrumentation

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Notification results
	NotificationProcessed  = "processed"
	NotificationSkipped    = "skipped"
	NotificationDuplicate  = "duplicate"
	NotificationSelfReport = "self_report"
	NotificationUnmatched  = "unmatched"
	NotificationFailed     = "failed"

	// Credential sources and results
	CredentialSourceMounted       = "mounted"
	CredentialSourceFile          = "file"
	CredentialSourceSecretManager = "secret_manager"
	CredentialResultSuccess       = "success"
	CredentialResultFailure       = "failure"
	CredentialResultMissing       = "missing"

	ServiceGmail      = "gmail"
	ServiceDrive      = "drive"
	ServiceAffinity   = "affinity"
	ServicePerplexity = "perplexity"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
