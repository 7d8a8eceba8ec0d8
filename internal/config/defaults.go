package config

import (
	"github.com/teemow/crmupdater/internal/affinity"
	"github.com/teemow/crmupdater/internal/google"
	"github.com/teemow/crmupdater/internal/lookup"
)

// Default values not owned by a client package.
const (
	DefaultGmailTopic  = "projects/crm-updater-475321/topics/gmail-topic"
	DefaultGmailLabel  = "INBOX"
	DefaultShareDomain = "wyldvc.com"
	DefaultGCPProject  = "crm-updater-475321"
	DefaultServerAddr  = ":8080"
	DefaultMetricsAddr = ":9090"
	DefaultDedupSize   = 256
)

// Defaults returns the configuration used before the file and environment
// are applied.
func Defaults() *Config {
	return &Config{
		Mode: ModeDirect,
		Affinity: AffinityConfig{
			ListID:  affinity.DefaultListID,
			BaseURL: affinity.DefaultBaseURL,
		},
		Lookup: LookupConfig{
			BaseURL: lookup.DefaultBaseURL,
			Model:   lookup.DefaultModel,
		},
		Drive: DriveConfig{
			ShareDomain: DefaultShareDomain,
		},
		Gmail: GmailConfig{
			Topic: DefaultGmailTopic,
			Label: DefaultGmailLabel,
		},
		Notify: NotifyConfig{
			ReportUnmatched: true,
		},
		Credentials: CredentialsConfig{
			MountedPath: google.DefaultMountedPath,
			TokenPath:   google.DefaultTokenPath,
			GCPProject:  DefaultGCPProject,
			SecretName:  google.DefaultSecretName,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Dedup: DedupConfig{
			Size: DefaultDedupSize,
		},
	}
}
