package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// Modes select the CRM upserter.
const (
	ModeDirect = "direct"
	ModeRelay  = "relay"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "CRMUPDATER_CONFIG"

// Config is the root configuration for the updater.
type Config struct {
	Mode        string            `yaml:"mode"`
	Affinity    AffinityConfig    `yaml:"affinity"`
	Lookup      LookupConfig      `yaml:"lookup"`
	Relay       RelayConfig       `yaml:"relay"`
	Drive       DriveConfig       `yaml:"drive"`
	Gmail       GmailConfig       `yaml:"gmail"`
	Notify      NotifyConfig      `yaml:"notify"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Dedup       DedupConfig       `yaml:"dedup"`
}

type AffinityConfig struct {
	APIKey  string `yaml:"api_key"`
	ListID  int64  `yaml:"list_id"`
	BaseURL string `yaml:"base_url"`
}

type LookupConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RelayConfig holds the intake addresses used in relay mode.
type RelayConfig struct {
	ListIntakeAddress string `yaml:"list_intake_address"`
	NoteIntakeAddress string `yaml:"note_intake_address"`
}

type DriveConfig struct {
	ParentFolderID string `yaml:"parent_folder_id"`
	ShareDomain    string `yaml:"share_domain"`
}

type GmailConfig struct {
	// Topic is the Pub/Sub topic the mailbox watch publishes to.
	Topic string `yaml:"topic"`
	// Label selects the latest message and scopes the watch. Empty means all mail.
	Label string `yaml:"label"`
}

type NotifyConfig struct {
	OperatorAddress string `yaml:"operator_address"`
	// ReportUnmatched reports messages without the trigger phrase.
	ReportUnmatched bool `yaml:"report_unmatched"`
}

// CredentialsConfig locates the Google token document.
type CredentialsConfig struct {
	MountedPath string `yaml:"mounted_path"`
	TokenPath   string `yaml:"token_path"`
	GCPProject  string `yaml:"gcp_project"`
	SecretName  string `yaml:"secret_name"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig holds configuration for the metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type DedupConfig struct {
	// Size is the number of recent message ids remembered.
	Size int `yaml:"size"`
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses default when VAR is unset or empty. Unknown variables
// without a default are left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		val, ok := os.LookupEnv(groups[1])
		if ok && val != "" {
			return val
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		return match
	})
}

// Load builds the configuration from defaults, the optional YAML file at path
// and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnvOrDefault returns the value of key, or def when it is unset or empty.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() error {
	c.Mode = strings.ToLower(getEnvOrDefault("CRM_MODE", c.Mode))
	c.Affinity.APIKey = getEnvOrDefault("AFFINITY_API_KEY", c.Affinity.APIKey)
	if v := os.Getenv("AFFINITY_LIST_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperrors.Config(fmt.Sprintf("AFFINITY_LIST_ID must be an integer, got %q", v))
		}
		c.Affinity.ListID = id
	}
	c.Lookup.APIKey = getEnvOrDefault("PERPLEXITY_API_KEY", c.Lookup.APIKey)
	c.Relay.ListIntakeAddress = getEnvOrDefault("RELAY_LIST_ADDRESS", c.Relay.ListIntakeAddress)
	c.Relay.NoteIntakeAddress = getEnvOrDefault("RELAY_NOTE_ADDRESS", c.Relay.NoteIntakeAddress)
	c.Drive.ParentFolderID = getEnvOrDefault("DRIVE_PARENT_FOLDER_ID", c.Drive.ParentFolderID)
	c.Drive.ShareDomain = getEnvOrDefault("DRIVE_SHARE_DOMAIN", c.Drive.ShareDomain)
	c.Gmail.Topic = getEnvOrDefault("GMAIL_TOPIC", c.Gmail.Topic)
	c.Notify.OperatorAddress = getEnvOrDefault("OPERATOR_EMAIL", c.Notify.OperatorAddress)
	c.Credentials.TokenPath = getEnvOrDefault("TOKEN_PATH", c.Credentials.TokenPath)
	c.Credentials.GCPProject = getEnvOrDefault("GCP_PROJECT", c.Credentials.GCPProject)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if os.Getenv("METRICS_ENABLED") == "true" {
		c.Metrics.Enabled = true
	}
	c.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", c.Metrics.Addr)
	return nil
}

// Validate checks that the configuration can drive the selected mode.
// All problems are returned together as a CONFIG_ERROR.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mode {
	case ModeDirect:
		if c.Affinity.APIKey == "" {
			errs = append(errs, "affinity.api_key is required in direct mode (AFFINITY_API_KEY)")
		}
		if c.Affinity.ListID <= 0 {
			errs = append(errs, "affinity.list_id must be positive")
		}
	case ModeRelay:
		if c.Lookup.APIKey == "" {
			errs = append(errs, "lookup.api_key is required in relay mode (PERPLEXITY_API_KEY)")
		}
		if c.Relay.ListIntakeAddress == "" {
			errs = append(errs, "relay.list_intake_address is required in relay mode (RELAY_LIST_ADDRESS)")
		}
		if c.Relay.NoteIntakeAddress == "" {
			errs = append(errs, "relay.note_intake_address is required in relay mode (RELAY_NOTE_ADDRESS)")
		}
	default:
		errs = append(errs, fmt.Sprintf("mode must be one of: %s, %s (got %q)", ModeDirect, ModeRelay, c.Mode))
	}

	if c.Dedup.Size < 1 {
		errs = append(errs, "dedup.size must be >= 1")
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}

	if len(errs) > 0 {
		return apperrors.Config("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

// ErrNoOperator is returned by RequireOperator when reports have nowhere to go.
var ErrNoOperator = errors.New("notify.operator_address is not set (OPERATOR_EMAIL)")

// RequireOperator reports whether error reports can be delivered.
func (c *Config) RequireOperator() error {
	if c.Notify.OperatorAddress == "" {
		return ErrNoOperator
	}
	return nil
}
