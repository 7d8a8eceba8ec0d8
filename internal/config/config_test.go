package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigPath, "CRM_MODE", "AFFINITY_API_KEY", "AFFINITY_LIST_ID", "PERPLEXITY_API_KEY",
		"RELAY_LIST_ADDRESS", "RELAY_NOTE_ADDRESS", "DRIVE_PARENT_FOLDER_ID", "DRIVE_SHARE_DOMAIN",
		"GMAIL_TOPIC", "OPERATOR_EMAIL", "TOKEN_PATH", "GCP_PROJECT", "PORT", "METRICS_ENABLED", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, ModeDirect, cfg.Mode)
	assert.Equal(t, int64(315335), cfg.Affinity.ListID)
	assert.Equal(t, "https://api.affinity.co/v2", cfg.Affinity.BaseURL)
	assert.Equal(t, "sonar", cfg.Lookup.Model)
	assert.Equal(t, "wyldvc.com", cfg.Drive.ShareDomain)
	assert.Equal(t, "projects/crm-updater-475321/topics/gmail-topic", cfg.Gmail.Topic)
	assert.Equal(t, "INBOX", cfg.Gmail.Label)
	assert.True(t, cfg.Notify.ReportUnmatched)
	assert.Equal(t, "/secrets/token.json", cfg.Credentials.MountedPath)
	assert.Equal(t, "token.json", cfg.Credentials.TokenPath)
	assert.Equal(t, "gmail-token", cfg.Credentials.SecretName)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Dedup.Size)
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("AFFINITY_API_KEY", "aff-key")
	t.Setenv("AFFINITY_LIST_ID", "42")
	t.Setenv("PORT", "9000")
	t.Setenv("OPERATOR_EMAIL", "ops@example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "aff-key", cfg.Affinity.APIKey)
	assert.Equal(t, int64(42), cfg.Affinity.ListID)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "ops@example.com", cfg.Notify.OperatorAddress)
	assert.NoError(t, cfg.RequireOperator())
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_PPLX", "pplx-from-env")
	t.Setenv("RELAY_NOTE_ADDRESS", "notes-env@crm.example.com")

	path := writeConfig(t, `
mode: relay
lookup:
  api_key: ${SECRET_PPLX}
relay:
  list_intake_address: list@crm.example.com
  note_intake_address: notes@crm.example.com
drive:
  parent_folder_id: ${FOLDER_ID:-folder-default}
notify:
  operator_address: ops@example.com
  report_unmatched: false
dedup:
  size: 16
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeRelay, cfg.Mode)
	assert.Equal(t, "pplx-from-env", cfg.Lookup.APIKey)
	assert.Equal(t, "list@crm.example.com", cfg.Relay.ListIntakeAddress)
	assert.Equal(t, "notes-env@crm.example.com", cfg.Relay.NoteIntakeAddress)
	assert.Equal(t, "folder-default", cfg.Drive.ParentFolderID)
	assert.False(t, cfg.Notify.ReportUnmatched)
	assert.Equal(t, 16, cfg.Dedup.Size)
	// untouched sections keep their defaults
	assert.Equal(t, "wyldvc.com", cfg.Drive.ShareDomain)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "affinity:\n  api_key: from-file\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Affinity.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "direct mode without key",
			content: "mode: direct\n",
			wantErr: "affinity.api_key is required",
		},
		{
			name:    "relay mode missing addresses",
			content: "mode: relay\nlookup:\n  api_key: k\n",
			wantErr: "relay.list_intake_address is required",
		},
		{
			name:    "unknown mode",
			content: "mode: carrier-pigeon\n",
			wantErr: "mode must be one of",
		},
		{
			name:    "bad list id",
			content: "affinity:\n  api_key: k\n",
			env:     map[string]string{"AFFINITY_LIST_ID": "abc"},
			wantErr: "AFFINITY_LIST_ID must be an integer",
		},
		{
			name:    "zero dedup size",
			content: "affinity:\n  api_key: k\ndedup:\n  size: 0\n",
			wantErr: "dedup.size must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.CodeConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read config file")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CRM_TEST_SET", "value")
	t.Setenv("CRM_TEST_EMPTY", "")

	assert.Equal(t, "value", ExpandEnvVars("${CRM_TEST_SET}"))
	assert.Equal(t, "fallback", ExpandEnvVars("${CRM_TEST_EMPTY:-fallback}"))
	assert.Equal(t, "${CRM_TEST_UNSET_XYZ}", ExpandEnvVars("${CRM_TEST_UNSET_XYZ}"))
	assert.Equal(t, "a-value-b", ExpandEnvVars("a-${CRM_TEST_SET}-b"))
}

func TestRequireOperator(t *testing.T) {
	cfg := Defaults()
	assert.ErrorIs(t, cfg.RequireOperator(), ErrNoOperator)
}
