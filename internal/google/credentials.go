package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

// Credential store defaults.
const (
	DefaultMountedPath = "/secrets/token.json"
	DefaultTokenPath   = "token.json"
	DefaultSecretName  = "gmail-token"
)

// ErrNoCredentials is returned when no source holds a token document.
var ErrNoCredentials = errors.New("no Google credentials found")

// authorizedUser is the on-disk token document.
type authorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// Credentials is a parsed token document.
type Credentials struct {
	Config *oauth2.Config
	Token  *oauth2.Token
}

// ParseAuthorizedUser parses an authorized-user token document.
// A missing or unparsable expiry marks the access token as expired so that it
// is refreshed before first use.
func ParseAuthorizedUser(data []byte) (*Credentials, error) {
	var doc authorizedUser
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse token document: %w", err)
	}

	var missing []string
	if doc.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if doc.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if doc.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("token document is missing fields: %s", strings.Join(missing, ", "))
	}

	endpoint := google.Endpoint
	if doc.TokenURI != "" {
		endpoint.TokenURL = doc.TokenURI
	}

	scopes := doc.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	expiry := time.Unix(1, 0)
	if doc.Expiry != "" {
		if t, err := time.Parse(time.RFC3339Nano, doc.Expiry); err == nil {
			expiry = t
		}
	}
	if doc.Token == "" {
		expiry = time.Unix(1, 0)
	}

	return &Credentials{
		Config: &oauth2.Config{
			ClientID:     doc.ClientID,
			ClientSecret: doc.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		Token: &oauth2.Token{
			AccessToken:  doc.Token,
			TokenType:    "Bearer",
			RefreshToken: doc.RefreshToken,
			Expiry:       expiry,
		},
	}, nil
}

// TokenSource returns a refreshing token source. ctx is used for refresh
// requests and must outlive the source.
func (c *Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.Config.TokenSource(ctx, c.Token)
}

// CredentialStore locates the token document. Empty paths skip that source.
type CredentialStore struct {
	MountedPath string
	TokenPath   string
	Project     string
	SecretName  string

	// Secrets reads from Secret Manager. When nil, a client is created on demand.
	Secrets SecretAccessor

	Metrics *instrumentation.Metrics
	Logger  logging.Logger
}

func (s *CredentialStore) logger() logging.Logger {
	if s.Logger == nil {
		return logging.NewSlogAdapter(nil)
	}
	return s.Logger
}

// Load returns the raw token document and the source it came from.
func (s *CredentialStore) Load(ctx context.Context) ([]byte, string, error) {
	files := []struct {
		source string
		path   string
	}{
		{instrumentation.CredentialSourceMounted, s.MountedPath},
		{instrumentation.CredentialSourceFile, s.TokenPath},
	}

	for _, f := range files {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		switch {
		case err == nil:
			s.Metrics.RecordCredentialLoad(ctx, f.source, instrumentation.CredentialResultSuccess)
			s.logger().Debug("loaded Google credentials", "source", f.source, "path", f.path)
			return data, f.source, nil
		case errors.Is(err, fs.ErrNotExist):
			s.Metrics.RecordCredentialLoad(ctx, f.source, instrumentation.CredentialResultMissing)
		default:
			s.Metrics.RecordCredentialLoad(ctx, f.source, instrumentation.CredentialResultFailure)
			return nil, f.source, fmt.Errorf("failed to read token file %s: %w", f.path, err)
		}
	}

	if s.Project == "" || s.SecretName == "" {
		return nil, "", ErrNoCredentials
	}

	data, err := s.accessSecret(ctx)
	if err != nil {
		s.Metrics.RecordCredentialLoad(ctx, instrumentation.CredentialSourceSecretManager, instrumentation.CredentialResultFailure)
		return nil, instrumentation.CredentialSourceSecretManager, fmt.Errorf("%w: %w", ErrNoCredentials, err)
	}
	s.Metrics.RecordCredentialLoad(ctx, instrumentation.CredentialSourceSecretManager, instrumentation.CredentialResultSuccess)
	s.logger().Debug("loaded Google credentials", "source", instrumentation.CredentialSourceSecretManager, "secret", s.SecretName)
	return data, instrumentation.CredentialSourceSecretManager, nil
}

func (s *CredentialStore) accessSecret(ctx context.Context) ([]byte, error) {
	name := SecretVersionName(s.Project, s.SecretName)
	if s.Secrets != nil {
		return s.Secrets.AccessSecret(ctx, name)
	}

	sm, err := NewSecretManager(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sm.Close(); cerr != nil {
			s.logger().Warn("failed to close Secret Manager client", logging.Err(cerr))
		}
	}()
	return sm.AccessSecret(ctx, name)
}

// Credentials loads and parses the token document.
func (s *CredentialStore) Credentials(ctx context.Context) (*Credentials, error) {
	data, source, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := ParseAuthorizedUser(data)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials from %s: %w", source, err)
	}
	return creds, nil
}

// HTTPClient returns an HTTP client that authorizes requests with the stored
// credentials. ctx is used for token refreshes and must outlive the client.
func (s *CredentialStore) HTTPClient(ctx context.Context) (*http.Client, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return NewHTTPClient(creds.TokenSource(ctx)), nil
}

// NewHTTPClient returns a traced HTTP client authorizing requests with ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(ts oauth2.TokenSource) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ForceAttemptHTTP2 = false

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, ts),
			Base:   otelhttp.NewTransport(base),
		},
	}
}
