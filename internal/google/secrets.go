package google

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretAccessor reads the payload of a secret version.
// name is a full resource name, e.g. projects/p/secrets/s/versions/latest.
type SecretAccessor interface {
	AccessSecret(ctx context.Context, name string) ([]byte, error)
}

// SecretVersionName returns the resource name of the latest version of secret in project.
func SecretVersionName(project, secret string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, secret)
}

// SecretManager reads secrets from Google Cloud Secret Manager using
// application default credentials.
type SecretManager struct {
	client *secretmanager.Client
}

// NewSecretManager creates a Secret Manager client.
func NewSecretManager(ctx context.Context, opts ...option.ClientOption) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManager{client: client}, nil
}

// AccessSecret returns the payload of the named secret version.
func (s *SecretManager) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	if resp.GetPayload() == nil {
		return nil, fmt.Errorf("secret %s has no payload", name)
	}
	return resp.GetPayload().GetData(), nil
}

// Close releases the underlying connection.
func (s *SecretManager) Close() error {
	return s.client.Close()
}
