package drive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
)

// Permission values applied to every uploaded attachment.
const (
	PermissionTypeDomain = "domain"
	PermissionRoleReader = "reader"
)

// Client wraps the Google Drive API service
type Client struct {
	service        *drive.Service
	parentFolderID string
	shareDomain    string
	metrics        *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithParentFolder creates uploads under the given folder.
func WithParentFolder(folderID string) ClientOption {
	return func(c *Client) {
		c.parentFolderID = folderID
	}
}

// WithShareDomain sets the domain uploads are shared with as readers.
func WithShareDomain(domain string) ClientOption {
	return func(c *Client) {
		c.shareDomain = domain
	}
}

// WithMetrics records Google API operation metrics on m.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Drive client that authenticates through httpClient.
// Additional API options (e.g. option.WithEndpoint) are passed through.
func NewClient(ctx context.Context, httpClient *http.Client, opts []option.ClientOption, clientOpts ...ClientOption) (*Client, error) {
	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := drive.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	c := &Client{service: svc}
	for _, opt := range clientOpts {
		opt(c)
	}
	return c, nil
}

// observe records metrics for one API call and returns err unchanged.
func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) error {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, operation, status, time.Since(start))
	return err
}

// UploadAttachment stores content as a new file, shares it read-only with the
// configured domain (without making it discoverable) and returns its view link.
// Any failure is returned as UPLOAD_ERROR.
func (c *Client) UploadAttachment(ctx context.Context, filename string, content []byte, mimeType string) (*UploadedFile, error) {
	if filename == "" {
		return nil, apperrors.Upload(fmt.Errorf("file name is required"), filename)
	}

	fileID, err := c.create(ctx, filename, content, mimeType)
	if err != nil {
		return nil, apperrors.Upload(err, filename)
	}

	if c.shareDomain != "" {
		if err := c.share(ctx, fileID); err != nil {
			return nil, apperrors.Upload(err, filename)
		}
	}

	link, err := c.viewLink(ctx, fileID)
	if err != nil {
		return nil, apperrors.Upload(err, filename)
	}

	return &UploadedFile{
		FileID:         fileID,
		SourceFilename: filename,
		Link:           link,
	}, nil
}

func (c *Client) create(ctx context.Context, filename string, content []byte, mimeType string) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationUpload)
	defer span.End()

	file := &drive.File{
		Name:     filename,
		MimeType: mimeType,
	}
	if c.parentFolderID != "" {
		file.Parents = []string{c.parentFolderID}
	}

	start := time.Now()
	created, err := c.service.Files.Create(file).
		Context(ctx).
		SupportsAllDrives(true).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeType)).
		Fields("id").
		Do()
	if err := c.observe(ctx, instrumentation.OperationUpload, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("upload returned no file id")
	}
	return created.Id, nil
}

func (c *Client) share(ctx context.Context, fileID string) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationShare)
	defer span.End()

	perm := &drive.Permission{
		Type:               PermissionTypeDomain,
		Role:               PermissionRoleReader,
		Domain:             c.shareDomain,
		AllowFileDiscovery: false,
		// false is the zero value and would otherwise be omitted
		ForceSendFields: []string{"AllowFileDiscovery"},
	}

	start := time.Now()
	_, err := c.service.Permissions.Create(fileID, perm).
		Context(ctx).
		SupportsAllDrives(true).
		Do()
	if err := c.observe(ctx, instrumentation.OperationShare, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("failed to share file %s: %w", fileID, err)
	}
	return nil
}

func (c *Client) viewLink(ctx context.Context, fileID string) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationGet)
	defer span.End()

	start := time.Now()
	file, err := c.service.Files.Get(fileID).
		Context(ctx).
		SupportsAllDrives(true).
		Fields("webViewLink").
		Do()
	if err := c.observe(ctx, instrumentation.OperationGet, start, err); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to get file %s: %w", fileID, err)
	}
	return file.WebViewLink, nil
}
