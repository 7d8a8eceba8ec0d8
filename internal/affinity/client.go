package affinity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
)

const (
	// DefaultBaseURL is the Affinity v2 REST endpoint.
	DefaultBaseURL = "https://api.affinity.co/v2"

	// DefaultListID is the deal-flow list companies are added to.
	DefaultListID int64 = 315335

	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 512
)

// Client talks to the Affinity API for a single list.
type Client struct {
	baseURL    string
	apiKey     string
	listID     int64
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithListID sets the list companies are added to.
func WithListID(id int64) ClientOption {
	return func(c *Client) {
		c.listID = id
	}
}

// WithHTTPClient replaces the traced default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records CRM operation metrics on m.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates an Affinity client authenticating with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("affinity API key cannot be empty")
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		listID:  DefaultListID,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListID returns the list this client writes to.
func (c *Client) ListID() int64 {
	return c.listID
}

// SearchCompany finds the first company whose name matches name.
// found is false when Affinity has no match.
func (c *Client) SearchCompany(ctx context.Context, name string) (company *Company, found bool, err error) {
	q := url.Values{}
	q.Set("filter", fmt.Sprintf("name=~%q", name))
	q.Set("limit", "1")

	var page companyPage
	if err := c.call(ctx, instrumentation.OperationSearch, http.MethodGet, c.baseURL+"/companies?"+q.Encode(), nil, &page); err != nil {
		return nil, false, err
	}
	if len(page.Data) == 0 {
		return nil, false, nil
	}
	return &page.Data[0], true, nil
}

// CreateCompany creates a company named name.
func (c *Client) CreateCompany(ctx context.Context, name string) (*Company, error) {
	var created Company
	if err := c.call(ctx, instrumentation.OperationCreate, http.MethodPost, c.baseURL+"/companies", createCompanyRequest{Name: name}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListMembers returns the ids of all companies in the list, following
// pagination until the last page.
func (c *Client) ListMembers(ctx context.Context) (MemberSet, error) {
	members := MemberSet{}
	next := c.entriesURL()
	seen := map[string]bool{}

	for next != "" && !seen[next] {
		seen[next] = true

		var page listEntryPage
		if err := c.call(ctx, instrumentation.OperationListMembers, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, entry := range page.Data {
			if entry.Company.ID != 0 {
				members.Add(entry.Company.ID)
			}
		}
		next = page.Pagination.NextURL
	}
	return members, nil
}

// AddToList adds a company to the list.
func (c *Client) AddToList(ctx context.Context, companyID int64) error {
	return c.call(ctx, instrumentation.OperationAddToList, http.MethodPost, c.entriesURL(), addListEntryRequest{CompanyID: companyID}, nil)
}

// AddNote attaches a note to a company.
func (c *Client) AddNote(ctx context.Context, companyID int64, content string) error {
	endpoint := c.baseURL + "/companies/" + strconv.FormatInt(companyID, 10) + "/notes"
	return c.call(ctx, instrumentation.OperationAddNote, http.MethodPost, endpoint, addNoteRequest{Content: content}, nil)
}

func (c *Client) entriesURL() string {
	return c.baseURL + "/lists/" + strconv.FormatInt(c.listID, 10) + "/list-entries"
}

// call runs one traced and metered request. Failures are returned as
// CRM_OPERATION_ERROR naming op.
func (c *Client) call(ctx context.Context, op, method, endpoint string, in, out any) error {
	ctx, span := instrumentation.StartCRMSpan(ctx, instrumentation.ServiceAffinity, op)
	defer span.End()

	start := time.Now()
	err := c.do(ctx, op, method, endpoint, in, out)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordCRMOperation(ctx, instrumentation.ServiceAffinity, op, status, time.Since(start))

	if err != nil {
		instrumentation.SetSpanError(span, err)
		return apperrors.CrmOperation(err, op)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("affinity %s request failed: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode affinity %s response: %w", op, err)
	}
	return nil
}
