package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
)

const (
	// DefaultBaseURL is the Perplexity API endpoint.
	DefaultBaseURL = "https://api.perplexity.ai"

	// DefaultModel is the search-grounded model used for lookups.
	DefaultModel = "sonar"

	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 60 * time.Second

	systemPrompt = "You find official company websites. Reply with exactly one URL and nothing else."
)

// Client resolves company names to canonical URLs through a
// chat-completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

// Config holds the lookup client settings. Empty fields take defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
}

// NewClient creates a lookup client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("lookup API key cannot be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompanyURL asks for the official website of company and returns the single
// URL in the reply. Any failure, including a reply without exactly one URL,
// is returned as LOOKUP_ERROR.
func (c *Client) CompanyURL(ctx context.Context, company string) (string, error) {
	ctx, span := instrumentation.StartCRMSpan(ctx, instrumentation.ServicePerplexity, instrumentation.OperationLookup,
		instrumentation.NewSpanAttributeBuilder().WithCompany(company).Build()...)
	defer span.End()

	start := time.Now()
	reply, err := c.complete(ctx, fmt.Sprintf("What is the official website URL of the company %q?", company))
	var link string
	if err == nil {
		link, err = ExtractURL(reply)
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordCRMOperation(ctx, instrumentation.ServicePerplexity, instrumentation.OperationLookup, status, time.Since(start))

	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", apperrors.Lookup(err, company)
	}
	instrumentation.SetSpanSuccess(span)
	return link, nil
}

func (c *Client) complete(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("lookup returned %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("lookup returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
