package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/safe"
)

const (
	// DefaultBaseURL is the UC platform API root
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// Presence lookups have no bulk endpoint, so agents are fetched in
	// small concurrent batches with a pause between them to respect the
	// per-app rate limit.
	defaultBatchSize  = 3
	defaultBatchDelay = 250 * time.Millisecond
)

// Client calls the UC platform's presence and subscription APIs
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     interfaces.TokenSource
	normalizer *types.Normalizer

	batchSize  int
	batchDelay time.Duration
}

// Option is a functional option for the client
type Option func(*Client)

// WithBaseURL overrides the API root (tests)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBatching overrides batch size and inter-batch delay
func WithBatching(size int, delay time.Duration) Option {
	return func(c *Client) {
		c.batchSize = size
		c.batchDelay = delay
	}
}

// New creates a UC platform client backed by the token source
func New(tokens interfaces.TokenSource, normalizer *types.Normalizer, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, goerr.New("token source is required")
	}
	if normalizer == nil {
		normalizer = types.NewNormalizer(nil)
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		tokens:     tokens,
		normalizer: normalizer,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name identifies this provider in provenance logs
func (c *Client) Name() string {
	return "graph"
}

// do issues an authenticated request and decodes the JSON response into out
// (when out is non-nil). Non-2xx responses become errors carrying status
// and body.
func (c *Client) do(ctx context.Context, scope types.TokenScope, method, url string, payload, out any) error {
	token, err := c.tokens.GetToken(ctx, scope)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request payload")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("url", url))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return goerr.New("upstream returned an error",
			goerr.V(types.StatusKey, resp.StatusCode),
			goerr.V(types.BodyKey, string(body)),
			goerr.V("url", url),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return goerr.Wrap(err, "failed to parse response", goerr.V("url", url))
	}
	return nil
}
