// Package provider submits video generation requests to the external
// provider. Results come back through the webhook, never through polling.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hugh/ia-marketing/pkg/config"
)

// ErrRejected marks a request the provider refused outright. Retrying it
// will not help.
var ErrRejected = errors.New("provider rejected the request")

type GenerationRequest struct {
	JobID       uuid.UUID       `json:"reference_id"`
	Prompt      string          `json:"prompt"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

type Generation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Client struct {
	name        string
	baseURL     string
	apiKey      string
	callbackURL string
	http        *retryablehttp.Client
}

func NewClient(cfg config.ProviderConfig, log *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	if log != nil {
		rc.Logger = log
	}
	if t := cfg.Timeout(); t > 0 {
		rc.HTTPClient.Timeout = t
	}

	return &Client{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		http:        rc,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Submit starts a generation. The job id doubles as the idempotency key so
// a retried submission does not start a second render.
func (c *Client) Submit(ctx context.Context, req GenerationRequest) (*Generation, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.JobID.String())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var gen Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &gen, nil
}
