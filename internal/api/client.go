// Package api implements the HTTP client for the Promptwire REST surface.
//
// All calls are scoped to the project and credential pair fixed at
// construction. Reads are retried with jittered backoff; event submission is
// single-shot because callers treat it as best-effort.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/haasonsaas/promptwire/internal/backoff"
	"github.com/haasonsaas/promptwire/pkg/models"
)

// ErrNotFound reports a 404 from the service.
var ErrNotFound = errors.New("not found")

// StatusError reports a non-2xx response that is not a plain 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Code)
}

// Client talks to one project on one Promptwire deployment.
type Client struct {
	baseURL     string
	apiKey      string
	projectID   string
	httpClient  *http.Client
	logger      *slog.Logger
	retryPolicy backoff.Policy
	maxAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry sets the read-retry policy and attempt budget.
func WithRetry(policy backoff.Policy, maxAttempts int) Option {
	return func(c *Client) {
		c.retryPolicy = policy
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// NewClient creates a client for one project/credential pair.
func NewClient(baseURL, apiKey, projectID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:      slog.Default().With("component", "api"),
		retryPolicy: backoff.DefaultPolicy(),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPrompts fetches every prompt in the project.
func (c *Client) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	var envelope struct {
		Prompts []json.RawMessage `json:"prompts"`
	}
	path := "/api/prompts/project/" + url.PathEscape(c.projectID)
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		return nil, err
	}
	prompts := make([]*models.Prompt, 0, len(envelope.Prompts))
	for _, raw := range envelope.Prompts {
		p, err := DecodePrompt(raw)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// GetPrompt fetches one prompt version by id.
func (c *Client) GetPrompt(ctx context.Context, id string) (*models.Prompt, error) {
	var envelope struct {
		Prompt json.RawMessage `json:"prompt"`
	}
	if err := c.getJSON(ctx, "/api/prompts/"+url.PathEscape(id), &envelope); err != nil {
		return nil, err
	}
	return DecodePrompt(envelope.Prompt)
}

// ListExperiments fetches every experiment in the project.
func (c *Client) ListExperiments(ctx context.Context) ([]*models.Experiment, error) {
	var envelope struct {
		Experiments []json.RawMessage `json:"abTests"`
	}
	path := "/api/ab-tests/project/" + url.PathEscape(c.projectID)
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		return nil, err
	}
	experiments := make([]*models.Experiment, 0, len(envelope.Experiments))
	for _, raw := range envelope.Experiments {
		x, err := DecodeExperiment(raw)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, x)
	}
	return experiments, nil
}

// GetExperiment fetches one experiment by id.
func (c *Client) GetExperiment(ctx context.Context, id string) (*models.Experiment, error) {
	var envelope struct {
		Experiment json.RawMessage `json:"abTest"`
	}
	if err := c.getJSON(ctx, "/api/ab-tests/"+url.PathEscape(id), &envelope); err != nil {
		return nil, err
	}
	return DecodeExperiment(envelope.Experiment)
}

// GetExperimentAnalytics fetches per-variant aggregates for an experiment.
func (c *Client) GetExperimentAnalytics(ctx context.Context, id string) ([]models.VariantAnalytics, error) {
	var envelope struct {
		Analytics []models.VariantAnalytics `json:"analytics"`
	}
	path := "/api/ab-tests/" + url.PathEscape(id) + "/analytics"
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		return nil, err
	}
	return envelope.Analytics, nil
}

// SendUsage submits one usage event. Single attempt; callers own the
// best-effort policy.
func (c *Client) SendUsage(ctx context.Context, event *models.UsageEvent) error {
	return c.postJSON(ctx, "/api/usage", event)
}

// SendExperimentResult submits one experiment result event.
func (c *Client) SendExperimentResult(ctx context.Context, experimentID string, event *models.ExperimentResultEvent) error {
	path := "/api/ab-tests/" + url.PathEscape(experimentID) + "/results"
	return c.postJSON(ctx, path, event)
}

// getJSON performs a GET with auth, retrying transport and 5xx failures with
// jittered backoff. 4xx responses return immediately.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.doJSON(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts {
			return err
		}
		c.logger.Warn("request failed, retrying",
			"path", path, "attempt", attempt, "error", err)
		if err := c.retryPolicy.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable reports whether a failed request is worth repeating: transport
// errors and 5xx responses are, 4xx responses are not.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
