// Package llmclient is the provider adapter: a tier-routed completion
// client with circuit-breaker-aware fallback, exponential-backoff retry,
// and an append-only audit trail, on top of the model registry's catalog.
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/model"
)

// maxResponseSize bounds a provider response body so a misbehaving
// endpoint cannot exhaust memory.
const maxResponseSize = 10 * 1024 * 1024

// jsonOutputSuffix is appended to the last user message of every extract()
// call so the model is told, once and consistently, to answer with JSON
// only.
const jsonOutputSuffix = "\n\nRespond with a single JSON object and nothing else: no prose, no markdown code fences."

// Client is a tier-routed completion client.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	audit       *AuditLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client (and its timeout).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetryConfig overrides DefaultRetryConfig.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(cl *Client) { cl.retryConfig = cfg }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = logger }
}

// WithAuditLogger enables call recording.
func WithAuditLogger(a *AuditLogger) ClientOption {
	return func(cl *Client) { cl.audit = a }
}

// NewClient builds a Client against a model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete resolves req.Tier to its available fallback chain and tries each
// endpoint in order, retrying transient failures with backoff before moving
// to the next endpoint. A fatal error from any endpoint aborts the chain
// immediately — fatal errors indicate a configuration problem, not an
// unhealthy endpoint, so trying the next one would not help.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Tier == "" {
		return nil, fmt.Errorf("tier is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	requestID := uuid.New().String()
	startedAt := time.Now()

	chain := c.registry.GetAvailableFallbackChain(req.Tier)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no endpoints configured for tier %s", req.Tier)
	}

	var lastErr error
	var fallbacksUsed []string
	var retries int

	for _, endpointName := range chain {
		endpoint := c.registry.GetEndpoint(endpointName)
		if endpoint == nil {
			continue
		}
		if !c.registry.IsEndpointAvailable(endpointName) {
			c.logger.Debug("endpoint circuit open, skipping", "endpoint", endpointName)
			continue
		}

		resp, attempts, err := c.tryEndpointWithRetry(ctx, endpointName, endpoint, req)
		retries += attempts - 1

		if err == nil {
			resp.RequestID = requestID
			c.recordCall(ctx, &CallRecord{
				RequestID:     requestID,
				Tier:          req.Tier,
				Provider:      endpoint.Provider,
				Model:         resp.Model,
				Messages:      req.Messages,
				Response:      resp.Content,
				PromptTokens:  resp.Usage.PromptTokens,
				CompletionTok: resp.Usage.CompletionTokens,
				TotalTokens:   resp.Usage.TotalTokens,
				FinishReason:  resp.FinishReason,
				StartedAt:     startedAt,
				CompletedAt:   time.Now(),
				DurationMs:    time.Since(startedAt).Milliseconds(),
				Retries:       retries,
				FallbacksUsed: fallbacksUsed,
			})
			return resp, nil
		}

		fallbacksUsed = append(fallbacksUsed, endpointName)
		lastErr = err
		c.logger.Warn("endpoint failed, trying fallback",
			"endpoint", endpointName, "provider", endpoint.Provider, "error", err)

		if IsFatal(err) {
			c.recordCall(ctx, &CallRecord{
				RequestID:     requestID,
				Tier:          req.Tier,
				Provider:      endpoint.Provider,
				Messages:      req.Messages,
				StartedAt:     startedAt,
				CompletedAt:   time.Now(),
				DurationMs:    time.Since(startedAt).Milliseconds(),
				Error:         err.Error(),
				Retries:       retries,
				FallbacksUsed: fallbacksUsed,
			})
			return nil, err
		}
	}

	c.recordCall(ctx, &CallRecord{
		RequestID:     requestID,
		Tier:          req.Tier,
		Messages:      req.Messages,
		StartedAt:     startedAt,
		CompletedAt:   time.Now(),
		DurationMs:    time.Since(startedAt).Milliseconds(),
		Error:         fmt.Sprintf("all endpoints failed: %v", lastErr),
		Retries:       retries,
		FallbacksUsed: fallbacksUsed,
	})

	return nil, fmt.Errorf("all endpoints failed for tier %s: %w", req.Tier, lastErr)
}

func (c *Client) recordCall(ctx context.Context, record *CallRecord) {
	if c.audit == nil {
		return
	}
	c.audit.Record(ctx, record)
}

// tryEndpointWithRetry attempts one endpoint up to retryConfig.MaxAttempts
// times, sleeping base*multiplier^(attempt-1) between tries, and reports
// the endpoint's health to the registry on both success and exhaustion.
func (c *Client) tryEndpointWithRetry(ctx context.Context, name string, ep *model.EndpointConfig, req Request) (*Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(name)
			return resp, attempt, nil
		}

		lastErr = err
		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("request failed, retrying",
				"attempt", attempt, "max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff, "error", err)

			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(name)
	return nil, c.retryConfig.MaxAttempts, lastErr
}

// calculateBackoff computes base * multiplier^(attempt-1), capped at
// MaxBackoff, with +/-25% jitter to avoid synchronized retries across
// concurrent jobs.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("%w: %s", ErrProviderUnavailable, ep.Provider))
	}
	if !provider.Available() {
		return nil, NewFatalError(fmt.Errorf("%w: %s missing credentials", ErrProviderUnavailable, ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	messages := withJSONSuffix(req.Messages)
	body, err := provider.BuildRequestBody(ep.Model, messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("sending completion request",
		"provider", ep.Provider, "model", ep.Model, "url", url, "messages", len(messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("http request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// withJSONSuffix appends the fixed JSON-only instruction to the last
// message rather than inserting a new one, matching how the contract
// describes concatenation: system/user/assistant messages, then the
// output-format suffix.
func withJSONSuffix(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	last := out[len(out)-1]
	last.Content += jsonOutputSuffix
	out[len(out)-1] = last
	return out
}

// classifyHTTPError sorts a non-200 response into transient (worth a
// retry or fallback) or fatal (a config problem no retry fixes).
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("provider error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusBadGateway,
		statusCode == http.StatusGatewayTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden, statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
