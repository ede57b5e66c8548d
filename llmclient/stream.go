package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/planforge/finmodel/model"
)

// StreamDelta is one increment of a streaming completion.
type StreamDelta struct {
	Text string
	// Done marks the final delta; Text is empty on the terminal delta.
	Done bool
	Err  error
}

// StreamText resolves req.Tier to its first available endpoint (streaming
// has no fallback chain — a dropped stream mid-generation cannot be resumed
// on another endpoint without restarting the job) and returns a channel of
// text deltas. The channel is closed after the terminal delta or the first
// error.
func (c *Client) StreamText(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	if req.Tier == "" {
		return nil, fmt.Errorf("tier is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	chain := c.registry.GetAvailableFallbackChain(req.Tier)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no endpoints configured for tier %s", req.Tier)
	}

	var endpointName string
	var endpoint *model.EndpointConfig
	var provider StreamingProvider
	for _, name := range chain {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			continue
		}
		p, ok := GetProvider(ep.Provider).(StreamingProvider)
		if !ok || !p.Available() {
			continue
		}
		endpointName, endpoint, provider = name, ep, p
		break
	}
	if provider == nil {
		return nil, fmt.Errorf("no streaming-capable endpoint available for tier %s", req.Tier)
	}

	body, err := provider.StreamRequestBody(endpoint.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build stream request body: %w", err))
	}

	url := provider.BuildURL(endpoint.URL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.registry.MarkEndpointFailure(endpointName)
		return nil, NewTransientError(fmt.Errorf("http request failed: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		c.registry.MarkEndpointFailure(endpointName)
		return nil, classifyHTTPError(httpResp.StatusCode, nil)
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- StreamDelta{Err: ctx.Err(), Done: true}
				return
			default:
			}

			delta, done, err := provider.ParseStreamLine(scanner.Bytes())
			if err != nil {
				out <- StreamDelta{Err: err, Done: true}
				return
			}
			if delta != "" {
				out <- StreamDelta{Text: delta}
			}
			if done {
				c.registry.MarkEndpointSuccess(endpointName)
				out <- StreamDelta{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamDelta{Err: err, Done: true}
			return
		}
		out <- StreamDelta{Done: true}
	}()

	return out, nil
}

// StreamProgress computes the asymptotic heartbeat curve the job runtime
// reports while waiting on a streaming completion before any tokens have
// arrived: min(ceiling, start+(ceiling-start)*(1-e^(-elapsed/tau))).
func StreamProgress(start, ceiling float64, tau time.Duration, elapsed time.Duration) float64 {
	if tau <= 0 {
		return ceiling
	}
	t := elapsed.Seconds() / tau.Seconds()
	v := start + (ceiling-start)*(1-math.Exp(-t))
	if v > ceiling {
		return ceiling
	}
	return v
}
