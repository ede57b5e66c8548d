package llmclient

import (
	"context"
	"fmt"

	"github.com/planforge/finmodel/guard"
)

// Extract sends messages at temperature and runs the JSON output guard over
// the completion, returning the parsed object or a JSONGuardError-flavored
// error the job runtime maps straight to a failed job.
func (c *Client) Extract(ctx context.Context, tier Tier, messages []Message, temperature float64) (map[string]any, error) {
	resp, err := c.Complete(ctx, Request{
		Tier:        tier,
		Messages:    messages,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	stop := guard.StopReasonStop
	if resp.FinishReason == "max_tokens" || resp.FinishReason == "length" {
		stop = guard.StopReasonMaxTokens
	} else if resp.FinishReason == "tool_use" {
		stop = guard.StopReasonToolUse
	}

	parsed, err := guard.ExtractJSON(resp.Content, stop)
	if err != nil {
		return nil, fmt.Errorf("json guard: %w", err)
	}
	return parsed, nil
}
