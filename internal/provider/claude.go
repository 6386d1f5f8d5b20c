package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/anderson/internal/anthropic"
)

// ClaudeEvaluator runs evaluation prompts against the Anthropic API.
type ClaudeEvaluator struct {
	llm *anthropic.Client
}

func NewClaudeEvaluator(llm *anthropic.Client) *ClaudeEvaluator {
	return &ClaudeEvaluator{llm: llm}
}

func (e *ClaudeEvaluator) Evaluate(ctx context.Context, req EvalRequest) (string, error) {
	messages := []anthropic.Message{
		{Role: "user", Content: req.Prompt},
	}

	raw, err := e.llm.Complete(ctx, req.System, messages, req.MaxTokens)
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusRequestTimeout,
				apiErr.StatusCode == http.StatusTooManyRequests,
				apiErr.StatusCode >= 500:
				return "", retryable("claude evaluate", err)
			default:
				return "", permanent("claude evaluate", err)
			}
		}
		// Anything below the HTTP layer (DNS, reset, client timeout).
		return "", retryable("claude evaluate", err)
	}

	return raw, nil
}
