// ABOUTME: Chat Completions client used by the enrich and compose stages in AI mode.
// ABOUTME: Supports custom base URLs so OpenAI-compatible providers work unchanged.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = "gpt-4o-mini"

// Client produces a text completion for a system/user prompt pair.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient implements Client against the Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client. model falls back to a small default and
// baseURL may be empty for the standard endpoint.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	if model == "" {
		model = defaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete sends one chat completion request and returns the assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyError converts SDK errors into RequestError so callers can consult
// IsRetryable without knowing the SDK's types.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &RequestError{
			StatusCode: apiErr.StatusCode,
			RetryAfter: retryAfterFrom(apiErr),
			Cause:      err,
		}
	}
	return &RequestError{Cause: fmt.Errorf("transport: %w", err)}
}

// retryAfterFrom reads the Retry-After header off a throttled response.
func retryAfterFrom(apiErr *openai.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	raw := apiErr.Response.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
