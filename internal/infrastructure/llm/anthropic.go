package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements ports.CompletionClient on the Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

var _ ports.CompletionClient = (*AnthropicClient)(nil)

func NewAnthropicClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	model := pick(req.Model, c.defaultModel)
	if model == "" {
		return "", fmt.Errorf("anthropic completion: model is required")
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(pickTokens(req.MaxTokens, c.maxTokens, defaultAnthropicMaxTokens)),
		System: []anthropic.TextBlockParam{
			{Text: safePrompt(req.System)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic completion: %w", &domain.StatusError{Code: apiErr.StatusCode, Status: http.StatusText(apiErr.StatusCode)})
		}
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		out.WriteString(block.Text)
	}
	if out.Len() == 0 {
		return "", domain.Transient(fmt.Errorf("anthropic completion: empty response"))
	}
	return out.String(), nil
}
