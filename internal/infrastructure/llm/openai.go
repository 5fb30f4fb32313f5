package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// OpenAIClient implements ports.CompletionClient on the Chat Completions API.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
	maxTokens    int
}

var _ ports.CompletionClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client; baseURL may point at any compatible API.
// SDK retries are disabled because callers apply their own backoff.
func NewOpenAIClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) *OpenAIClient {
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
	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	model := pick(req.Model, c.defaultModel)
	if model == "" {
		return "", fmt.Errorf("openai completion: model is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(safePrompt(req.System)),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(0),
	}
	if tokens := pickTokens(req.MaxTokens, c.maxTokens); tokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(tokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai completion: %w", &domain.StatusError{Code: apiErr.StatusCode, Status: http.StatusText(apiErr.StatusCode)})
		}
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Transient(fmt.Errorf("openai completion: no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a financial news analyst. Answer with JSON only."
	}
	return prompt
}

func pick(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func pickTokens(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
