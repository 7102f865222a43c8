package azure_openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"orbnews/internal/providers"
)

const DefaultAPIVersion = "2024-12-01-preview"

type Config struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	HTTPClient *http.Client
}

// Client talks to an Azure OpenAI deployment. ChatRequest.Model is the
// deployment name.
type Client struct {
	client *openai.Client
}

func New(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &Client{client: &client}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	// Reasoning deployments reject max_tokens and temperature.
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("azure openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return providers.ChatResponse{}, fmt.Errorf("no choices from azure openai")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return providers.ChatResponse{}, fmt.Errorf("empty azure openai message content")
	}
	return providers.ChatResponse{Text: text}, nil
}
