package openai_compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orbnews/internal/providers"
)

// Config describes a chat-completions compatible vendor such as x.ai or Perplexity.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Headers    map[string]string
	HTTPClient *http.Client
	// MaxTokensField is the request field carrying the token limit. Newer
	// vendors expect max_completion_tokens.
	MaxTokensField string
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxTokensField == "" {
		cfg.MaxTokensField = "max_tokens"
	}
	if cfg.Name == "" {
		cfg.Name = "openai_compat"
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("%s request failed: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, &providers.StatusError{Provider: c.cfg.Name, StatusCode: resp.StatusCode}
	}

	text, err := parseChatCompletions(respBody)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	messages := []map[string]string{}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   false,
	}
	if req.MaxTokens > 0 {
		payload[c.cfg.MaxTokensField] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/completions"
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
