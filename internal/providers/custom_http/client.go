package custom_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"orbnews/internal/providers"
)

// GeminiBodyTemplate renders a generateContent request.
const GeminiBodyTemplate = `{"contents":[{"parts":[{"text":{{json .Prompt}}}]}],"generationConfig":{"temperature":{{.Temperature}},"maxOutputTokens":{{.MaxTokens}}}}`

type Config struct {
	Name string
	// URL and header values may reference {{api_key}}.
	URL          string
	APIKey       string
	Headers      map[string]string
	BodyTemplate string
	Method       string
	HTTPClient   *http.Client
}

type Client struct {
	cfg Config
	tpl *template.Template
}

func New(cfg Config) (*Client, error) {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Name == "" {
		cfg.Name = "custom_http"
	}
	c := &Client{cfg: cfg}
	if strings.TrimSpace(cfg.BodyTemplate) != "" {
		tpl, err := template.New("custom_http_body").
			Option("missingkey=zero").
			Funcs(template.FuncMap{"json": jsonString}).
			Parse(cfg.BodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
		c.tpl = tpl
	}
	return c, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := c.renderBody(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	if strings.TrimSpace(c.cfg.URL) == "" {
		return providers.ChatResponse{}, fmt.Errorf("custom http url is empty")
	}

	endpoint := strings.ReplaceAll(c.cfg.URL, "{{api_key}}", c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, c.cfg.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build custom request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		// The request URL may carry the key.
		return providers.ChatResponse{}, fmt.Errorf("%s request failed: %w", c.cfg.Name, redact(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("read custom response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, &providers.StatusError{Provider: c.cfg.Name, StatusCode: resp.StatusCode}
	}

	text, err := extractText(b)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) renderBody(req providers.ChatRequest) ([]byte, error) {
	if c.tpl == nil {
		payload := map[string]any{
			"model":         req.Model,
			"system_prompt": req.SystemPrompt,
			"prompt":        req.UserPrompt,
			"max_tokens":    req.MaxTokens,
			"temperature":   req.Temperature,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	prompt := req.UserPrompt
	if strings.TrimSpace(req.SystemPrompt) != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	var buf bytes.Buffer
	if err := c.tpl.Execute(&buf, map[string]any{
		"Model":        req.Model,
		"SystemPrompt": req.SystemPrompt,
		"UserPrompt":   req.UserPrompt,
		"Prompt":       prompt,
		"MaxTokens":    req.MaxTokens,
		"Temperature":  req.Temperature,
		"APIKey":       c.cfg.APIKey,
	}); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

func extractText(body []byte) (string, error) {
	var simple map[string]any
	if err := json.Unmarshal(body, &simple); err != nil {
		trimmed := strings.TrimSpace(string(body))
		if trimmed != "" {
			return trimmed, nil
		}
		return "", fmt.Errorf("decode custom response: %w", err)
	}

	for _, key := range []string{"text", "response", "answer", "output_text"} {
		if v, ok := simple[key].(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}

	// generateContent: candidates[0].content.parts[*].text
	if candidates, ok := simple["candidates"].([]any); ok && len(candidates) > 0 {
		if c0, ok := candidates[0].(map[string]any); ok {
			if content, ok := c0["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok {
					texts := make([]string, 0, len(parts))
					for _, p := range parts {
						if pm, ok := p.(map[string]any); ok {
							if text, ok := pm["text"].(string); ok {
								texts = append(texts, text)
							}
						}
					}
					if joined := strings.Join(texts, ""); strings.TrimSpace(joined) != "" {
						return joined, nil
					}
				}
			}
		}
	}

	if choices, ok := simple["choices"].([]any); ok && len(choices) > 0 {
		if c0, ok := choices[0].(map[string]any); ok {
			if msg, ok := c0["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok && strings.TrimSpace(content) != "" {
					return content, nil
				}
			}
			if text, ok := c0["text"].(string); ok && strings.TrimSpace(text) != "" {
				return text, nil
			}
		}
	}

	return "", fmt.Errorf("custom response does not contain text field")
}

func jsonString(v string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "REDACTED"))
}
