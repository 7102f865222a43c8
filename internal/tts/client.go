package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"orbnews/internal/providers"
)

type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Voice      string
	Timeout    time.Duration
	RetryMax   int
	RetryWait  time.Duration
}

// Client synthesizes mp3 narration through an Azure OpenAI speech deployment.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

func New(cfg Config) *Client {
	if cfg.Deployment == "" {
		cfg.Deployment = "gpt-4o-mini-tts"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2025-03-01-preview"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 400 * time.Millisecond
	}

	r := retryablehttp.NewClient()
	r.RetryMax = cfg.RetryMax
	r.RetryWaitMin = cfg.RetryWait
	r.RetryWaitMax = 8 * cfg.RetryWait
	r.HTTPClient.Timeout = cfg.Timeout
	r.Logger = nil
	return &Client{cfg: cfg, http: r}
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.Endpoint) != "" && strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) Voice() string {
	return c.cfg.Voice
}

// Synthesize returns mp3 bytes for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: tts endpoint or api key is empty", providers.ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("narration text is empty")
	}

	endpoint, err := c.speechURL()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"model":           c.cfg.Deployment,
		"input":           text,
		"voice":           c.cfg.Voice,
		"response_format": "mp3",
		"speed":           1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &providers.StatusError{Provider: "azure tts", StatusCode: resp.StatusCode}
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("speech response is empty")
	}
	return b, nil
}

func (c *Client) speechURL() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.cfg.Endpoint))
	if err != nil {
		return "", fmt.Errorf("parse tts endpoint: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/openai/deployments/" + url.PathEscape(c.cfg.Deployment) + "/audio/speech"
	q := u.Query()
	q.Set("api-version", c.cfg.APIVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
