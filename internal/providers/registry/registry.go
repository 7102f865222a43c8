package registry

import (
	"fmt"
	"net/http"
	"strings"

	"orbnews/internal/config"
	"orbnews/internal/providers"
	"orbnews/internal/providers/anthropic_messages"
	"orbnews/internal/providers/azure_openai"
	"orbnews/internal/providers/custom_http"
	"orbnews/internal/providers/openai_compat"
)

const (
	KindAzureOpenAI  = "azure_openai"
	KindOpenAICompat = "openai_compat"
	KindCustomHTTP   = "custom_http"
	KindAnthropic    = "anthropic_messages"
)

type BuildOptions struct {
	Kind       string
	Name       string
	BaseURL    string
	APIKey     string
	APIVersion string
	Headers    map[string]string
	Config     map[string]any
	HTTPClient *http.Client
}

// Build returns providers.ErrNotConfigured when the credentials or endpoint are missing.
func Build(opts BuildOptions) (providers.Provider, error) {
	if opts.Config == nil {
		opts.Config = map[string]any{}
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s api key is empty", providers.ErrNotConfigured, opts.Name)
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("%w: %s endpoint is empty", providers.ErrNotConfigured, opts.Name)
	}

	switch opts.Kind {
	case KindAzureOpenAI:
		return azure_openai.New(azure_openai.Config{
			Endpoint:   opts.BaseURL,
			APIKey:     opts.APIKey,
			APIVersion: opts.APIVersion,
			HTTPClient: opts.HTTPClient,
		}), nil

	case KindOpenAICompat, "openai-compatible":
		maxTokensField := ""
		if v, ok := opts.Config["max_tokens_field"].(string); ok {
			maxTokensField = v
		}
		return openai_compat.New(openai_compat.Config{
			Name:           opts.Name,
			BaseURL:        opts.BaseURL,
			APIKey:         opts.APIKey,
			Headers:        opts.Headers,
			HTTPClient:     opts.HTTPClient,
			MaxTokensField: maxTokensField,
		}), nil

	case KindCustomHTTP, "custom-http":
		bodyTemplate := ""
		if v, ok := opts.Config["body_template"].(string); ok {
			bodyTemplate = v
		}
		method := http.MethodPost
		if v, ok := opts.Config["method"].(string); ok && v != "" {
			method = v
		}
		return custom_http.New(custom_http.Config{
			Name:         opts.Name,
			URL:          opts.BaseURL,
			APIKey:       opts.APIKey,
			Headers:      opts.Headers,
			BodyTemplate: bodyTemplate,
			Method:       method,
			HTTPClient:   opts.HTTPClient,
		})

	case KindAnthropic:
		return anthropic_messages.New(anthropic_messages.Config{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}

// Spec declares one generator. ID doubles as the model id in cache keys.
type Spec struct {
	ID          string
	DisplayName string
	Model       string
	Options     BuildOptions
}

type Entry struct {
	ID          string
	DisplayName string
	Model       string
	Provider    providers.Provider
	ConfigErr   error
}

func (e Entry) Configured() bool {
	return e.ConfigErr == nil && e.Provider != nil
}

// Registry keeps generators in priority order.
type Registry struct {
	entries []Entry
	byID    map[string]int
}

func New(specs []Spec) *Registry {
	r := &Registry{byID: make(map[string]int, len(specs))}
	for _, s := range specs {
		if s.Options.Name == "" {
			s.Options.Name = s.ID
		}
		e := Entry{ID: s.ID, DisplayName: s.DisplayName, Model: s.Model}
		e.Provider, e.ConfigErr = Build(s.Options)
		r.Add(e)
	}
	return r
}

// Add appends an entry. A duplicate ID replaces the earlier entry in place.
func (r *Registry) Add(e Entry) {
	if r.byID == nil {
		r.byID = map[string]int{}
	}
	if e.DisplayName == "" {
		e.DisplayName = e.ID
	}
	if i, ok := r.byID[e.ID]; ok {
		r.entries[i] = e
		return
	}
	r.byID[e.ID] = len(r.entries)
	r.entries = append(r.entries, e)
}

func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Get(id string) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ID)
	}
	return out
}

// Configured returns the ids of generators that can be called, in priority order.
func (r *Registry) Configured() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Configured() {
			out = append(out, e.ID)
		}
	}
	return out
}

const (
	defaultGrokBaseURL       = "https://api.x.ai/v1"
	defaultGrokModel         = "grok-4"
	defaultPerplexityBaseURL = "https://api.perplexity.ai"
	defaultPerplexityModel   = "sonar"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel       = "gemini-1.5-flash"
	defaultAnthropicBaseURL  = "https://api.anthropic.com"
	defaultAnthropicModel    = "claude-haiku-4-5"
)

// FromConfig declares the built-in generators in priority order: Azure
// o4-mini, Grok, Perplexity Sonar, Gemini Flash, Claude.
func FromConfig(cfg *config.Config, httpClient *http.Client) *Registry {
	grokModel := orDefault(cfg.Grok.Model, defaultGrokModel)
	perplexityModel := orDefault(cfg.Perplexity.Model, defaultPerplexityModel)
	geminiModel := orDefault(cfg.Gemini.Model, defaultGeminiModel)
	anthropicModel := orDefault(cfg.Anthropic.Model, defaultAnthropicModel)

	geminiURL := strings.TrimSuffix(orDefault(cfg.Gemini.BaseURL, defaultGeminiBaseURL), "/") +
		"/models/" + geminiModel + ":generateContent?key={{api_key}}"

	return New([]Spec{
		{
			ID:          cfg.Azure.Deployment,
			DisplayName: "Azure OpenAI " + cfg.Azure.Deployment,
			Model:       cfg.Azure.Deployment,
			Options: BuildOptions{
				Kind:       KindAzureOpenAI,
				BaseURL:    cfg.Azure.Endpoint,
				APIKey:     cfg.Azure.APIKey,
				APIVersion: cfg.Azure.APIVersion,
				HTTPClient: httpClient,
			},
		},
		{
			ID:          grokModel,
			DisplayName: "Grok",
			Model:       grokModel,
			Options: BuildOptions{
				Kind:       KindOpenAICompat,
				BaseURL:    orDefault(cfg.Grok.BaseURL, defaultGrokBaseURL),
				APIKey:     cfg.Grok.APIKey,
				Config:     map[string]any{"max_tokens_field": "max_completion_tokens"},
				HTTPClient: httpClient,
			},
		},
		{
			ID:          "perplexity-" + perplexityModel,
			DisplayName: "Perplexity Sonar",
			Model:       perplexityModel,
			Options: BuildOptions{
				Kind:       KindOpenAICompat,
				BaseURL:    orDefault(cfg.Perplexity.BaseURL, defaultPerplexityBaseURL),
				APIKey:     cfg.Perplexity.APIKey,
				HTTPClient: httpClient,
			},
		},
		{
			ID:          geminiModel,
			DisplayName: "Gemini",
			Model:       geminiModel,
			Options: BuildOptions{
				Kind:       KindCustomHTTP,
				BaseURL:    geminiURL,
				APIKey:     cfg.Gemini.APIKey,
				Config:     map[string]any{"body_template": custom_http.GeminiBodyTemplate},
				HTTPClient: httpClient,
			},
		},
		{
			ID:          anthropicModel,
			DisplayName: "Claude",
			Model:       anthropicModel,
			Options: BuildOptions{
				Kind:       KindAnthropic,
				BaseURL:    orDefault(cfg.Anthropic.BaseURL, defaultAnthropicBaseURL),
				APIKey:     cfg.Anthropic.APIKey,
				HTTPClient: httpClient,
			},
		},
	})
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
