package config

import (
	"errors"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.HTTP.ListenAddr)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "orbnews.db" {
		t.Fatalf("unexpected db config %+v", cfg.DB)
	}
	if cfg.Generation.Timeout != 30*time.Second {
		t.Fatalf("expected 30s generation timeout, got %s", cfg.Generation.Timeout)
	}
	if cfg.Generation.RetentionDays != 30 {
		t.Fatalf("expected 30 retention days, got %d", cfg.Generation.RetentionDays)
	}
	if cfg.Azure.Deployment != "o4-mini" || cfg.Azure.TTSVoice != "alloy" {
		t.Fatalf("unexpected azure defaults %+v", cfg.Azure)
	}
	if cfg.Redis.AudioTTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day audio ttl, got %s", cfg.Redis.AudioTTL)
	}
	if cfg.Worker.ConsumerName == "" {
		t.Fatalf("expected a consumer name fallback")
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.HTTP.CORSOrigins)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"DB_DRIVER":             "Postgres",
		"DB_DSN":                "postgres://localhost/orbnews",
		"GROK_API_KEY":          "xai-key",
		"GROK_MODEL":            "grok-4-fast",
		"AZURE_OPENAI_ENDPOINT": "https://example.openai.azure.com/",
		"HTTP_CORS_ORIGINS":     "https://orbgame.us,http://localhost:5173",
		"GENERATION_TIMEOUT":    "10s",
		"LOG_LEVEL":             "DEBUG",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("expected lowercased driver, got %q", cfg.DB.Driver)
	}
	if cfg.Grok.APIKey != "xai-key" || cfg.Grok.Model != "grok-4-fast" {
		t.Fatalf("unexpected grok config %+v", cfg.Grok)
	}
	if cfg.Azure.Endpoint != "https://example.openai.azure.com/" {
		t.Fatalf("unexpected azure endpoint %q", cfg.Azure.Endpoint)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("expected two cors origins, got %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Generation.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Generation.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected lowercased log level, got %q", cfg.Log.Level)
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want error
	}{
		"unknown driver": {env: map[string]string{"DB_DRIVER": "mongo"}, want: ErrUnsupportedDriver},
		"bot without admin": {
			env:  map[string]string{"BOT_TOKEN": "123:abc"},
			want: ErrMissingAdminUserID,
		},
		"count above max": {
			env:  map[string]string{"GENERATION_DEFAULT_COUNT": "20"},
			want: ErrInvalidStoryCount,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.env)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
