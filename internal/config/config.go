package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrUnsupportedDriver  = errors.New("DB_DRIVER must be 'postgres' or 'sqlite'")
	ErrMissingAdminUserID = errors.New("ADMIN_USER_ID is required when BOT_TOKEN is set")
	ErrInvalidStoryCount  = errors.New("GENERATION_DEFAULT_COUNT must be between 1 and GENERATION_MAX_COUNT")
)

type Config struct {
	HTTP       HTTPConfig       `envPrefix:"HTTP_"`
	DB         DBConfig         `envPrefix:"DB_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Worker     WorkerConfig     `envPrefix:"WORKER_"`
	Generation GenerationConfig `envPrefix:"GENERATION_"`
	Azure      AzureConfig      `envPrefix:"AZURE_OPENAI_"`
	Grok       VendorConfig     `envPrefix:"GROK_"`
	Perplexity VendorConfig     `envPrefix:"PERPLEXITY_"`
	Gemini     VendorConfig     `envPrefix:"GEMINI_"`
	Anthropic  VendorConfig     `envPrefix:"ANTHROPIC_"`
	Telegram   TelegramConfig
	Rate       RateConfig `envPrefix:"RATE_LIMIT_"`
	Log        LogConfig  `envPrefix:"LOG_"`
}

type HTTPConfig struct {
	ListenAddr    string        `env:"LISTEN_ADDR" envDefault:":8080"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	HealthPath    string        `env:"HEALTH_PATH" envDefault:"/healthz"`
	MetricsPath   string        `env:"METRICS_PATH" envDefault:"/metrics"`
	ClientTimeout time.Duration `env:"CLIENT_TIMEOUT" envDefault:"30s"`
	TrustProxy    bool          `env:"TRUST_PROXY" envDefault:"false"`
}

type DBConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"orbnews.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr            string        `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password        string        `env:"PASSWORD"`
	DB              int           `env:"DB" envDefault:"0"`
	NarrationStream string        `env:"NARRATION_STREAM" envDefault:"orbnews:narration"`
	NarrationGroup  string        `env:"NARRATION_GROUP" envDefault:"orbnews-narrators"`
	QueueBlock      time.Duration `env:"QUEUE_BLOCK" envDefault:"5s"`
	UpdateTTL       time.Duration `env:"UPDATE_DEDUPE_TTL" envDefault:"6h"`
	AudioTTL        time.Duration `env:"AUDIO_TTL" envDefault:"720h"`
}

type WorkerConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"true"`
	Concurrency  int    `env:"CONCURRENCY" envDefault:"2"`
	ConsumerName string `env:"CONSUMER_NAME"`
	MaxRetries   int    `env:"MAX_RETRIES" envDefault:"3"`
}

type GenerationConfig struct {
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxTokens         int           `env:"MAX_TOKENS" envDefault:"1500"`
	Temperature       float64       `env:"TEMPERATURE" envDefault:"0.7"`
	DefaultCount      int           `env:"DEFAULT_COUNT" envDefault:"3"`
	MaxCount          int           `env:"MAX_COUNT" envDefault:"10"`
	ProbeOnStart      bool          `env:"PROBE_ON_START" envDefault:"true"`
	ProbeMaxTokens    int           `env:"PROBE_MAX_TOKENS" envDefault:"200"`
	RetentionDays     int           `env:"RETENTION_DAYS" envDefault:"30"`
	RetentionInterval time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`
}

type AzureConfig struct {
	Endpoint      string `env:"ENDPOINT"`
	APIKey        string `env:"API_KEY"`
	Deployment    string `env:"DEPLOYMENT" envDefault:"o4-mini"`
	APIVersion    string `env:"API_VERSION" envDefault:"2024-12-01-preview"`
	TTSDeployment string `env:"TTS_DEPLOYMENT" envDefault:"gpt-4o-mini-tts"`
	TTSAPIVersion string `env:"TTS_API_VERSION" envDefault:"2025-03-01-preview"`
	TTSVoice      string `env:"TTS_VOICE" envDefault:"alloy"`
}

// VendorConfig is shared by the keyed HTTP vendors. Empty BaseURL and Model
// fall back to the vendor defaults in the generator registry.
type VendorConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
	Model   string `env:"MODEL"`
}

type TelegramConfig struct {
	BotToken    string `env:"BOT_TOKEN"`
	AdminUserID int64  `env:"ADMIN_USER_ID" envDefault:"0"`
}

type RateConfig struct {
	PerHour int64 `env:"PER_HOUR" envDefault:"30"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and parses the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(nil)
}

// Parse reads configuration from environ, or from the process environment when environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Worker.ConsumerName == "" {
		cfg.Worker.ConsumerName = hostnameOr("narrator")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		return ErrUnsupportedDriver
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return ErrMissingDatabaseDSN
	}
	if c.Telegram.BotToken != "" && c.Telegram.AdminUserID <= 0 {
		return ErrMissingAdminUserID
	}
	if c.Generation.DefaultCount < 1 || c.Generation.DefaultCount > c.Generation.MaxCount {
		return ErrInvalidStoryCount
	}
	return nil
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
