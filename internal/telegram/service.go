package telegram

import (
	"context"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/reliability"
	"orbnews/internal/story"
)

// Newsroom is the part of the story service the admin bot drives.
type Newsroom interface {
	GetCacheStats(ctx context.Context) (story.Stats, error)
	ClearOldStories(ctx context.Context, daysOld int) (int64, error)
	Reliability() reliability.Report
	RefreshReliability(ctx context.Context) reliability.Report
	Models() []string
}

type Service struct {
	newsroom     Newsroom
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	adminUserID  int64
	probeTimeout time.Duration
}

type Config struct {
	Newsroom     Newsroom
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	AdminUserID  int64
	ProbeTimeout time.Duration
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Minute
	}
	return &Service{
		newsroom:     cfg.Newsroom,
		logger:       cfg.Logger.With().Str("component", "telegram").Logger(),
		metrics:      m,
		adminUserID:  cfg.AdminUserID,
		probeTimeout: cfg.ProbeTimeout,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("start", s.menu))
	d.AddHandler(handlers.NewCommand("menu", s.menu))
	d.AddHandler(handlers.NewCommand("stats", s.stats))
	d.AddHandler(handlers.NewCommand("clear", s.clear))
	d.AddHandler(handlers.NewCommand("models", s.models))
	d.AddHandler(handlers.NewCommand("probe", s.probe))
	d.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPrefix), s.onCallback))
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}
