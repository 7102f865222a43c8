package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/queue"
	"orbnews/internal/reliability"
	"orbnews/internal/story"
)

// Newsroom is the story service behind the HTTP API.
type Newsroom interface {
	GetOrGenerateStories(ctx context.Context, req story.Request) ([]story.Story, error)
	GenerateFresh(ctx context.Context, req story.Request) ([]story.Story, error)
	GetCyclingStories(ctx context.Context, req story.Request) ([]story.Story, error)
	CheckExists(ctx context.Context, category, epoch, modelID, language string) (bool, error)
	GetCacheStats(ctx context.Context) (story.Stats, error)
	ClearOldStories(ctx context.Context, daysOld int) (int64, error)
	Reliability() reliability.Report
	RefreshReliability(ctx context.Context) reliability.Report
}

type StoryLookup interface {
	ByID(ctx context.Context, id string) (story.Story, error)
}

type AudioSource interface {
	Get(ctx context.Context, storyID, language string) ([]byte, bool, error)
}

type NarrationQueue interface {
	EnqueueOnce(ctx context.Context, job queue.NarrationJob, ttl time.Duration) (bool, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, client string, now time.Time) (bool, int64, time.Time, error)
}

type Config struct {
	Newsroom     Newsroom
	Stories      StoryLookup
	Audio        AudioSource
	Narration    NarrationQueue
	Limiter      RateLimiter
	CORSOrigins  []string
	HealthPath   string
	MetricsPath  string
	TrustProxy   bool
	DefaultCount int
	MaxCount     int
	PendingTTL   time.Duration
	Version      string
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

type Server struct {
	newsroom     Newsroom
	stories      StoryLookup
	audio        AudioSource
	narration    NarrationQueue
	limiter      RateLimiter
	defaultCount int
	maxCount     int
	pendingTTL   time.Duration
	version      string
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	engine       *gin.Engine
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 3
	}
	if cfg.MaxCount < cfg.DefaultCount {
		cfg.MaxCount = cfg.DefaultCount
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		newsroom:     cfg.Newsroom,
		stories:      cfg.Stories,
		audio:        cfg.Audio,
		narration:    cfg.Narration,
		limiter:      cfg.Limiter,
		defaultCount: cfg.DefaultCount,
		maxCount:     cfg.MaxCount,
		pendingTTL:   cfg.PendingTTL,
		version:      cfg.Version,
		logger:       cfg.Logger.With().Str("component", "api").Logger(),
		metrics:      m,
		now:          cfg.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	if !cfg.TrustProxy {
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET(cfg.HealthPath, s.health)
	r.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	orb := r.Group("/api/orb")
	orb.GET("/positive-news/:category", s.positiveNews)
	orb.GET("/news/:category", s.cachedNews)
	orb.POST("/generate-news/:category", s.generateNews)
	orb.GET("/stories/exists", s.storyExists)
	orb.GET("/stories/stats", s.storyStats)
	orb.POST("/stories/clear", s.clearStories)
	orb.GET("/audio/:storyID", s.storyAudio)

	models := r.Group("/api/models")
	models.GET("/reliability", s.reliability)
	models.POST("/reliability", s.refreshReliability)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(started)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
