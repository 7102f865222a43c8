package newsroom

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/queue"
	"orbnews/internal/story"
)

const defaultCyclePool = 200

type NarrationQueue interface {
	EnqueueOnce(ctx context.Context, job queue.NarrationJob, ttl time.Duration) (bool, error)
}

type CyclerConfig struct {
	Store        story.Store
	Audio        AudioIndex
	Narration    NarrationQueue
	Orchestrator *Orchestrator
	PoolSize     int
	PendingTTL   time.Duration
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Cycler rotates through cached stories without generating new ones.
type Cycler struct {
	store      story.Store
	audio      AudioIndex
	narration  NarrationQueue
	orch       *Orchestrator
	poolSize   int
	pendingTTL time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewCycler(cfg CyclerConfig) *Cycler {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultCyclePool
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}
	return &Cycler{
		store:      cfg.Store,
		audio:      cfg.Audio,
		narration:  cfg.Narration,
		orch:       cfg.Orchestrator,
		poolSize:   cfg.PoolSize,
		pendingTTL: cfg.PendingTTL,
		logger:     cfg.Logger.With().Str("component", "cycler").Logger(),
		metrics:    m,
	}
}

// Select returns up to req.Count cached stories matching the request's
// category, epoch, language and story type, audio-ready ones first. The
// model dimension is ignored. When nothing matches, a single fallback story is
// returned.
func (c *Cycler) Select(ctx context.Context, req story.Request) ([]story.Story, error) {
	req = req.Normalize()
	req.ModelID = ""
	if err := req.Validate(); err != nil {
		return []story.Story{}, err
	}

	matches, err := c.store.Find(ctx, story.Filter{
		Category:  req.Category,
		Epoch:     req.Epoch,
		Language:  req.Language,
		StoryType: req.StoryType,
		Limit:     c.poolSize,
	})
	if err != nil {
		c.metrics.StoreErrors.Inc()
		c.logger.Error().Err(err).Str("category", req.Category).Msg("cycling lookup failed")
		matches = nil
	}
	if len(matches) == 0 {
		c.metrics.Fallbacks.WithLabelValues("cycling").Inc()
		return []story.Story{c.orch.Fallback(ctx, req, story.FallbackModelID)}, nil
	}

	c.markReady(ctx, matches, req.Language)
	selected := truncate(preferAudio(matches), req.Count)

	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}
	if err := c.store.Touch(ctx, ids); err != nil {
		c.metrics.StoreErrors.Inc()
		c.logger.Warn().Err(err).Msg("failed to record cycled stories")
	}
	c.metrics.CyclingServed.Add(float64(len(selected)))

	c.requestNarration(ctx, selected)
	return selected, nil
}

func (c *Cycler) markReady(ctx context.Context, stories []story.Story, language string) {
	if c.audio == nil {
		return
	}
	ids := make([]string, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	ready, err := c.audio.Ready(ctx, ids, language)
	if err != nil {
		c.logger.Warn().Err(err).Msg("audio readiness lookup failed")
		return
	}
	for i := range stories {
		stories[i].AudioReady = ready[stories[i].ID]
	}
}

func (c *Cycler) requestNarration(ctx context.Context, stories []story.Story) {
	if c.narration == nil {
		return
	}
	for _, s := range stories {
		if s.AudioReady {
			continue
		}
		queued, err := c.narration.EnqueueOnce(ctx, NarrationJobFor(s), c.pendingTTL)
		if err != nil {
			c.logger.Warn().Err(err).Str("story_id", s.ID).Msg("failed to enqueue narration")
			continue
		}
		if queued {
			c.metrics.EnqueuedJobs.Inc()
		}
	}
}

// NarrationJobFor builds the narration job for a story.
func NarrationJobFor(s story.Story) queue.NarrationJob {
	return queue.NarrationJob{
		StoryID:  s.ID,
		Language: s.Language,
		Text:     s.Headline + ". " + s.FullText,
	}
}

// preferAudio is a stable partition: audio-ready stories first, each group in
// its original order.
func preferAudio(stories []story.Story) []story.Story {
	out := make([]story.Story, 0, len(stories))
	for _, s := range stories {
		if s.AudioReady {
			out = append(out, s)
		}
	}
	for _, s := range stories {
		if !s.AudioReady {
			out = append(out, s)
		}
	}
	return out
}
