package newsroom

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/prompts"
	"orbnews/internal/providers"
	"orbnews/internal/providers/registry"
	"orbnews/internal/reliability"
	"orbnews/internal/story"
)

type Prober interface {
	ProbeAll(ctx context.Context, ids []string) reliability.Report
}

type AudioIndex interface {
	Ready(ctx context.Context, ids []string, language string) (map[string]bool, error)
}

type OrchestratorConfig struct {
	Store       story.Store
	Registry    *registry.Registry
	Prober      Prober
	Audio       AudioIndex
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Orchestrator answers story requests from the cache, falling back to the
// generators in reliability order and finally to a static story.
type Orchestrator struct {
	store       story.Store
	registry    *registry.Registry
	prober      Prober
	audio       AudioIndex
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu     sync.RWMutex
	report reliability.Report
	probed bool
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		store:       cfg.Store,
		registry:    cfg.Registry,
		prober:      cfg.Prober,
		audio:       cfg.Audio,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger.With().Str("component", "orchestrator").Logger(),
		metrics:     m,
		now:         cfg.Now,
	}
}

// RefreshReliability re-probes every registered generator and replaces the
// reliable list and proof story.
func (o *Orchestrator) RefreshReliability(ctx context.Context) reliability.Report {
	if o.prober == nil {
		return o.Reliability()
	}
	report := o.prober.ProbeAll(ctx, o.registry.IDs())
	o.SetReliability(report)
	o.logger.Info().Strs("reliable", report.Reliable).Msg("reliability check finished")
	return report
}

func (o *Orchestrator) SetReliability(report reliability.Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report = report
	o.probed = true
	o.metrics.ReliableGenerators.Set(float64(len(report.Reliable)))
}

// Reliability returns the last probe report. Probed is false before the first check.
func (o *Orchestrator) Reliability() reliability.Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.report
}

func (o *Orchestrator) Probed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.probed
}

// Candidates lists the generators to try for a request, most preferred first.
func (o *Orchestrator) Candidates(requested string) []string {
	o.mu.RLock()
	probed := o.probed
	reliable := slices.Clone(o.report.Reliable)
	o.mu.RUnlock()

	var base []string
	if probed {
		base = make([]string, 0, len(reliable))
		for _, id := range reliable {
			if e, ok := o.registry.Get(id); ok && e.Configured() {
				base = append(base, id)
			}
		}
	} else {
		base = o.registry.Configured()
	}

	if i := slices.Index(base, requested); i > 0 {
		base = slices.Delete(base, i, i+1)
		base = slices.Insert(base, 0, requested)
	}
	return base
}

// DefaultModel is the model id used in cache keys when a request names none.
func (o *Orchestrator) DefaultModel() string {
	if c := o.Candidates(""); len(c) > 0 {
		return c[0]
	}
	if ids := o.registry.IDs(); len(ids) > 0 {
		return ids[0]
	}
	return story.FallbackModelID
}

// GetOrGenerate serves req from the cache or generates a new batch. The
// result is never empty for a valid request.
func (o *Orchestrator) GetOrGenerate(ctx context.Context, req story.Request) ([]story.Story, error) {
	req, key, err := o.prepare(req)
	if err != nil {
		return []story.Story{}, err
	}
	log := o.logger.With().Str("cache_key", key.String()).Logger()

	cached, err := o.store.Get(ctx, key)
	if err != nil {
		o.metrics.StoreErrors.Inc()
		log.Error().Err(err).Msg("cache lookup failed, treating as miss")
	} else if isHit(cached, req.Count) {
		o.metrics.CacheHits.Inc()
		out := truncate(cached, req.Count)
		o.markAudio(ctx, out, req.Language)
		return out, nil
	}
	o.metrics.CacheMisses.Inc()

	return o.generate(ctx, req, key), nil
}

// Generate skips the cache lookup and replaces the batch for req.
func (o *Orchestrator) Generate(ctx context.Context, req story.Request) ([]story.Story, error) {
	req, key, err := o.prepare(req)
	if err != nil {
		return []story.Story{}, err
	}
	return o.generate(ctx, req, key), nil
}

// Fallback persists and returns the static story for req under modelID.
func (o *Orchestrator) Fallback(ctx context.Context, req story.Request, modelID string) story.Story {
	req.ModelID = modelID
	fb := FallbackStory(req, modelID, o.now().UTC())
	key, err := story.MakeKey(req.Dimensions())
	if err != nil {
		o.logger.Error().Err(err).Msg("fallback story has an invalid key")
		return fb
	}
	o.persist(ctx, key, []story.Story{fb})
	return fb
}

func (o *Orchestrator) prepare(req story.Request) (story.Request, story.Key, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, "", err
	}
	if req.ModelID == "" {
		req.ModelID = o.DefaultModel()
	}
	key, err := story.MakeKey(req.Dimensions())
	if err != nil {
		return req, "", fmt.Errorf("%w: %v", story.ErrInvalidRequest, err)
	}
	return req, key, nil
}

func (o *Orchestrator) generate(ctx context.Context, req story.Request, key story.Key) []story.Story {
	log := o.logger.With().Str("cache_key", key.String()).Logger()

	for _, id := range o.Candidates(req.ModelID) {
		generated, err := o.invoke(ctx, id, req)
		if err != nil {
			o.metrics.GeneratorFailures.WithLabelValues(id, failureReason(err)).Inc()
			log.Warn().Err(err).Str("generator", id).Msg("generator failed, trying next")
			continue
		}

		now := o.now().UTC()
		records := make([]story.Story, len(generated))
		for i, s := range generated {
			s.ID = uuid.NewString()
			s.CacheKey = key
			s.StoryIndex = i
			s.Category = req.Category
			s.Epoch = req.Epoch
			s.ModelID = req.ModelID
			s.Language = req.Language
			s.StoryType = req.StoryType
			s.RequestedCount = req.Count
			if s.PublishedAt.IsZero() {
				s.PublishedAt = now
			}
			s.CreatedAt = now
			records[i] = s
		}
		o.persist(ctx, key, records)
		log.Info().Str("generator", id).Int("stories", len(records)).Msg("generated story batch")
		return records
	}

	o.metrics.Fallbacks.WithLabelValues("orchestrator").Inc()
	log.Warn().Msg("all generators failed, serving fallback story")
	fb := FallbackStory(req, req.ModelID, o.now().UTC())
	fb.CacheKey = key
	o.persist(ctx, key, []story.Story{fb})
	return []story.Story{fb}
}

func (o *Orchestrator) invoke(ctx context.Context, id string, req story.Request) (stories []story.Story, err error) {
	entry, ok := o.registry.Get(id)
	if !ok {
		return nil, &GenerationError{GeneratorID: id, Err: fmt.Errorf("%w: unknown generator", providers.ErrNotConfigured)}
	}
	if !entry.Configured() {
		cerr := entry.ConfigErr
		if cerr == nil {
			cerr = providers.ErrNotConfigured
		}
		return nil, &GenerationError{GeneratorID: id, Err: cerr}
	}

	defer func() {
		if r := recover(); r != nil {
			stories = nil
			err = &GenerationError{GeneratorID: id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	// The upstream call outlives an abandoned request so the batch still lands in the cache.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	chatReq := prompts.Story(req, entry.DisplayName, o.maxTokens, o.temperature)
	chatReq.Model = entry.Model

	o.metrics.GeneratorAttempts.WithLabelValues(id).Inc()
	started := time.Now()
	resp, err := entry.Provider.Chat(callCtx, chatReq)
	o.metrics.GenerationLatency.WithLabelValues(id).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, &GenerationError{GeneratorID: id, Err: err}
	}

	parsed, err := story.ParseBatch(resp.Text)
	if err != nil {
		return nil, &GenerationError{GeneratorID: id, Err: err}
	}
	return truncate(story.Dedupe(parsed), req.Count), nil
}

func (o *Orchestrator) persist(ctx context.Context, key story.Key, records []story.Story) {
	if err := o.store.PutBatch(context.WithoutCancel(ctx), key, records); err != nil {
		o.metrics.StoreErrors.Inc()
		o.logger.Error().Err(err).Str("cache_key", key.String()).Msg("failed to persist story batch")
	}
}

func (o *Orchestrator) markAudio(ctx context.Context, stories []story.Story, language string) {
	if o.audio == nil || len(stories) == 0 {
		return
	}
	ids := make([]string, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	ready, err := o.audio.Ready(ctx, ids, language)
	if err != nil {
		o.logger.Warn().Err(err).Msg("audio readiness lookup failed")
		return
	}
	for i := range stories {
		stories[i].AudioReady = ready[stories[i].ID]
	}
}

// A batch is a hit when it covers count, or when it was already generated for
// at least count and the generator returned fewer.
func isHit(cached []story.Story, count int) bool {
	if len(cached) == 0 {
		return false
	}
	return len(cached) >= count || cached[0].RequestedCount >= count
}

func truncate(stories []story.Story, n int) []story.Story {
	if n > 0 && len(stories) > n {
		return stories[:n]
	}
	return stories
}

func failureReason(err error) string {
	var parseErr *story.ParseError
	var statusErr *providers.StatusError
	switch {
	case errors.Is(err, providers.ErrNotConfigured):
		return "not_configured"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "transport"
	}
}
