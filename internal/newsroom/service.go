package newsroom

import (
	"context"
	"fmt"

	"orbnews/internal/reliability"
	"orbnews/internal/story"
)

const defaultStatsTop = 5

// Service is the entry point used by the HTTP API, the CLI and the admin bot.
type Service struct {
	store  story.Store
	orch   *Orchestrator
	cycler *Cycler
}

func NewService(store story.Store, orch *Orchestrator, cycler *Cycler) *Service {
	return &Service{store: store, orch: orch, cycler: cycler}
}

func (s *Service) GetOrGenerateStories(ctx context.Context, req story.Request) ([]story.Story, error) {
	return s.orch.GetOrGenerate(ctx, req)
}

// GenerateFresh regenerates the batch for req and replaces the cached one.
func (s *Service) GenerateFresh(ctx context.Context, req story.Request) ([]story.Story, error) {
	return s.orch.Generate(ctx, req)
}

func (s *Service) GetCyclingStories(ctx context.Context, req story.Request) ([]story.Story, error) {
	return s.cycler.Select(ctx, req)
}

// CheckExists reports whether a batch is cached for the given dimensions.
// The story type is always historical-figure.
func (s *Service) CheckExists(ctx context.Context, category, epoch, modelID, language string) (bool, error) {
	req := story.Request{
		Category: category,
		Epoch:    epoch,
		ModelID:  modelID,
		Language: language,
		Count:    1,
	}.Normalize()
	if err := req.Validate(); err != nil {
		return false, err
	}
	if req.ModelID == "" {
		req.ModelID = s.orch.DefaultModel()
	}
	key, err := story.MakeKey(req.Dimensions())
	if err != nil {
		return false, fmt.Errorf("%w: %v", story.ErrInvalidRequest, err)
	}
	return s.store.Exists(ctx, key)
}

func (s *Service) GetCacheStats(ctx context.Context) (story.Stats, error) {
	return s.store.Stats(ctx, defaultStatsTop)
}

func (s *Service) ClearOldStories(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 0 {
		return 0, fmt.Errorf("%w: daysOld must not be negative", story.ErrInvalidRequest)
	}
	return s.store.ClearOlderThan(ctx, daysOld)
}

func (s *Service) Reliability() reliability.Report {
	return s.orch.Reliability()
}

func (s *Service) RefreshReliability(ctx context.Context) reliability.Report {
	return s.orch.RefreshReliability(ctx)
}

func (s *Service) Models() []string {
	return s.orch.registry.IDs()
}
