package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"orbnews/internal/prompts"
	"orbnews/internal/providers"
	"orbnews/internal/providers/registry"
	"orbnews/internal/story"
)

type Result struct {
	ModelID     string        `json:"modelId"`
	DisplayName string        `json:"displayName"`
	Reliable    bool          `json:"reliable"`
	Error       string        `json:"error,omitempty"`
	Latency     time.Duration `json:"-"`
}

type Report struct {
	Reliable  []string     `json:"reliable"`
	Results   []Result     `json:"perModel"`
	Proof     *story.Story `json:"proof,omitempty"`
	CheckedAt time.Time    `json:"checkedAt"`
}

type Config struct {
	Registry  *registry.Registry
	Timeout   time.Duration
	MaxTokens int
	Logger    zerolog.Logger
}

type Prober struct {
	registry  *registry.Registry
	timeout   time.Duration
	maxTokens int
	logger    zerolog.Logger
}

func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	return &Prober{
		registry:  cfg.Registry,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger.With().Str("component", "reliability").Logger(),
	}
}

// Probe reports whether the generator answers the synthetic prompt with a
// valid story batch. It never returns an error.
func (p *Prober) Probe(ctx context.Context, generatorID string) bool {
	return p.probe(ctx, generatorID).result.Reliable
}

// ProbeAll probes every generator concurrently. Results and the reliable list
// keep the input order.
func (p *Prober) ProbeAll(ctx context.Context, ids []string) Report {
	outcomes := make([]outcome, len(ids))

	g := errgroup.Group{}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = p.probe(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Reliable:  make([]string, 0, len(ids)),
		Results:   make([]Result, 0, len(ids)),
		CheckedAt: time.Now().UTC(),
	}
	for _, o := range outcomes {
		report.Results = append(report.Results, o.result)
		if !o.result.Reliable {
			continue
		}
		report.Reliable = append(report.Reliable, o.result.ModelID)
		if report.Proof == nil && len(o.stories) > 0 {
			proof := o.stories[0]
			proof.ModelID = o.result.ModelID
			proof.Category = "Technology"
			proof.Epoch = story.DefaultEpoch
			proof.Language = story.DefaultLanguage
			report.Proof = &proof
		}
	}
	return report
}

type outcome struct {
	result  Result
	stories []story.Story
}

func (p *Prober) probe(ctx context.Context, id string) (out outcome) {
	out.result.ModelID = id
	log := p.logger.With().Str("generator", id).Logger()

	entry, ok := p.registry.Get(id)
	if !ok {
		out.result.Error = "unknown generator"
		return out
	}
	out.result.DisplayName = entry.DisplayName
	if !entry.Configured() {
		err := entry.ConfigErr
		if err == nil {
			err = providers.ErrNotConfigured
		}
		out.result.Error = err.Error()
		log.Debug().Err(err).Msg("skipping unconfigured generator")
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out.result.Reliable = false
			out.result.Error = fmt.Sprintf("panic: %v", r)
			out.stories = nil
			log.Error().Interface("panic", r).Msg("generator panicked during probe")
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := prompts.Probe(entry.DisplayName, p.maxTokens)
	req.Model = entry.Model

	started := time.Now()
	resp, err := entry.Provider.Chat(callCtx, req)
	out.result.Latency = time.Since(started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("probe timed out after %s: %w", p.timeout, err)
		}
		out.result.Error = err.Error()
		log.Warn().Err(err).Msg("generator failed probe")
		return out
	}

	stories, err := story.ParseBatch(resp.Text)
	if err != nil {
		out.result.Error = err.Error()
		log.Warn().Err(err).Msg("generator returned unusable probe output")
		return out
	}

	out.result.Reliable = true
	out.stories = stories
	log.Info().Dur("latency", out.result.Latency).Msg("generator reliable")
	return out
}
