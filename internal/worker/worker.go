package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/queue"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type AudioStore interface {
	Put(ctx context.Context, storyID, language string, mp3 []byte) error
}

type Queue interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, messageID string) error
	Enqueue(ctx context.Context, job queue.NarrationJob) (string, error)
	Release(ctx context.Context, job queue.NarrationJob) error
}

// Worker consumes narration jobs and stores the synthesized audio.
type Worker struct {
	queue         Queue
	tts           Synthesizer
	audio         AudioStore
	maxJobRetries int
	jobTimeout    time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Queue         Queue
	TTS           Synthesizer
	Audio         AudioStore
	MaxJobRetries int
	JobTimeout    time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &Worker{
		queue:         cfg.Queue,
		tts:           cfg.TTS,
		audio:         cfg.Audio,
		maxJobRetries: cfg.MaxJobRetries,
		jobTimeout:    cfg.JobTimeout,
		logger:        cfg.Logger.With().Str("component", "narrator").Logger(),
		metrics:       m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}
		for _, msg := range messages {
			w.handle(ctx, log, msg)
		}
	}
}

// handle processes one message. Failed jobs are re-enqueued until they
// exhaust their attempts; every message is acked exactly once.
func (w *Worker) handle(ctx context.Context, log zerolog.Logger, msg queue.Message) {
	err := w.processJob(ctx, msg.Job)
	if err == nil {
		w.metrics.ProcessedJobs.Inc()
		w.release(ctx, log, msg.Job)
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
		}
		return
	}

	w.metrics.FailedJobs.Inc()
	log.Error().Err(err).Str("job_id", msg.Job.JobID).Str("story_id", msg.Job.StoryID).Int("attempt", msg.Job.Attempts).Msg("narration failed")

	if msg.Job.Attempts < w.maxJobRetries {
		msg.Job.Attempts++
		if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
			log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
			return
		}
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack after re-enqueue")
		}
		return
	}

	w.release(ctx, log, msg.Job)
	if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
		log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack terminal failed message")
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.NarrationJob) error {
	if strings.TrimSpace(job.StoryID) == "" || strings.TrimSpace(job.Text) == "" {
		return fmt.Errorf("narration job %s has no story", job.JobID)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	mp3, err := w.tts.Synthesize(jobCtx, job.Text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := w.audio.Put(jobCtx, job.StoryID, job.Language, mp3); err != nil {
		return fmt.Errorf("store audio: %w", err)
	}
	return nil
}

func (w *Worker) release(ctx context.Context, log zerolog.Logger, job queue.NarrationJob) {
	if err := w.queue.Release(ctx, job); err != nil {
		log.Warn().Err(err).Str("story_id", job.StoryID).Msg("failed to release pending marker")
	}
}
