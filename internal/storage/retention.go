package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"orbnews/internal/story"
)

type RetentionConfig struct {
	Interval time.Duration
	Days     int
	Logger   zerolog.Logger
	// OnSweep is called after every sweep with the number of deleted rows.
	OnSweep func(deleted int64)
}

// RunRetention deletes stories older than cfg.Days on every tick until ctx is
// done. The first sweep runs immediately.
func (s *Store) RunRetention(ctx context.Context, cfg RetentionConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Days <= 0 {
		cfg.Days = story.RetentionDays
	}
	log := cfg.Logger.With().Str("component", "retention").Int("days", cfg.Days).Logger()

	sweep := func() {
		n, err := s.ClearOlderThan(ctx, cfg.Days)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("retention sweep failed")
			}
			return
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Msg("expired stories removed")
		}
		if cfg.OnSweep != nil {
			cfg.OnSweep(n)
		}
	}

	sweep()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
