package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orbnews/internal/story"
)

const DefaultVoice = "alloy"

// Cache holds narrated mp3 audio outside the story records.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	voice string
}

type Config struct {
	TTL   time.Duration
	Voice string
}

func NewCache(rdb *redis.Client, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = story.RetentionDays * 24 * time.Hour
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &Cache{redis: rdb, ttl: cfg.TTL, voice: cfg.Voice}
}

func (c *Cache) Voice() string {
	return c.voice
}

func (c *Cache) key(storyID, language string) string {
	return fmt.Sprintf("orbnews:audio:%s:%s:%s", storyID, language, c.voice)
}

func (c *Cache) Put(ctx context.Context, storyID, language string, mp3 []byte) error {
	if storyID == "" {
		return fmt.Errorf("story id is empty")
	}
	if len(mp3) == 0 {
		return fmt.Errorf("audio is empty")
	}
	if err := c.redis.Set(ctx, c.key(storyID, language), mp3, c.ttl).Err(); err != nil {
		return fmt.Errorf("store audio: %w", err)
	}
	return nil
}

// Get returns the audio and whether it was present.
func (c *Cache) Get(ctx context.Context, storyID, language string) ([]byte, bool, error) {
	b, err := c.redis.Get(ctx, c.key(storyID, language)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load audio: %w", err)
	}
	return b, true, nil
}

// Ready reports which of ids already have narration for language.
func (c *Cache) Ready(ctx context.Context, ids []string, language string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := c.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, c.key(id, language))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check audio readiness: %w", err)
	}
	for i, id := range ids {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}
