package storage

import (
	"database/sql"

	"orbnews/internal/story"
)

var storyColumns = []string{
	"id",
	"cache_key",
	"category",
	"epoch",
	"model_id",
	"language",
	"story_type",
	"story_index",
	"headline",
	"summary",
	"full_text",
	"source",
	"historical_figure",
	"published_at",
	"created_at",
	"last_accessed",
	"access_count",
	"requested_count",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (story.Story, error) {
	var s story.Story
	var key string
	var lastAccessed sql.NullTime
	if err := row.Scan(
		&s.ID,
		&key,
		&s.Category,
		&s.Epoch,
		&s.ModelID,
		&s.Language,
		&s.StoryType,
		&s.StoryIndex,
		&s.Headline,
		&s.Summary,
		&s.FullText,
		&s.Source,
		&s.HistoricalFigure,
		&s.PublishedAt,
		&s.CreatedAt,
		&lastAccessed,
		&s.AccessCount,
		&s.RequestedCount,
	); err != nil {
		return story.Story{}, err
	}
	s.CacheKey = story.Key(key)
	if lastAccessed.Valid {
		s.LastAccessed = lastAccessed.Time
	}
	return s, nil
}

func scanStories(rows *sql.Rows) ([]story.Story, error) {
	defer rows.Close()

	out := make([]story.Story, 0)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
