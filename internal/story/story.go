package story

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	TypeHistoricalFigure = "historical-figure"

	DefaultLanguage = "en"
	DefaultEpoch    = "Modern"

	FallbackSource  = "AI Generated"
	FallbackModelID = "static-fallback"

	RetentionDays = 30
)

var ErrInvalidRequest = errors.New("invalid story request")

var (
	Categories = []string{"Technology", "Science", "Art", "Nature", "Sports", "Music", "Space", "Innovation"}
	Epochs     = []string{"Ancient", "Medieval", "Industrial", "Modern", "Future"}
	Languages  = []string{"en", "es"}
	StoryTypes = []string{TypeHistoricalFigure}
)

// Story is one cached record. Audio bytes live in a side cache keyed by ID;
// AudioReady is filled in at read time and never persisted.
type Story struct {
	ID               string    `json:"id"`
	CacheKey         Key       `json:"-"`
	Category         string    `json:"category"`
	Epoch            string    `json:"epoch"`
	ModelID          string    `json:"model"`
	Language         string    `json:"language"`
	StoryType        string    `json:"storyType"`
	StoryIndex       int       `json:"-"`
	Headline         string    `json:"headline"`
	Summary          string    `json:"summary"`
	FullText         string    `json:"fullText"`
	Source           string    `json:"source"`
	HistoricalFigure string    `json:"historicalFigure,omitempty"`
	PublishedAt      time.Time `json:"publishedAt"`
	CreatedAt        time.Time `json:"createdAt"`
	LastAccessed     time.Time `json:"lastAccessed,omitzero"`
	AccessCount      int64     `json:"accessCount"`
	RequestedCount   int       `json:"-"`
	AudioReady       bool      `json:"audioReady"`
}

func (s Story) Dimensions() Dimensions {
	return Dimensions{
		Category:  s.Category,
		Epoch:     s.Epoch,
		ModelID:   s.ModelID,
		Language:  s.Language,
		StoryType: s.StoryType,
	}
}

type Filter struct {
	Category  string
	Epoch     string
	Language  string
	StoryType string
	Limit     int
}

type CategoryStats struct {
	Category  string   `json:"category"`
	Count     int64    `json:"count"`
	Epochs    []string `json:"epochs"`
	Models    []string `json:"models"`
	Languages []string `json:"languages"`
}

type Stats struct {
	TotalStories       int64           `json:"totalStories"`
	DistinctCategories int64           `json:"distinctCategories"`
	DistinctEpochs     int64           `json:"distinctEpochs"`
	DistinctModels     int64           `json:"distinctModels"`
	DistinctLanguages  int64           `json:"distinctLanguages"`
	Categories         []CategoryStats `json:"categories"`
	MostAccessed       []Story         `json:"mostAccessed"`
	MostRecent         []Story         `json:"mostRecent"`
}

// Store persists story batches. PutBatch and the access-stat updates in Get
// and Touch must be atomic per cache key.
type Store interface {
	PutBatch(ctx context.Context, key Key, stories []Story) error
	Get(ctx context.Context, key Key) ([]Story, error)
	Exists(ctx context.Context, key Key) (bool, error)
	Find(ctx context.Context, f Filter) ([]Story, error)
	Touch(ctx context.Context, ids []string) error
	Stats(ctx context.Context, topN int) (Stats, error)
	ClearOlderThan(ctx context.Context, days int) (int64, error)
}

type Request struct {
	Category  string
	Epoch     string
	Language  string
	ModelID   string
	StoryType string
	Count     int
}

// Normalize fills defaults and canonicalizes the case of known values.
func (r Request) Normalize() Request {
	r.Category = canonical(Categories, r.Category)
	r.Epoch = canonical(Epochs, r.Epoch)
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	r.ModelID = strings.TrimSpace(r.ModelID)
	r.StoryType = strings.ToLower(strings.TrimSpace(r.StoryType))
	if r.Epoch == "" {
		r.Epoch = DefaultEpoch
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.StoryType == "" {
		r.StoryType = TypeHistoricalFigure
	}
	return r
}

func (r Request) Validate() error {
	if !slices.Contains(Categories, r.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, r.Category)
	}
	if !slices.Contains(Epochs, r.Epoch) {
		return fmt.Errorf("%w: unknown epoch %q", ErrInvalidRequest, r.Epoch)
	}
	if !slices.Contains(Languages, r.Language) {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, r.Language)
	}
	if !slices.Contains(StoryTypes, r.StoryType) {
		return fmt.Errorf("%w: unsupported story type %q", ErrInvalidRequest, r.StoryType)
	}
	if r.Count < 1 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidRequest)
	}
	return nil
}

func (r Request) Dimensions() Dimensions {
	return Dimensions{
		Category:  r.Category,
		Epoch:     r.Epoch,
		ModelID:   r.ModelID,
		Language:  r.Language,
		StoryType: r.StoryType,
	}
}

func canonical(known []string, v string) string {
	v = strings.TrimSpace(v)
	for _, k := range known {
		if strings.EqualFold(k, v) {
			return k
		}
	}
	return v
}
