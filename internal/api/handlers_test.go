package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"

	"orbnews/internal/queue"
	"orbnews/internal/reliability"
	"orbnews/internal/storage"
	"orbnews/internal/story"
)

type fakeNewsroom struct {
	stories   []story.Story
	err       error
	lastReq   story.Request
	lastOp    string
	exists    bool
	cleared   int
	report    reliability.Report
	refreshes int
}

func (f *fakeNewsroom) GetOrGenerateStories(ctx context.Context, req story.Request) ([]story.Story, error) {
	f.lastReq = req
	f.lastOp = "GetOrGenerateStories"
	return f.stories, f.err
}

func (f *fakeNewsroom) GenerateFresh(ctx context.Context, req story.Request) ([]story.Story, error) {
	f.lastReq = req
	f.lastOp = "GenerateFresh"
	return f.stories, f.err
}

func (f *fakeNewsroom) GetCyclingStories(ctx context.Context, req story.Request) ([]story.Story, error) {
	f.lastReq = req
	f.lastOp = "GetCyclingStories"
	return f.stories, f.err
}

func (f *fakeNewsroom) CheckExists(ctx context.Context, category, epoch, modelID, language string) (bool, error) {
	f.lastReq = story.Request{Category: category, Epoch: epoch, ModelID: modelID, Language: language}
	return f.exists, f.err
}

func (f *fakeNewsroom) GetCacheStats(ctx context.Context) (story.Stats, error) {
	return story.Stats{TotalStories: int64(len(f.stories))}, f.err
}

func (f *fakeNewsroom) ClearOldStories(ctx context.Context, daysOld int) (int64, error) {
	f.cleared = daysOld
	return 4, f.err
}

func (f *fakeNewsroom) Reliability() reliability.Report { return f.report }

func (f *fakeNewsroom) RefreshReliability(ctx context.Context) reliability.Report {
	f.refreshes++
	f.report = reliability.Report{Reliable: []string{"grok-4"}, CheckedAt: time.Now()}
	return f.report
}

type fakeLookup map[string]story.Story

func (f fakeLookup) ByID(ctx context.Context, id string) (story.Story, error) {
	st, ok := f[id]
	if !ok {
		return story.Story{}, storage.ErrNotFound
	}
	return st, nil
}

type fakeAudio map[string][]byte

func (f fakeAudio) Get(ctx context.Context, storyID, language string) ([]byte, bool, error) {
	b, ok := f[storyID+":"+language]
	return b, ok, nil
}

type fakeNarration struct {
	jobs []queue.NarrationJob
}

func (f *fakeNarration) EnqueueOnce(ctx context.Context, job queue.NarrationJob, ttl time.Duration) (bool, error) {
	f.jobs = append(f.jobs, job)
	return true, nil
}

type fakeLimiter struct {
	limit int64
	used  int64
}

func (f *fakeLimiter) Allow(ctx context.Context, client string, now time.Time) (bool, int64, time.Time, error) {
	f.used++
	return f.used <= f.limit, f.used, now.Add(30 * time.Minute), nil
}

func newTestRouter(cfg Config) http.Handler {
	gin.SetMode(gin.TestMode)
	cfg.Logger = zerolog.Nop()
	cfg.DefaultCount = 3
	cfg.MaxCount = 5
	return New(cfg).Handler()
}

func sampleStories() []story.Story {
	return []story.Story{{
		ID:         "s1",
		CacheKey:   "Technology|Modern|grok-4|en|historical-figure",
		StoryIndex: 0,
		Category:   "Technology",
		Headline:   "Ada's engine",
		Summary:    "A first program.",
		FullText:   "Ada Lovelace wrote the first algorithm.",
		Source:     "History Weekly",
		Language:   "en",
	}}
}

func TestPositiveNews(t *testing.T) {
	nr := &fakeNewsroom{stories: sampleStories()}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/orb/positive-news/Technology?epoch=Modern&count=9", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Technology", nr.lastReq.Category)
	assert.Equal(t, "Modern", nr.lastReq.Epoch)
	assert.Equal(t, 5, nr.lastReq.Count)

	var raw []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, 1, len(raw))
	assert.Equal(t, "Ada's engine", raw[0]["headline"])
	_, hasKey := raw[0]["cacheKey"]
	_, hasIndex := raw[0]["storyIndex"]
	assert.Equal(t, false, hasKey)
	assert.Equal(t, false, hasIndex)
}

func TestCachedNews(t *testing.T) {
	nr := &fakeNewsroom{stories: sampleStories()}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/news/Technology?epoch=Modern&model=grok-4&language=es&count=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GetOrGenerateStories", nr.lastOp)
	assert.Equal(t, "Technology", nr.lastReq.Category)
	assert.Equal(t, "Modern", nr.lastReq.Epoch)
	assert.Equal(t, "grok-4", nr.lastReq.ModelID)
	assert.Equal(t, "es", nr.lastReq.Language)
	assert.Equal(t, 2, nr.lastReq.Count)

	var raw []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, 1, len(raw))
	assert.Equal(t, "Ada's engine", raw[0]["headline"])
}

func TestCachedNewsInvalidRequest(t *testing.T) {
	nr := &fakeNewsroom{stories: []story.Story{}, err: fmt.Errorf("%w: unknown epoch", story.ErrInvalidRequest)}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/news/Science?epoch=Jurassic", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "GetOrGenerateStories", nr.lastOp)
	assert.Equal(t, 3, nr.lastReq.Count)
}

func TestPositiveNewsDefaultsCount(t *testing.T) {
	nr := &fakeNewsroom{stories: sampleStories()}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/positive-news/Science?count=abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, nr.lastReq.Count)
}

func TestPositiveNewsInvalidRequest(t *testing.T) {
	nr := &fakeNewsroom{stories: []story.Story{}, err: fmt.Errorf("%w: unknown category", story.ErrInvalidRequest)}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/positive-news/Gossip", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Stories []story.Story `json:"stories"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	assert.NotEqual(t, nil, body.Stories)
	assert.Equal(t, 0, len(body.Stories))
}

func TestGenerateNewsRateLimited(t *testing.T) {
	nr := &fakeNewsroom{stories: sampleStories()}
	r := newTestRouter(Config{Newsroom: nr, Limiter: &fakeLimiter{limit: 1}})

	body := []byte(`{"epoch":"Ancient","model":"grok-4","count":2}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orb/generate-news/Art", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Art", nr.lastReq.Category)
	assert.Equal(t, "Ancient", nr.lastReq.Epoch)
	assert.Equal(t, "grok-4", nr.lastReq.ModelID)
	assert.Equal(t, 2, nr.lastReq.Count)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/orb/generate-news/Art", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
}

func TestGenerateNewsBadBody(t *testing.T) {
	r := newTestRouter(Config{Newsroom: &fakeNewsroom{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orb/generate-news/Art", bytes.NewReader([]byte(`{"count":`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoryExists(t *testing.T) {
	nr := &fakeNewsroom{exists: true}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/stories/exists?category=Space&epoch=Future&model=grok-4&language=es", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"exists":true}`, w.Body.String())
	assert.Equal(t, "es", nr.lastReq.Language)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/stories/exists", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearStories(t *testing.T) {
	nr := &fakeNewsroom{}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/orb/stories/clear", bytes.NewReader([]byte(`{"daysOld":7}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, nr.cleared)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/orb/stories/clear", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, story.RetentionDays, nr.cleared)
}

func TestStoryAudio(t *testing.T) {
	narration := &fakeNarration{}
	r := newTestRouter(Config{
		Newsroom: &fakeNewsroom{},
		Stories: fakeLookup{
			"s1": {ID: "s1", Language: "en", Headline: "Ada", FullText: "Ada wrote code."},
			"s2": {ID: "s2", Language: "es", Headline: "Tesla", FullText: "Tesla encendió."},
		},
		Audio:     fakeAudio{"s1:en": []byte("ID3")},
		Narration: narration,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/audio/s1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID3", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/audio/s2", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, len(narration.jobs))
	assert.Equal(t, "es", narration.jobs[0].Language)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/orb/audio/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReliabilityEndpoints(t *testing.T) {
	nr := &fakeNewsroom{}
	r := newTestRouter(Config{Newsroom: nr})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/models/reliability", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var before reliabilityResponse
	_ = json.Unmarshal(w.Body.Bytes(), &before)
	assert.Equal(t, false, before.Probed)
	assert.Equal(t, 0, len(before.Reliable))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/models/reliability", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, nr.refreshes)

	var after reliabilityResponse
	_ = json.Unmarshal(w.Body.Bytes(), &after)
	assert.Equal(t, true, after.Probed)
	assert.Equal(t, []string{"grok-4"}, after.Reliable)
}

func TestHealth(t *testing.T) {
	proof := sampleStories()[0]
	nr := &fakeNewsroom{report: reliability.Report{Reliable: []string{"o4-mini"}, Proof: &proof}}
	r := newTestRouter(Config{Newsroom: nr, Version: "1.2.3"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, []string{"o4-mini"}, body.ReliableModels)
	assert.Equal(t, "Ada's engine", body.Proof.Headline)
}
