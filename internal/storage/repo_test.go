package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"orbnews/internal/story"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	dsn := filepath.Join(t.TempDir(), "stories.db")
	s, err := Open(context.Background(), "sqlite", dsn, true, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func testDims(category, model string) story.Dimensions {
	return story.Dimensions{
		Category:  category,
		Epoch:     "Modern",
		ModelID:   model,
		Language:  "en",
		StoryType: story.TypeHistoricalFigure,
	}
}

func testBatch(d story.Dimensions, headlines ...string) []story.Story {
	out := make([]story.Story, 0, len(headlines))
	for _, h := range headlines {
		out = append(out, story.Story{
			Category:       d.Category,
			Epoch:          d.Epoch,
			ModelID:        d.ModelID,
			Language:       d.Language,
			StoryType:      d.StoryType,
			Headline:       h,
			Summary:        h + " summary",
			FullText:       h + " full text",
			Source:         "test",
			RequestedCount: len(headlines),
		})
	}
	return out
}

func TestPutBatchReplacesPreviousBatch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	d := testDims("Technology", "o4-mini")
	key := story.MustKey(d)

	if err := s.PutBatch(ctx, key, testBatch(d, "a", "b", "c")); err != nil {
		t.Fatalf("put first batch: %v", err)
	}
	if err := s.PutBatch(ctx, key, testBatch(d, "x", "y")); err != nil {
		t.Fatalf("put second batch: %v", err)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stories after replacement, got %d", len(got))
	}
	for i, st := range got {
		if st.StoryIndex != i {
			t.Fatalf("expected story_index %d, got %d", i, st.StoryIndex)
		}
		if st.CacheKey != key {
			t.Fatalf("expected cache key %q, got %q", key, st.CacheKey)
		}
		if st.ID == "" {
			t.Fatalf("expected generated id on story %d", i)
		}
	}
	if got[0].Headline != "x" || got[1].Headline != "y" {
		t.Fatalf("unexpected headlines: %q, %q", got[0].Headline, got[1].Headline)
	}
}

func TestPutBatchRejectsEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	key := story.MustKey(testDims("Technology", "o4-mini"))
	if err := s.PutBatch(context.Background(), key, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestGetIncrementsAccessCount(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()
	d := testDims("Science", "grok-4")
	key := story.MustKey(d)

	if err := s.PutBatch(ctx, key, testBatch(d, "a")); err != nil {
		t.Fatalf("put: %v", err)
	}

	first, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get#1: %v", err)
	}
	if first[0].AccessCount != 1 {
		t.Fatalf("expected access count 1 after first get, got %d", first[0].AccessCount)
	}

	clock.Advance(time.Minute)
	second, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get#2: %v", err)
	}
	if second[0].AccessCount != 2 {
		t.Fatalf("expected access count 2 after second get, got %d", second[0].AccessCount)
	}
	if !second[0].LastAccessed.After(first[0].LastAccessed) {
		t.Fatalf("expected last accessed to advance: %v -> %v", first[0].LastAccessed, second[0].LastAccessed)
	}
}

func TestGetMissReturnsEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	got, err := s.Get(context.Background(), story.MustKey(testDims("Art", "o4-mini")))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected miss, got %d stories", len(got))
	}
}

func TestExistsDoesNotTouch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	d := testDims("Nature", "o4-mini")
	key := story.MustKey(d)

	ok, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists before put: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be absent")
	}

	if err := s.PutBatch(ctx, key, testBatch(d, "a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists after put: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to exist")
	}

	found, err := s.Find(ctx, story.Filter{Category: "Nature"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].AccessCount != 0 {
		t.Fatalf("expected untouched story, got %+v", found)
	}
}

func TestByID(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	d := testDims("Music", "grok-4")
	batch := testBatch(d, "a")
	batch[0].ID = "story-1"
	if err := s.PutBatch(ctx, story.MustKey(d), batch); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.ByID(ctx, "story-1")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Headline != "a" || got.AccessCount != 0 {
		t.Fatalf("unexpected story %+v", got)
	}
	if _, err := s.ByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearOlderThan(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	oldDims := testDims("Technology", "o4-mini")
	oldKey := story.MustKey(oldDims)
	if err := s.PutBatch(ctx, oldKey, testBatch(oldDims, "old")); err != nil {
		t.Fatalf("put old: %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)
	freshDims := testDims("Technology", "grok-4")
	freshKey := story.MustKey(freshDims)
	if err := s.PutBatch(ctx, freshKey, testBatch(freshDims, "fresh")); err != nil {
		t.Fatalf("put fresh: %v", err)
	}

	old, err := s.Get(ctx, oldKey)
	if err != nil {
		t.Fatalf("get old before sweep: %v", err)
	}
	if len(old) != 1 {
		t.Fatalf("expected old batch visible until the sweep, got %d", len(old))
	}

	n, err := s.ClearOlderThan(ctx, story.RetentionDays)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted row, got %d", n)
	}

	n, err = s.ClearOlderThan(ctx, story.RetentionDays)
	if err != nil {
		t.Fatalf("clear again: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected second clear to delete nothing, got %d", n)
	}

	old, err = s.Get(ctx, oldKey)
	if err != nil {
		t.Fatalf("get old after sweep: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old batch gone, got %d", len(old))
	}
	fresh, err := s.Get(ctx, freshKey)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected fresh batch kept, got %d", len(fresh))
	}
}

func TestFindLeastRecentlyServedFirst(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	a := testDims("Space", "o4-mini")
	b := testDims("Space", "grok-4")
	if err := s.PutBatch(ctx, story.MustKey(a), testBatch(a, "a0", "a1")); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := s.PutBatch(ctx, story.MustKey(b), testBatch(b, "b0")); err != nil {
		t.Fatalf("put b: %v", err)
	}

	all, err := s.Find(ctx, story.Filter{Category: "Space", Epoch: "Modern", Language: "en", StoryType: story.TypeHistoricalFigure})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected stories across all models, got %d", len(all))
	}

	var a0, b0 string
	for _, st := range all {
		switch st.Headline {
		case "a0":
			a0 = st.ID
		case "b0":
			b0 = st.ID
		}
	}
	clock.Advance(time.Minute)
	if err := s.Touch(ctx, []string{a0}); err != nil {
		t.Fatalf("touch a0: %v", err)
	}
	clock.Advance(time.Minute)
	if err := s.Touch(ctx, []string{b0}); err != nil {
		t.Fatalf("touch b0: %v", err)
	}

	got, err := s.Find(ctx, story.Filter{Category: "Space", Limit: 3})
	if err != nil {
		t.Fatalf("find after touch: %v", err)
	}
	order := []string{got[0].Headline, got[1].Headline, got[2].Headline}
	want := []string{"a1", "a0", "b0"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}

	limited, err := s.Find(ctx, story.Filter{Category: "Space", Limit: 1})
	if err != nil {
		t.Fatalf("find limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Headline != "a1" {
		t.Fatalf("expected never-served story first, got %+v", limited)
	}
}

func TestStats(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	tech := testDims("Technology", "o4-mini")
	techEs := tech
	techEs.Language = "es"
	art := testDims("Art", "grok-4")

	if err := s.PutBatch(ctx, story.MustKey(tech), testBatch(tech, "t0", "t1")); err != nil {
		t.Fatalf("put tech: %v", err)
	}
	clock.Advance(time.Second)
	if err := s.PutBatch(ctx, story.MustKey(techEs), testBatch(techEs, "e0")); err != nil {
		t.Fatalf("put tech es: %v", err)
	}
	clock.Advance(time.Second)
	if err := s.PutBatch(ctx, story.MustKey(art), testBatch(art, "r0")); err != nil {
		t.Fatalf("put art: %v", err)
	}
	if _, err := s.Get(ctx, story.MustKey(art)); err != nil {
		t.Fatalf("get art: %v", err)
	}

	st, err := s.Stats(ctx, 2)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalStories != 4 {
		t.Fatalf("expected 4 stories, got %d", st.TotalStories)
	}
	if st.DistinctCategories != 2 || st.DistinctModels != 2 || st.DistinctLanguages != 2 || st.DistinctEpochs != 1 {
		t.Fatalf("unexpected distinct counts: %+v", st)
	}
	if len(st.Categories) != 2 || st.Categories[0].Category != "Technology" || st.Categories[0].Count != 3 {
		t.Fatalf("unexpected category breakdown: %+v", st.Categories)
	}
	if got := st.Categories[0].Languages; len(got) != 2 || got[0] != "en" || got[1] != "es" {
		t.Fatalf("unexpected technology languages: %v", got)
	}
	if len(st.MostAccessed) != 2 || st.MostAccessed[0].Headline != "r0" {
		t.Fatalf("expected art story most accessed, got %+v", st.MostAccessed)
	}
	if len(st.MostRecent) != 2 || st.MostRecent[0].Headline != "r0" || st.MostRecent[1].Headline != "e0" {
		t.Fatalf("unexpected most recent: %+v", st.MostRecent)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	s, _ := openTestStore(t)
	st, err := s.Stats(context.Background(), 5)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalStories != 0 || len(st.Categories) != 0 || len(st.MostRecent) != 0 {
		t.Fatalf("expected empty stats, got %+v", st)
	}
}

func TestRunRetentionSweepsOnStart(t *testing.T) {
	s, clock := openTestStore(t)
	d := testDims("Music", "o4-mini")
	if err := s.PutBatch(context.Background(), story.MustKey(d), testBatch(d, "m")); err != nil {
		t.Fatalf("put: %v", err)
	}
	clock.Advance(40 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int64, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunRetention(ctx, RetentionConfig{Interval: time.Hour, OnSweep: func(n int64) {
			select {
			case swept <- n:
			default:
			}
		}})
	}()

	select {
	case n := <-swept:
		if n != 1 {
			t.Fatalf("expected 1 deleted row, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("retention sweep did not run")
	}
	cancel()
	<-done
}
