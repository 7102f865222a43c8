package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"orbnews/internal/newsroom"
	"orbnews/internal/reliability"
	"orbnews/internal/storage"
	"orbnews/internal/story"
)

type generateRequest struct {
	Epoch     string `json:"epoch"`
	Model     string `json:"model"`
	Language  string `json:"language"`
	StoryType string `json:"storyType"`
	Count     int    `json:"count"`
}

type clearRequest struct {
	DaysOld *int `json:"daysOld"`
}

type healthResponse struct {
	Status         string       `json:"status"`
	Timestamp      string       `json:"timestamp"`
	Version        string       `json:"version"`
	ReliableModels []string     `json:"reliableModels"`
	Proof          *story.Story `json:"proof,omitempty"`
}

type reliabilityResponse struct {
	reliability.Report
	Probed bool `json:"probed"`
}

func (s *Server) health(c *gin.Context) {
	report := s.newsroom.Reliability()
	reliable := report.Reliable
	if reliable == nil {
		reliable = []string{}
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:         "healthy",
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Version:        s.version,
		ReliableModels: reliable,
		Proof:          report.Proof,
	})
}

// positiveNews serves cached stories in rotation.
func (s *Server) positiveNews(c *gin.Context) {
	req := story.Request{
		Category:  c.Param("category"),
		Epoch:     c.Query("epoch"),
		Language:  c.Query("language"),
		StoryType: c.Query("storyType"),
		Count:     s.count(getQueryInt("count", s.defaultCount, c)),
	}
	stories, err := s.newsroom.GetCyclingStories(c.Request.Context(), req)
	if err != nil {
		s.storyError(c, err)
		return
	}
	c.JSON(http.StatusOK, stories)
}

// cachedNews serves the batch cached for the request key, generating it on a miss.
func (s *Server) cachedNews(c *gin.Context) {
	req := story.Request{
		Category:  c.Param("category"),
		Epoch:     c.Query("epoch"),
		Language:  c.Query("language"),
		ModelID:   c.Query("model"),
		StoryType: c.Query("storyType"),
		Count:     s.count(getQueryInt("count", s.defaultCount, c)),
	}
	stories, err := s.newsroom.GetOrGenerateStories(c.Request.Context(), req)
	if err != nil {
		s.storyError(c, err)
		return
	}
	c.JSON(http.StatusOK, stories)
}

// generateNews forces a fresh batch for the category.
func (s *Server) generateNews(c *gin.Context) {
	var body generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	if !s.allow(c) {
		return
	}

	count := body.Count
	if count <= 0 {
		count = s.defaultCount
	}
	req := story.Request{
		Category:  c.Param("category"),
		Epoch:     body.Epoch,
		Language:  body.Language,
		ModelID:   body.Model,
		StoryType: body.StoryType,
		Count:     s.count(count),
	}
	stories, err := s.newsroom.GenerateFresh(c.Request.Context(), req)
	if err != nil {
		s.storyError(c, err)
		return
	}
	c.JSON(http.StatusOK, stories)
}

func (s *Server) storyExists(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	exists, err := s.newsroom.CheckExists(c.Request.Context(), category, c.Query("epoch"), c.Query("model"), c.Query("language"))
	if err != nil {
		s.storyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) storyStats(c *gin.Context) {
	stats, err := s.newsroom.GetCacheStats(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("error fetching cache stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) clearStories(c *gin.Context) {
	days := story.RetentionDays
	if c.Request.ContentLength != 0 {
		var body clearRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if body.DaysOld != nil {
			days = *body.DaysOld
		}
	}

	deleted, err := s.newsroom.ClearOldStories(c.Request.Context(), days)
	if err != nil {
		s.storyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "daysOld": days})
}

// storyAudio returns the narration for a story, queueing it when missing.
func (s *Server) storyAudio(c *gin.Context) {
	ctx := c.Request.Context()
	if s.stories == nil || s.audio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Narration is not available"})
		return
	}

	st, err := s.stories.ByID(ctx, c.Param("storyID"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
			return
		}
		s.logger.Error().Err(err).Msg("error loading story")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	mp3, ok, err := s.audio.Get(ctx, st.ID, st.Language)
	if err != nil {
		s.logger.Error().Err(err).Str("story_id", st.ID).Msg("error loading audio")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Audio cache error"})
		return
	}
	if ok {
		c.Data(http.StatusOK, "audio/mpeg", mp3)
		return
	}

	if s.narration == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Narration is not available"})
		return
	}
	queued, err := s.narration.EnqueueOnce(ctx, newsroom.NarrationJobFor(st), s.pendingTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("story_id", st.ID).Msg("error enqueueing narration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue error"})
		return
	}
	if queued {
		s.metrics.EnqueuedJobs.Inc()
	}
	c.Header("Retry-After", "5")
	c.JSON(http.StatusAccepted, gin.H{"status": "pending", "storyId": st.ID})
}

func (s *Server) reliability(c *gin.Context) {
	c.JSON(http.StatusOK, s.reliabilityBody(s.newsroom.Reliability()))
}

func (s *Server) refreshReliability(c *gin.Context) {
	if !s.allow(c) {
		return
	}
	c.JSON(http.StatusOK, s.reliabilityBody(s.newsroom.RefreshReliability(c.Request.Context())))
}

func (s *Server) reliabilityBody(report reliability.Report) reliabilityResponse {
	if report.Reliable == nil {
		report.Reliable = []string{}
	}
	if report.Results == nil {
		report.Results = []reliability.Result{}
	}
	return reliabilityResponse{Report: report, Probed: !report.CheckedAt.IsZero()}
}

// allow applies the per-client hourly limit. A limiter failure lets the
// request through.
func (s *Server) allow(c *gin.Context) bool {
	if s.limiter == nil {
		return true
	}
	now := s.now().UTC()
	allowed, _, resetAt, err := s.limiter.Allow(c.Request.Context(), c.ClientIP(), now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if allowed {
		return true
	}
	s.metrics.RateLimited.Inc()
	retry := int(resetAt.Sub(now).Seconds())
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
	return false
}

func (s *Server) count(n int) int {
	if n > s.maxCount {
		return s.maxCount
	}
	return n
}

func (s *Server) storyError(c *gin.Context, err error) {
	if errors.Is(err, story.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "stories": []story.Story{}})
		return
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("story request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch positive news"})
}

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
