package newsroom

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orbnews/internal/story"
)

// FallbackStory builds the static story served when every generator failed.
func FallbackStory(req story.Request, modelID string, now time.Time) story.Story {
	lower := strings.ToLower(req.Category)
	requested := req.Count
	if requested < 1 {
		requested = 1
	}
	return story.Story{
		ID:             uuid.NewString(),
		Category:       req.Category,
		Epoch:          req.Epoch,
		ModelID:        modelID,
		Language:       req.Language,
		StoryType:      req.StoryType,
		Headline:       fmt.Sprintf("Positive %s News", req.Category),
		Summary:        fmt.Sprintf("Great things are happening in %s that inspire hope and progress.", lower),
		FullText:       fmt.Sprintf("The field of %s continues to show remarkable progress and positive developments. These advances demonstrate the incredible potential for positive change and innovation in our world.", lower),
		Source:         story.FallbackSource,
		PublishedAt:    now,
		CreatedAt:      now,
		RequestedCount: requested,
	}
}
