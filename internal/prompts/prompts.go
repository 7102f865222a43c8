package prompts

import (
	"fmt"
	"strings"

	"orbnews/internal/providers"
	"orbnews/internal/story"
)

const systemBase = "You are a creative assistant for the Orb Game, an AI-powered multimodal gaming system. " +
	"You create engaging, educational stories about specific historical figures for a requested category and epoch. " +
	"Always name the historical figure in the headline and the story. " +
	"Each story has a headline (short, catchy title), a summary (one sentence) and full text (a vivid 2-3 sentence narrative). " +
	"Keep the content positive and suitable for text-to-speech narration. Avoid negative or controversial topics."

const (
	instructionEnglish = "IMPORTANT: Respond in English language."
	instructionSpanish = "IMPORTANTE: Responde EN ESPAÑOL. Todo el contenido debe estar en español."
)

const probeText = "Generate a brief positive news story about modern technology innovation. " +
	`Return ONLY a valid JSON array with this exact format: [{ "headline": "Brief headline", "summary": "One sentence summary", "fullText": "2-3 sentence story", "source": %q }]`

func LanguageInstruction(language string) string {
	if strings.EqualFold(language, "es") {
		return instructionSpanish
	}
	return instructionEnglish
}

// Story renders the generation request for a batch. source is the name the
// model should put in the source field.
func Story(r story.Request, source string, maxTokens int, temperature float64) providers.ChatRequest {
	instruction := LanguageInstruction(r.Language)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d fascinating, positive %s stories from %s times", r.Count, r.Category, strings.ToLower(r.Epoch))
	if r.StoryType == story.TypeHistoricalFigure {
		fmt.Fprintf(&sb, ", each about a different real historical figure known for %s", strings.ToLower(r.Category))
	}
	sb.WriteString(". Each story should be engaging, informative, and highlight remarkable achievements or discoveries. ")
	sb.WriteString(instruction)
	sb.WriteString(" Return ONLY a valid JSON array with this exact format: ")
	fmt.Fprintf(&sb, `[{ "headline": "Brief headline", "summary": "One sentence summary", "fullText": "2-3 sentence story", "source": %q, "historicalFigure": "Full name" }]`, source)

	return providers.ChatRequest{
		SystemPrompt: systemBase + " " + instruction,
		UserPrompt:   sb.String(),
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	}
}

// Probe renders the fixed reliability check prompt.
func Probe(source string, maxTokens int) providers.ChatRequest {
	return providers.ChatRequest{
		UserPrompt: fmt.Sprintf(probeText, source),
		MaxTokens:  maxTokens,
	}
}
