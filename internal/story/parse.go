package story

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNoStories     = errors.New("no stories in generator output")
	ErrInvalidRecord = errors.New("story record is missing required fields")
)

// ParseError is returned when generator output cannot be turned into a
// valid batch, even after the repair pass.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse generator output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type rawStory struct {
	Headline         string `json:"headline"`
	Summary          string `json:"summary"`
	FullText         string `json:"fullText"`
	Source           string `json:"source"`
	HistoricalFigure string `json:"historicalFigure"`
	PublishedAt      string `json:"publishedAt"`
}

// ParseBatch decodes a JSON array of story objects, or an object wrapping it
// under "stories". Repaired variants are attempted before giving up.
func ParseBatch(raw string) ([]Story, error) {
	stories, err := decodeBatch(raw)
	if err == nil {
		return stories, nil
	}
	for _, repaired := range repairs(raw) {
		if repaired == raw {
			continue
		}
		stories, err = decodeBatch(repaired)
		if err == nil {
			return stories, nil
		}
	}
	return nil, &ParseError{Raw: raw, Err: err}
}

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

// Repair strips code fences and prose around the outermost JSON value and
// drops trailing commas.
func Repair(raw string) string {
	return repairs(raw)[0]
}

// repairs lists cleaned candidates in preference order. A brace in the prose
// before the array makes the object span wrong, so the array span follows it.
func repairs(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var spans []string
	arrStart, arrEnd := strings.Index(s, "["), strings.LastIndex(s, "]")
	if objStart := strings.Index(s, "{"); objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		// Wrapped object such as {"stories": [...]}.
		if objEnd := strings.LastIndex(s, "}"); objEnd > objStart {
			spans = append(spans, s[objStart:objEnd+1])
		}
	}
	if arrStart >= 0 && arrEnd > arrStart {
		spans = append(spans, s[arrStart:arrEnd+1])
	}
	if len(spans) == 0 {
		spans = append(spans, s)
	}

	out := make([]string, 0, len(spans))
	for _, span := range spans {
		out = append(out, trailingComma.ReplaceAllString(span, "$1"))
	}
	return out
}

func decodeBatch(raw string) ([]Story, error) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 {
		return nil, ErrNoStories
	}

	var items []rawStory
	switch b[0] {
	case '[':
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, err
		}
	case '{':
		var wrapped struct {
			Stories []rawStory `json:"stories"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return nil, err
		}
		items = wrapped.Stories
	default:
		return nil, fmt.Errorf("output is not a json array")
	}

	if len(items) == 0 {
		return nil, ErrNoStories
	}
	out := make([]Story, 0, len(items))
	for i, it := range items {
		st := Story{
			Headline:         strings.TrimSpace(it.Headline),
			Summary:          strings.TrimSpace(it.Summary),
			FullText:         strings.TrimSpace(it.FullText),
			Source:           strings.TrimSpace(it.Source),
			HistoricalFigure: strings.TrimSpace(it.HistoricalFigure),
		}
		if st.Headline == "" || st.Summary == "" || st.FullText == "" || st.Source == "" {
			return nil, fmt.Errorf("%w: record %d", ErrInvalidRecord, i)
		}
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(it.PublishedAt)); err == nil {
			st.PublishedAt = ts.UTC()
		}
		out = append(out, st)
	}
	return out, nil
}

// Dedupe drops stories whose headline and summary exactly match an earlier one.
func Dedupe(stories []Story) []Story {
	type pair struct{ headline, summary string }
	seen := make(map[pair]struct{}, len(stories))
	out := make([]Story, 0, len(stories))
	for _, s := range stories {
		k := pair{s.Headline, s.Summary}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
