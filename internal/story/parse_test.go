package story

import (
	"errors"
	"testing"
)

func TestParseBatchArray(t *testing.T) {
	raw := `[{"headline":"Ada","summary":"s","fullText":"f","source":"Grok 4","historicalFigure":"Ada Lovelace","publishedAt":"2026-01-02T03:04:05Z"}]`
	got, err := ParseBatch(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0].HistoricalFigure != "Ada Lovelace" {
		t.Fatalf("unexpected stories %+v", got)
	}
	if got[0].PublishedAt.IsZero() {
		t.Fatalf("expected publishedAt to be parsed")
	}
}

func TestParseBatchWrappedObject(t *testing.T) {
	got, err := ParseBatch(`{"stories":[{"headline":"h","summary":"s","fullText":"f","source":"x"},{"headline":"h2","summary":"s","fullText":"f","source":"x"}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(got))
	}
}

func TestParseBatchRepair(t *testing.T) {
	cases := map[string]string{
		"code fence":      "```json\n[{\"headline\":\"h\",\"summary\":\"s\",\"fullText\":\"f\",\"source\":\"x\"}]\n```",
		"prose":           "Here are your stories:\n[{\"headline\":\"h\",\"summary\":\"s\",\"fullText\":\"f\",\"source\":\"x\"}]\nEnjoy!",
		"trailing commas": `[{"headline":"h","summary":"s","fullText":"f","source":"x",},]`,
		"brace in prose":  "Note {draft}: [{\"headline\":\"h\",\"summary\":\"s\",\"fullText\":\"f\",\"source\":\"x\"}]",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseBatch(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(got) != 1 || got[0].Headline != "h" {
				t.Fatalf("unexpected stories %+v", got)
			}
		})
	}
}

func TestParseBatchRejects(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"empty array":     {raw: `[]`, want: ErrNoStories},
		"missing source":  {raw: `[{"headline":"h","summary":"s","fullText":"f"}]`, want: ErrInvalidRecord},
		"blank full text": {raw: `[{"headline":"h","summary":"s","fullText":"  ","source":"x"}]`, want: ErrInvalidRecord},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBatch(tc.raw)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := ParseBatch("I cannot help with that."); err == nil {
		t.Fatalf("expected prose without json to fail")
	}
}

func TestDedupe(t *testing.T) {
	in := []Story{
		{Headline: "a", Summary: "1"},
		{Headline: "a", Summary: "1"},
		{Headline: "A", Summary: "1"},
		{Headline: "a", Summary: "2"},
	}
	got := Dedupe(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 stories after dedupe, got %d", len(got))
	}
	if got[1].Headline != "A" {
		t.Fatalf("expected case-sensitive match to keep %q, got %+v", "A", got)
	}
}
