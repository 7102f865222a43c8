package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orbnews/internal/providers"
	"orbnews/internal/providers/registry"
)

type fakeProvider struct {
	text  string
	err   error
	delay time.Duration
	panic bool
}

func (f fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return providers.ChatResponse{Text: f.text}, f.err
}

const validProbe = `[{"headline":"Solar glass","summary":"Windows make power.","fullText":"Transparent panels now power homes.","source":"test"}]`

func newTestProber(t *testing.T, entries ...registry.Entry) *Prober {
	t.Helper()
	r := registry.New(nil)
	for _, e := range entries {
		r.Add(e)
	}
	return New(Config{Registry: r, Timeout: 200 * time.Millisecond, Logger: zerolog.Nop()})
}

func TestProbe(t *testing.T) {
	p := newTestProber(t,
		registry.Entry{ID: "good", Provider: fakeProvider{text: validProbe}},
		registry.Entry{ID: "prose", Provider: fakeProvider{text: "Sure! Here is a story about robots."}},
		registry.Entry{ID: "down", Provider: fakeProvider{err: errors.New("connection refused")}},
		registry.Entry{ID: "slow", Provider: fakeProvider{text: validProbe, delay: 2 * time.Second}},
		registry.Entry{ID: "panics", Provider: fakeProvider{panic: true}},
		registry.Entry{ID: "nokey", ConfigErr: providers.ErrNotConfigured},
	)

	cases := map[string]bool{
		"good":    true,
		"prose":   false,
		"down":    false,
		"slow":    false,
		"panics":  false,
		"nokey":   false,
		"missing": false,
	}
	for id, want := range cases {
		t.Run(id, func(t *testing.T) {
			if got := p.Probe(context.Background(), id); got != want {
				t.Fatalf("expected probe(%s)=%v, got %v", id, want, got)
			}
		})
	}
}

func TestProbeAllPreservesOrder(t *testing.T) {
	p := newTestProber(t,
		registry.Entry{ID: "a", Provider: fakeProvider{err: errors.New("503")}},
		registry.Entry{ID: "b", DisplayName: "Bee", Provider: fakeProvider{text: validProbe, delay: 50 * time.Millisecond}},
		registry.Entry{ID: "c", Provider: fakeProvider{text: validProbe}},
		registry.Entry{ID: "d", ConfigErr: providers.ErrNotConfigured},
	)

	report := p.ProbeAll(context.Background(), []string{"a", "b", "c", "d"})
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(report.Results))
	}
	for i, id := range []string{"a", "b", "c", "d"} {
		if report.Results[i].ModelID != id {
			t.Fatalf("expected result %d to be %s, got %s", i, id, report.Results[i].ModelID)
		}
	}
	if len(report.Reliable) != 2 || report.Reliable[0] != "b" || report.Reliable[1] != "c" {
		t.Fatalf("unexpected reliable list %v", report.Reliable)
	}
	if report.Results[0].Error == "" || report.Results[3].Error == "" {
		t.Fatalf("expected errors for failing generators: %+v", report.Results)
	}
	if report.Results[1].DisplayName != "Bee" {
		t.Fatalf("expected display name to be carried, got %q", report.Results[1].DisplayName)
	}
	if report.Proof == nil || report.Proof.ModelID != "b" || report.Proof.Headline != "Solar glass" {
		t.Fatalf("expected proof story from the first reliable generator, got %+v", report.Proof)
	}
}

func TestProbeAllNoneReliable(t *testing.T) {
	p := newTestProber(t, registry.Entry{ID: "a", ConfigErr: providers.ErrNotConfigured})
	report := p.ProbeAll(context.Background(), []string{"a"})
	if len(report.Reliable) != 0 || report.Proof != nil {
		t.Fatalf("expected empty report, got %+v", report)
	}
}
