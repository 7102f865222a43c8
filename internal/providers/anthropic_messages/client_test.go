package anthropic_messages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"orbnews/internal/providers"
)

func TestChatJoinsTextBlocks(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "[{\"headline\":"}, {"type": "text", "text": "\"h\"}]"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test", BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:        "claude-haiku-4-5",
		SystemPrompt: "system",
		UserPrompt:   "hi",
		MaxTokens:    200,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if gotModel != "claude-haiku-4-5" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if resp.Text != `[{"headline":"h"}]` {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestChatSurfacesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "bad", BaseURL: srv.URL})
	if _, err := c.Chat(context.Background(), providers.ChatRequest{Model: "claude-haiku-4-5", UserPrompt: "hi"}); err == nil {
		t.Fatalf("expected error for 401 response")
	}
}
