package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClaudeClient_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": [{"type": "text", "text": "{\"scenes\": "}, {"type": "text", "text": "[]}"}], "stop_reason": "end_turn"}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("sk-test", "claude-test").WithBaseURL(srv.URL + "/")
	defer c.Close()

	text, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello", MaxTokens: 100, Temperature: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"scenes": []}` {
		t.Errorf("expected concatenated text blocks, got %q", text)
	}
	if got.Model != "claude-test" || got.MaxTokens != 100 || got.System != "sys" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("expected explicit zero temperature, got %v", got.Temperature)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if snap := c.Stats.Snapshot(); snap.Count != 1 || snap.Failures != 0 {
		t.Errorf("expected one successful sample, got %+v", snap)
	}
	if c.Model() != "claude-test" {
		t.Errorf("unexpected model %q", c.Model())
	}
}

func TestClaudeClient_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"overloaded", 529, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"type":"error","error":{"type":"x","message":"nope"}}`))
			}))
			defer srv.Close()

			c := NewClaudeClient("k", "m").WithBaseURL(srv.URL)
			_, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (err=%v)", IsRetryable(err), tt.retryable, err)
			}
			if snap := c.Stats.Snapshot(); snap.Failures != 1 {
				t.Errorf("expected failure to be recorded, got %+v", snap)
			}
		})
	}
}

func TestClaudeClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "stop_reason": "max_tokens"}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("k", "m").WithBaseURL(srv.URL)
	_, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if err == nil || !strings.Contains(err.Error(), "max_tokens") {
		t.Fatalf("expected empty-response error mentioning stop reason, got %v", err)
	}
}
