package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quillforge/quill/pkg/types"
)

func TestOpenAIIsAvailable(t *testing.T) {
	if NewOpenAIAdapter(OpenAIConfig{}).IsAvailable(context.Background()) {
		t.Error("adapter without API key reports available")
	}
	if !NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test"}).IsAvailable(context.Background()) {
		t.Error("adapter with API key reports unavailable")
	}
}

func TestOpenAIGenerateChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want leading system message", req.Messages)
		}

		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "reply"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 4}
		}`)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	result, err := a.GenerateChat(context.Background(),
		[]types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
		Options{System: "persona"})
	if err != nil {
		t.Fatalf("GenerateChat failed: %v", err)
	}
	if result.Text != "reply" {
		t.Errorf("Text = %q, want %q", result.Text, "reply")
	}
	if result.InputTokens != 10 || result.OutputTokens != 4 {
		t.Errorf("tokens = (%d, %d), want (10, 4)", result.InputTokens, result.OutputTokens)
	}
}

func TestOpenAIGenerateChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("streaming call sent stream=false")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	ch := a.GenerateChatStream(context.Background(), []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}}, Options{})

	var text string
	var gotDone bool
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("stream error: %v", c.Err)
		}
		if c.Done {
			gotDone = true
			continue
		}
		text += c.Text
	}
	if text != "Hello" {
		t.Errorf("streamed text = %q, want %q", text, "Hello")
	}
	if !gotDone {
		t.Error("stream ended without Done marker")
	}
}

func TestOpenAIStreamHTTPErrorIsTerminalChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	ch := a.GenerateStream(context.Background(), "hi", Options{})

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 {
		t.Fatalf("received %d chunks, want exactly 1 terminal", len(chunks))
	}
	if chunks[0].Err == nil {
		t.Fatalf("terminal chunk = %+v, want error", chunks[0])
	}
}
