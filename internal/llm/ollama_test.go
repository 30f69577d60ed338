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

func ollamaTagsHandler(models ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type model struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range models {
			resp.Models = append(resp.Models, model{Name: m})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestOllamaIsAvailable(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		installed []string
		want      bool
	}{
		{name: "exact model present", model: "qwen2.5:7b", installed: []string{"qwen2.5:7b", "phi3:mini"}, want: true},
		{name: "model missing", model: "qwen2.5:7b", installed: []string{"phi3:mini"}, want: false},
		{name: "untagged config matches latest", model: "llama3", installed: []string{"llama3:latest"}, want: true},
		{name: "no models installed", model: "qwen2.5:7b", installed: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(ollamaTagsHandler(tt.installed...))
			defer srv.Close()

			a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: tt.model})
			if got := a.IsAvailable(context.Background()); got != tt.want {
				t.Errorf("IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOllamaIsAvailableEndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // probe a dead endpoint

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
	if a.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true for unreachable endpoint")
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("blocking generate sent stream=true")
		}
		if req.System != "be brief" {
			t.Errorf("system = %q, want %q", req.System, "be brief")
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        "pong",
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
	result, err := a.Generate(context.Background(), "ping", Options{System: "be brief"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Text != "pong" {
		t.Errorf("Text = %q, want %q", result.Text, "pong")
	}
	if result.InputTokens != 12 || result.OutputTokens != 3 {
		t.Errorf("tokens = (%d, %d), want (12, 3)", result.InputTokens, result.OutputTokens)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
	if _, err := a.Generate(context.Background(), "ping", Options{}); err == nil {
		t.Fatal("Generate succeeded against a 500 response")
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("streaming generate sent stream=false")
		}
		fmt.Fprintln(w, `{"response":"He","done":false}`)
		fmt.Fprintln(w, `{"response":"llo","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"prompt_eval_count":5,"eval_count":2}`)
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
	ch := a.GenerateStream(context.Background(), "hi", Options{})

	var text string
	var terminal int
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("stream error: %v", c.Err)
		}
		if c.Done {
			terminal++
			continue
		}
		if terminal > 0 {
			t.Error("received a chunk after the terminal marker")
		}
		text += c.Text
	}
	if text != "Hello" {
		t.Errorf("streamed text = %q, want %q", text, "Hello")
	}
	if terminal != 1 {
		t.Errorf("terminal chunks = %d, want exactly 1", terminal)
	}
}

func TestOllamaChatStreamAbandonedConsumer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _ := w.(http.Flusher)
		// Emit far more chunks than the channel buffer holds.
		for i := 0; i < 500; i++ {
			fmt.Fprintln(w, `{"message":{"content":"x"},"done":false}`)
			if f != nil {
				f.Flush()
			}
		}
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
	ch := a.GenerateChatStream(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}}, Options{})

	// Read one chunk, then walk away.
	<-ch
	cancel()

	// The producer must close the channel rather than block forever.
	for range ch {
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{BaseURL: srv.URL, EmbedModel: "nomic-embed-text"})
	vec, err := a.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
}
