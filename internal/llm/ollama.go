package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quillforge/quill/pkg/types"
)

// OllamaAdapter wraps a self-hosted Ollama inference server. Local backends
// have zero marginal per-call cost; EstimateCost always returns 0.
// Non-streaming calls are wrapped with circuit breaker protection.
type OllamaAdapter struct {
	name           string
	baseURL        string
	model          string
	embedModel     string
	client         *http.Client
	probeClient    *http.Client
	circuitBreaker *CircuitBreaker
}

// OllamaConfig holds Ollama adapter configuration.
type OllamaConfig struct {
	// Name is the registry name of the adapter (default: "ollama").
	Name string

	// BaseURL is the base URL of the Ollama API (default: http://localhost:11434).
	BaseURL string

	// Model is the exact model name used for generation, e.g. "qwen2.5:7b".
	Model string

	// EmbedModel is the model used for /api/embed (default: "nomic-embed-text").
	EmbedModel string

	// Timeout bounds one blocking generation round-trip (default: 5m).
	Timeout time.Duration

	// ProbeTimeout bounds the IsAvailable liveness probe (default: 2s).
	ProbeTimeout time.Duration
}

// ollamaGenerateRequest is the request body for POST /api/generate.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaGenerateResponse is one response object from /api/generate. When
// streaming, the endpoint emits one JSON object per line; the final object
// has Done set and carries token counts.
type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// ollamaChatRequest is the request body for POST /api/chat.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is one response object from /api/chat.
type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// ollamaEmbedRequest is the request body for POST /api/embed.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse is the response from /api/embed. The embeddings field
// is a 2D array; we always use the first (and only) embedding.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ollamaTagsResponse is the response from GET /api/tags.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaAdapter creates an Ollama adapter with the given configuration,
// applying defaults for unset fields.
func NewOllamaAdapter(config OllamaConfig) *OllamaAdapter {
	if config.Name == "" {
		config.Name = "ollama"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 2 * time.Second
	}

	return &OllamaAdapter{
		name:       config.Name,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		embedModel: config.EmbedModel,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		probeClient: &http.Client{
			Timeout: config.ProbeTimeout,
		},
		circuitBreaker: NewCircuitBreaker(config.Name),
	}
}

// Name returns the adapter's registry name.
func (a *OllamaAdapter) Name() string { return a.name }

// Category reports the backend category.
func (a *OllamaAdapter) Category() BackendCategory { return CategoryLocal }

// Generate sends a blocking completion request to /api/generate.
func (a *OllamaAdapter) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.generate(ctx, prompt, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Result), nil
}

func (a *OllamaAdapter) generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	opts = opts.normalized()

	reqBody := ollamaGenerateRequest{
		Model:   a.model,
		Prompt:  prompt,
		System:  opts.System,
		Stream:  false,
		Options: a.modelOptions(opts),
	}

	var respData ollamaGenerateResponse
	if err := a.post(ctx, a.client, "/api/generate", reqBody, &respData); err != nil {
		return nil, err
	}

	return &Result{
		Text:         respData.Response,
		InputTokens:  respData.PromptEvalCount,
		OutputTokens: respData.EvalCount,
	}, nil
}

// GenerateStream starts a streamed completion against /api/generate. The
// returned channel delivers text fragments in production order; the network
// exchange runs on a background goroutine.
func (a *OllamaAdapter) GenerateStream(ctx context.Context, prompt string, opts Options) <-chan StreamChunk {
	opts = opts.normalized()

	reqBody := ollamaGenerateRequest{
		Model:   a.model,
		Prompt:  prompt,
		System:  opts.System,
		Stream:  true,
		Options: a.modelOptions(opts),
	}

	return a.stream(ctx, "/api/generate", reqBody, func(line []byte) (string, bool, error) {
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", false, fmt.Errorf("failed to decode stream line: %w", err)
		}
		return chunk.Response, chunk.Done, nil
	})
}

// GenerateChat sends a blocking multi-turn request to /api/chat. Ollama's
// chat endpoint accepts the system role natively, so messages pass through
// unchanged.
func (a *OllamaAdapter) GenerateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.generateChat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Result), nil
}

func (a *OllamaAdapter) generateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	opts = opts.normalized()

	var respData ollamaChatResponse
	if err := a.post(ctx, a.client, "/api/chat", a.chatRequest(messages, opts, false), &respData); err != nil {
		return nil, err
	}

	return &Result{
		Text:         respData.Message.Content,
		InputTokens:  respData.PromptEvalCount,
		OutputTokens: respData.EvalCount,
	}, nil
}

// GenerateChatStream starts a streamed multi-turn completion against /api/chat.
func (a *OllamaAdapter) GenerateChatStream(ctx context.Context, messages []types.ChatMessage, opts Options) <-chan StreamChunk {
	opts = opts.normalized()

	return a.stream(ctx, "/api/chat", a.chatRequest(messages, opts, true), func(line []byte) (string, bool, error) {
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", false, fmt.Errorf("failed to decode stream line: %w", err)
		}
		return chunk.Message.Content, chunk.Done, nil
	})
}

// IsAvailable checks that the Ollama endpoint is reachable and that the
// exact configured model is loaded, via GET /api/tags with a short timeout.
func (a *OllamaAdapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := a.probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	for _, m := range tags.Models {
		if m.Name == a.model {
			return true
		}
		// "llama3" in config matches the server's "llama3:latest".
		if !strings.Contains(a.model, ":") && m.Name == a.model+":latest" {
			return true
		}
	}
	return false
}

// EstimateCost always returns 0: local inference has no marginal cost.
func (a *OllamaAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return 0
}

// Embed generates an embedding vector for the given text via /api/embed.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (a *OllamaAdapter) embed(ctx context.Context, text string) ([]float32, error) {
	var respData ollamaEmbedResponse
	if err := a.post(ctx, a.client, "/api/embed", ollamaEmbedRequest{Model: a.embedModel, Input: text}, &respData); err != nil {
		return nil, err
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}
	return respData.Embeddings[0], nil
}

// chatRequest builds an /api/chat request body from domain messages.
func (a *OllamaAdapter) chatRequest(messages []types.ChatMessage, opts Options, stream bool) ollamaChatRequest {
	msgs := make([]ollamaChatMessage, 0, len(messages)+1)
	if opts.System != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: opts.System})
	}
	for _, m := range messages {
		msgs = append(msgs, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return ollamaChatRequest{
		Model:    a.model,
		Messages: msgs,
		Stream:   stream,
		Options:  a.modelOptions(opts),
	}
}

// modelOptions maps generation options onto Ollama's options object.
func (a *OllamaAdapter) modelOptions(opts Options) map[string]any {
	o := map[string]any{
		"num_predict": opts.MaxTokens,
		"temperature": opts.Temperature,
		"top_p":       opts.TopP,
	}
	if len(opts.Stop) > 0 {
		o["stop"] = opts.Stop
	}
	return o
}

// post sends a JSON request and decodes a JSON response.
func (a *OllamaAdapter) post(ctx context.Context, client *http.Client, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// stream performs the HTTP exchange on a background goroutine and publishes
// newline-delimited JSON chunks onto the returned channel. parseLine maps one
// line to (fragment, done, error). Cancelling ctx stops the producer.
func (a *OllamaAdapter) stream(ctx context.Context, path string, body any, parseLine func([]byte) (string, bool, error)) <-chan StreamChunk {
	ch := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(ch)

		jsonData, err := json.Marshal(body)
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to marshal request: %w", err)})
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to create request: %w", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")

		// No client timeout for streaming; the context bounds the
		// exchange instead.
		streamClient := &http.Client{Transport: a.client.Transport}
		resp, err := streamClient.Do(req)
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to send request: %w", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			fragment, done, err := parseLine(line)
			if err != nil {
				sendChunk(ctx, ch, StreamChunk{Err: err})
				return
			}
			if fragment != "" {
				if !sendChunk(ctx, ch, StreamChunk{Text: fragment}) {
					return
				}
			}
			if done {
				sendChunk(ctx, ch, StreamChunk{Done: true})
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("stream read error: %w", err)})
			return
		}
		// Body ended without a done marker: treat as normal completion.
		sendChunk(ctx, ch, StreamChunk{Done: true})
	}()

	return ch
}

// Compile-time assertions that OllamaAdapter satisfies both capabilities.
var _ Adapter = (*OllamaAdapter)(nil)
var _ Embedder = (*OllamaAdapter)(nil)
