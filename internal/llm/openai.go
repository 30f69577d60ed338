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

// OpenAIAdapter wraps the OpenAI chat completions API. It is a metered cloud
// backend: EstimateCost prices calls from a per-model table.
type OpenAIAdapter struct {
	name           string
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// OpenAIConfig holds OpenAI adapter configuration.
type OpenAIConfig struct {
	// Name is the registry name of the adapter (default: "openai").
	Name string

	// APIKey authenticates requests. An empty key makes the adapter
	// report itself unavailable.
	APIKey string

	// Model selects the chat model (default: gpt-4o-mini).
	Model string

	// EmbeddingModel selects the embeddings model (default: text-embedding-3-small).
	EmbeddingModel string

	// BaseURL overrides the API endpoint (default: https://api.openai.com).
	BaseURL string

	// Timeout bounds one blocking round-trip (default: 5m).
	Timeout time.Duration
}

// openAIChatRequest is the request body for POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
	TopP        float64             `json:"top_p,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse is the response body from POST /v1/chat/completions.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// openAIChatChunk is one SSE data payload of a streamed completion.
type openAIChatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIEmbeddingRequest is the request body for POST /v1/embeddings.
type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// openAIEmbeddingResponse is the response body from POST /v1/embeddings.
type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIAdapter creates an OpenAI adapter with the given configuration,
// applying defaults for unset fields.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &OpenAIAdapter{
		name: cfg.Name,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(cfg.Name),
	}
}

// Name returns the adapter's registry name.
func (a *OpenAIAdapter) Name() string { return a.name }

// Category reports the backend category.
func (a *OpenAIAdapter) Category() BackendCategory { return CategoryCloud }

// Generate performs one blocking single-shot completion.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return a.GenerateChat(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, opts)
}

// GenerateStream starts a streamed single-shot completion.
func (a *OpenAIAdapter) GenerateStream(ctx context.Context, prompt string, opts Options) <-chan StreamChunk {
	return a.GenerateChatStream(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, opts)
}

// GenerateChat performs one blocking multi-turn completion. The OpenAI API
// accepts the system role natively; a System option becomes the leading
// message.
func (a *OpenAIAdapter) GenerateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.generateChat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Result), nil
}

func (a *OpenAIAdapter) generateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	reqBody := a.chatRequest(messages, opts, false)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Result{
		Text:         respData.Choices[0].Message.Content,
		InputTokens:  respData.Usage.PromptTokens,
		OutputTokens: respData.Usage.CompletionTokens,
	}, nil
}

// GenerateChatStream starts a streamed multi-turn completion. The exchange
// runs on a background goroutine reading SSE "data: " lines until the
// "[DONE]" sentinel.
func (a *OpenAIAdapter) GenerateChatStream(ctx context.Context, messages []types.ChatMessage, opts Options) <-chan StreamChunk {
	ch := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(ch)

		jsonData, err := json.Marshal(a.chatRequest(messages, opts, true))
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to marshal request: %w", err)})
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to create request: %w", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

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
			body, _ := io.ReadAll(resp.Body)
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))})
			return
		}

		a.parseSSE(ctx, resp.Body, ch)
	}()

	return ch
}

// parseSSE reads Chat Completions SSE chunks and publishes text fragments.
// Lines that don't start with "data: " (comments, blank keep-alives) are
// ignored; the "[DONE]" sentinel terminates the stream.
func (a *OpenAIAdapter) parseSSE(ctx context.Context, body io.Reader, ch chan<- StreamChunk) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			sendChunk(ctx, ch, StreamChunk{Done: true})
			return
		}

		var chunk openAIChatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to decode stream chunk: %w", err)})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if !sendChunk(ctx, ch, StreamChunk{Text: delta}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	// Stream ended without the sentinel; treat as normal completion.
	sendChunk(ctx, ch, StreamChunk{Done: true})
}

// IsAvailable reports whether a credential is configured. No network call.
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	return a.cfg.APIKey != ""
}

// EstimateCost prices a call from the OpenAI pricing table.
func (a *OpenAIAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return estimate(openAIRates, a.cfg.Model, inputTokens, outputTokens)
}

// Embed generates an embedding vector via POST /v1/embeddings.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (a *OpenAIAdapter) embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(openAIEmbeddingRequest{Model: a.cfg.EmbeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}
	return respData.Data[0].Embedding, nil
}

// chatRequest builds a chat completions request body. A System option is
// prepended as a system-role message.
func (a *OpenAIAdapter) chatRequest(messages []types.ChatMessage, opts Options, stream bool) openAIChatRequest {
	opts = opts.normalized()

	msgs := make([]openAIChatMessage, 0, len(messages)+1)
	if opts.System != "" {
		msgs = append(msgs, openAIChatMessage{Role: "system", Content: opts.System})
	}
	for _, m := range messages {
		msgs = append(msgs, openAIChatMessage{Role: string(m.Role), Content: m.Content})
	}

	return openAIChatRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
		Stream:      stream,
	}
}

// Compile-time assertions.
var _ Adapter = (*OpenAIAdapter)(nil)
var _ Embedder = (*OpenAIAdapter)(nil)
