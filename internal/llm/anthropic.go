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

// AnthropicAdapter wraps the Anthropic Messages API. The API rejects a
// "system" message role, so system text (from the System option or from
// system-role messages) is always lifted into the request's top-level system
// field. Metered cloud backend.
type AnthropicAdapter struct {
	name           string
	cfg            AnthropicConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// AnthropicConfig holds Anthropic adapter configuration.
type AnthropicConfig struct {
	// Name is the registry name of the adapter (default: "anthropic").
	Name string

	// APIKey authenticates requests. An empty key makes the adapter
	// report itself unavailable.
	APIKey string

	// Model selects the model (default: claude-3-5-haiku-20241022).
	Model string

	// BaseURL overrides the API endpoint (default: https://api.anthropic.com).
	BaseURL string

	// Timeout bounds one blocking round-trip (default: 5m).
	Timeout time.Duration
}

// anthropicMessagesRequest is the request body for POST /v1/messages.
type anthropicMessagesRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse is the response body from POST /v1/messages.
type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicStreamEvent is one SSE data payload of a streamed message. The
// type field discriminates deltas from lifecycle events.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicAdapter creates an Anthropic adapter with the given
// configuration, applying defaults for unset fields.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &AnthropicAdapter{
		name: cfg.Name,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(cfg.Name),
	}
}

// Name returns the adapter's registry name.
func (a *AnthropicAdapter) Name() string { return a.name }

// Category reports the backend category.
func (a *AnthropicAdapter) Category() BackendCategory { return CategoryCloud }

// Generate performs one blocking single-shot completion.
func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return a.GenerateChat(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, opts)
}

// GenerateStream starts a streamed single-shot completion.
func (a *AnthropicAdapter) GenerateStream(ctx context.Context, prompt string, opts Options) <-chan StreamChunk {
	return a.GenerateChatStream(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, opts)
}

// GenerateChat performs one blocking multi-turn completion.
func (a *AnthropicAdapter) GenerateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	result, err := a.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return a.generateChat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("anthropic circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Result), nil
}

func (a *AnthropicAdapter) generateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error) {
	jsonData, err := json.Marshal(a.messagesRequest(messages, opts, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := a.newRequest(ctx, jsonData)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned empty content")
	}

	return &Result{
		Text:         respData.Content[0].Text,
		InputTokens:  respData.Usage.InputTokens,
		OutputTokens: respData.Usage.OutputTokens,
	}, nil
}

// GenerateChatStream starts a streamed multi-turn completion. The exchange
// runs on a background goroutine reading SSE "data: " events until
// message_stop.
func (a *AnthropicAdapter) GenerateChatStream(ctx context.Context, messages []types.ChatMessage, opts Options) <-chan StreamChunk {
	ch := make(chan StreamChunk, streamBufferSize)

	go func() {
		defer close(ch)

		jsonData, err := json.Marshal(a.messagesRequest(messages, opts, true))
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to marshal request: %w", err)})
			return
		}

		req, err := a.newRequest(ctx, jsonData)
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: err})
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		streamClient := &http.Client{Transport: a.client.Transport}
		resp, err := streamClient.Do(req)
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to send request: %w", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body))})
			return
		}

		a.parseSSE(ctx, resp.Body, ch)
	}()

	return ch
}

// parseSSE reads Messages API SSE events and publishes text fragments.
// content_block_delta events carry text; message_stop terminates the stream.
func (a *AnthropicAdapter) parseSSE(ctx context.Context, body io.Reader, ch chan<- StreamChunk) {
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

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("failed to decode stream event: %w", err)})
			return
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				if !sendChunk(ctx, ch, StreamChunk{Text: event.Delta.Text}) {
					return
				}
			}
		case "message_stop":
			sendChunk(ctx, ch, StreamChunk{Done: true})
			return
		case "error":
			sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("anthropic stream error: %s", event.Error.Message)})
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sendChunk(ctx, ch, StreamChunk{Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	// Stream ended without message_stop; treat as normal completion.
	sendChunk(ctx, ch, StreamChunk{Done: true})
}

// IsAvailable reports whether a credential is configured. No network call.
func (a *AnthropicAdapter) IsAvailable(ctx context.Context) bool {
	return a.cfg.APIKey != ""
}

// EstimateCost prices a call from the Anthropic pricing table.
func (a *AnthropicAdapter) EstimateCost(inputTokens, outputTokens int) float64 {
	return estimate(anthropicRates, a.cfg.Model, inputTokens, outputTokens)
}

// messagesRequest builds a Messages API request body. System text — whether
// from the System option or embedded system-role turns — is concatenated into
// the top-level system field and excluded from the messages list.
func (a *AnthropicAdapter) messagesRequest(messages []types.ChatMessage, opts Options, stream bool) anthropicMessagesRequest {
	opts = opts.normalized()

	var system []string
	if opts.System != "" {
		system = append(system, opts.System)
	}

	msgs := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	return anthropicMessagesRequest{
		Model:         a.cfg.Model,
		MaxTokens:     opts.MaxTokens,
		System:        strings.Join(system, "\n\n"),
		Messages:      msgs,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.Stop,
		Stream:        stream,
	}
}

// newRequest builds an authenticated /v1/messages request.
func (a *AnthropicAdapter) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

// Compile-time assertion.
var _ Adapter = (*AnthropicAdapter)(nil)
