// Package llm provides the model orchestration layer: a uniform Adapter
// interface over heterogeneous generation backends (local Ollama, cloud
// OpenAI and Anthropic), and a Router that maps abstract task kinds to an
// ordered fallback list of adapters.
package llm

import (
	"context"

	"github.com/quillforge/quill/pkg/types"
)

// BackendCategory classifies an adapter for display and cost policy.
// Routing logic never branches on it.
type BackendCategory string

const (
	CategoryLocal BackendCategory = "local"
	CategoryCloud BackendCategory = "cloud"
)

// TaskKind is the abstract purpose of a model call, independent of the
// backend that serves it.
type TaskKind string

const (
	TaskGeneration     TaskKind = "generation"
	TaskSummarization  TaskKind = "summarization"
	TaskClassification TaskKind = "classification"
	TaskChat           TaskKind = "chat"
	TaskTranslation    TaskKind = "translation"
	TaskEmbedding      TaskKind = "embedding"
)

// Options holds per-call generation parameters. Zero values mean "use the
// documented default": MaxTokens 4096, Temperature 0.7, TopP 1.0.
type Options struct {
	System      string   // system preamble, merged into the backend's system field
	MaxTokens   int      // maximum output length in tokens
	Temperature float64  // sampling temperature
	TopP        float64  // nucleus sampling value
	Stop        []string // stop sequences
}

// Default generation parameters applied by Options.normalized.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// normalized returns a copy of o with absent (zero) values replaced by
// defaults. A Temperature of exactly 0 is treated as absent; callers that
// want near-deterministic output pass a small positive value.
func (o Options) normalized() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP == 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// Result is the outcome of one non-streaming generation call.
type Result struct {
	Text         string  // produced text
	Adapter      string  // name of the adapter that produced it (set by the Router)
	InputTokens  int     // prompt tokens reported by the backend (0 if unknown)
	OutputTokens int     // completion tokens reported by the backend (0 if unknown)
	Cost         float64 // estimated cost in USD; always 0 for local backends
}

// StreamChunk is one increment of a streamed generation. Exactly one terminal
// chunk (Done or Err set) ends every stream, after which the channel closes.
type StreamChunk struct {
	Text string // text fragment; empty on terminal chunks
	Done bool   // terminal marker: the stream completed normally
	Err  error  // terminal marker: the stream failed
}

// Adapter is the uniform capability wrapping one concrete generation backend.
// Implementations must be safe for concurrent use; they keep no per-request
// state beyond private connection pooling.
type Adapter interface {
	// Name returns the unique registry name of this adapter.
	Name() string

	// Category reports whether the backend is local or cloud. Display and
	// cost policy only.
	Category() BackendCategory

	// Generate performs one blocking single-shot completion.
	Generate(ctx context.Context, prompt string, opts Options) (*Result, error)

	// GenerateStream starts a streamed completion and returns immediately.
	// The network exchange runs on a background goroutine; transport and
	// decode failures arrive as the terminal chunk. Cancelling ctx stops
	// the producer and releases the connection.
	GenerateStream(ctx context.Context, prompt string, opts Options) <-chan StreamChunk

	// GenerateChat performs one blocking multi-turn completion. A
	// system-role message is merged into the backend's native system
	// field, never sent as a normal turn to backends that reject it.
	GenerateChat(ctx context.Context, messages []types.ChatMessage, opts Options) (*Result, error)

	// GenerateChatStream is the streaming variant of GenerateChat.
	GenerateChatStream(ctx context.Context, messages []types.ChatMessage, opts Options) <-chan StreamChunk

	// IsAvailable is a cheap liveness probe. Local backends check that the
	// endpoint is reachable and the exact model is loaded; cloud backends
	// check that a credential is present without any network call.
	IsAvailable(ctx context.Context) bool

	// EstimateCost returns the estimated USD cost of a call with the given
	// token counts. Pure function of the per-backend pricing table; local
	// backends always return 0.
	EstimateCost(inputTokens, outputTokens int) float64
}

// Embedder turns text into a fixed-length vector. Implemented by adapters
// whose backend exposes an embeddings endpoint (Ollama, OpenAI).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
