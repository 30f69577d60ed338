// Package pipeline implements the content-processing services built on top
// of the LLM router: classification, summarization, article generation,
// contextual chat, and research. Each service builds a task-specific prompt,
// invokes the router for its task kind, and converts the raw model output
// into a typed, validated result.
package pipeline

import (
	"context"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/pkg/types"
)

// Invoker is the slice of the router that pipeline services depend on.
// Services never touch adapters directly.
type Invoker interface {
	Invoke(ctx context.Context, kind llm.TaskKind, prompt string, opts llm.Options) (*llm.Result, error)
	InvokeChat(ctx context.Context, kind llm.TaskKind, messages []types.ChatMessage, opts llm.Options) (*llm.Result, error)
	InvokeChatStream(ctx context.Context, kind llm.TaskKind, messages []types.ChatMessage, opts llm.Options) (<-chan llm.StreamChunk, string, error)
	Embed(ctx context.Context, text string) ([]float32, string, error)
}

var _ Invoker = (*llm.Router)(nil)
