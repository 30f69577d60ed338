package handlers

import (
	"context"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/pipeline"
	"github.com/quillforge/quill/pkg/types"
)

// Service dependencies are declared as interfaces so tests can substitute
// scripted fakes for the real pipeline services.

// GeneratorService writes and persists articles.
type GeneratorService interface {
	GenerateArticle(ctx context.Context, topic string) (*types.Article, error)
}

// ClassifierService places content in the category tree.
type ClassifierService interface {
	Classify(ctx context.Context, content string) (*pipeline.Classification, error)
}

// SummarizerService summarizes ingested news items.
type SummarizerService interface {
	SummarizeItem(ctx context.Context, item types.NewsItem) (*pipeline.Summary, error)
	SummarizeBatch(ctx context.Context, items []types.NewsItem) []pipeline.BatchItem
}

// ResearchService answers questions against merged sources.
type ResearchService interface {
	Run(ctx context.Context, req pipeline.ResearchRequest) (*pipeline.ResearchResult, error)
}

// ChatService opens streaming chat exchanges.
type ChatService interface {
	Stream(ctx context.Context, articleID string, messages []types.ChatMessage) (<-chan llm.StreamChunk, string, error)
}

// ModelRouter is the router surface the model-management endpoints use.
type ModelRouter interface {
	Status(ctx context.Context) []llm.AdapterStatus
	GenerateWithModel(ctx context.Context, name, prompt string, opts llm.Options) (*llm.Result, error)
}

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// GenerateRequest is the body for POST /api/generate.
type GenerateRequest struct {
	Topic string `json:"topic"`
}

// ClassifyRequest is the body for POST /api/classify.
type ClassifyRequest struct {
	Content string `json:"content"`
}

// SummarizeRequest is the body for POST /api/summarize.
type SummarizeRequest struct {
	Items []types.NewsItem `json:"items"`
}

// SummarizeItemResult is one entry of the summarize response.
type SummarizeItemResult struct {
	ItemID  string            `json:"item_id"`
	Summary *pipeline.Summary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ResearchRequest is the body for POST /api/research.
type ResearchRequest struct {
	Question      string               `json:"question"`
	SearchResults []types.SearchResult `json:"search_results,omitempty"`
	Persist       bool                 `json:"persist,omitempty"`
}

// ModelTestRequest is the body for POST /api/models/{name}/test.
type ModelTestRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

// ModelTestResponse reports the outcome of a single-adapter test call.
type ModelTestResponse struct {
	Success bool    `json:"success"`
	Text    string  `json:"text,omitempty"`
	Cost    float64 `json:"cost"`
	Error   string  `json:"error,omitempty"`
}
