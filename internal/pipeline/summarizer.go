package pipeline

import (
	"context"
	"log"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/pkg/types"
)

// Summary is the typed result of summarizing one news item.
type Summary struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// BatchItem pairs one input item with its outcome. Summary is nil only when
// Err is set (the route itself failed for this item).
type BatchItem struct {
	Item    types.NewsItem
	Summary *Summary
	Err     error
}

// Summarizer turns ingested news items into titled English summaries.
type Summarizer struct {
	invoker Invoker
}

// NewSummarizer creates a summarizer backed by the given router slice.
func NewSummarizer(invoker Invoker) *Summarizer {
	return &Summarizer{invoker: invoker}
}

// SummarizeItem summarizes a single item. Malformed model output never fails
// the call: it degrades to a record carrying the original title and the raw
// model text so ingestion keeps moving. Only route failures return an error.
func (s *Summarizer) SummarizeItem(ctx context.Context, item types.NewsItem) (*Summary, error) {
	// Foreign-language items go through the translation route, which prefers
	// backends that translate well.
	kind := llm.TaskSummarization
	if item.Language != "" && item.Language != "en" {
		kind = llm.TaskTranslation
	}
	result, err := s.invoker.Invoke(ctx, kind, summarizePrompt(item), llm.Options{
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	var sum Summary
	if err := llm.DecodeObject(result.Text, &sum); err != nil {
		log.Printf("summarizer: malformed output for item %s, using fallback record: %v", item.ID, err)
		return &Summary{
			Title:    item.Title,
			Summary:  result.Text,
			Category: "tech",
			Tags:     nil,
		}, nil
	}
	return &sum, nil
}

// SummarizeBatch processes items in order. A per-item route failure is
// recorded and skipped; the batch always runs to completion.
func (s *Summarizer) SummarizeBatch(ctx context.Context, items []types.NewsItem) []BatchItem {
	results := make([]BatchItem, 0, len(items))
	for _, item := range items {
		sum, err := s.SummarizeItem(ctx, item)
		if err != nil {
			log.Printf("summarizer: skipping item %s: %v", item.ID, err)
		}
		results = append(results, BatchItem{Item: item, Summary: sum, Err: err})
	}
	return results
}
