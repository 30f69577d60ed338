package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/pkg/types"
)

func TestSummarizeItemParsesJSON(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{
		{text: `{"title":"Release Notes","summary":"Version 2 shipped.","category":"tech","tags":["release"]}`},
	}}
	s := NewSummarizer(inv)

	sum, err := s.SummarizeItem(context.Background(), types.NewsItem{ID: "n1", Title: "Release notes", Content: "...", Language: "en"})
	if err != nil {
		t.Fatalf("SummarizeItem failed: %v", err)
	}
	if sum.Title != "Release Notes" || sum.Category != "tech" {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if inv.lastKind != llm.TaskSummarization {
		t.Errorf("expected summarization task kind, got %q", inv.lastKind)
	}
}

// Items not in English take the translation route.
func TestSummarizeItemForeignLanguageUsesTranslationRoute(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{
		{text: `{"title":"Release Notes","summary":"Version 2 shipped.","category":"tech","tags":[]}`},
	}}
	s := NewSummarizer(inv)

	if _, err := s.SummarizeItem(context.Background(), types.NewsItem{ID: "n1", Title: "Notas de lanzamiento", Content: "...", Language: "es"}); err != nil {
		t.Fatalf("SummarizeItem failed: %v", err)
	}
	if inv.lastKind != llm.TaskTranslation {
		t.Errorf("expected translation task kind, got %q", inv.lastKind)
	}
}

// Malformed output must degrade to a fallback record, never fail the item.
func TestSummarizeItemDegradesOnMalformedOutput(t *testing.T) {
	raw := "Here is a loose prose summary with no JSON at all."
	inv := &fakeInvoker{responses: []invokeResponse{{text: raw}}}
	s := NewSummarizer(inv)

	sum, err := s.SummarizeItem(context.Background(), types.NewsItem{ID: "n1", Title: "Original Title", Content: "..."})
	if err != nil {
		t.Fatalf("expected degraded record, got error: %v", err)
	}
	if sum.Title != "Original Title" {
		t.Errorf("fallback title should be the original, got %q", sum.Title)
	}
	if sum.Summary != raw {
		t.Errorf("fallback summary should be the raw text, got %q", sum.Summary)
	}
	if sum.Category != "tech" {
		t.Errorf("fallback category should be 'tech', got %q", sum.Category)
	}
	if sum.Tags != nil {
		t.Errorf("fallback tags should be nil, got %v", sum.Tags)
	}
}

func TestSummarizeItemRouteErrorPropagates(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{{err: llm.ErrAllBackendsFailed}}}
	s := NewSummarizer(inv)

	_, err := s.SummarizeItem(context.Background(), types.NewsItem{ID: "n1", Title: "t", Content: "c"})
	if !errors.Is(err, llm.ErrAllBackendsFailed) {
		t.Errorf("expected ErrAllBackendsFailed, got %v", err)
	}
}

// A per-item route failure must not stop the batch.
func TestSummarizeBatchContinuesPastFailures(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{
		{text: `{"title":"First","summary":"s","category":"tech","tags":[]}`},
		{err: llm.ErrAllBackendsFailed},
		{text: `{"title":"Third","summary":"s","category":"tech","tags":[]}`},
	}}
	s := NewSummarizer(inv)

	items := []types.NewsItem{
		{ID: "n1", Title: "a", Content: "x"},
		{ID: "n2", Title: "b", Content: "y"},
		{ID: "n3", Title: "c", Content: "z"},
	}
	results := s.SummarizeBatch(context.Background(), items)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Summary.Title != "First" {
		t.Errorf("item 1 wrong: %+v", results[0])
	}
	if results[1].Err == nil || results[1].Summary != nil {
		t.Errorf("item 2 should have failed: %+v", results[1])
	}
	if results[2].Err != nil || results[2].Summary.Title != "Third" {
		t.Errorf("item 3 wrong: %+v", results[2])
	}
}
