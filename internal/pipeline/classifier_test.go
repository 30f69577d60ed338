package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/pkg/types"
)

func testCategories() *fakeCategoryStore {
	return &fakeCategoryStore{tree: []types.Category{
		{ID: "c1", Name: "Science", Path: "science"},
		{ID: "c2", Name: "Tech", Path: "tech"},
		{ID: "c3", Name: "AI", Path: "tech/ai", ParentPath: "tech"},
	}}
}

func TestClassifyParsesFencedJSON(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{
		{text: "```json\n{\"primaryCategory\":\"tech/ai\",\"suggestedTags\":[\"llm\"]}\n```", adapter: "ollama"},
	}}
	c := NewClassifier(inv, testCategories())

	cls, err := c.Classify(context.Background(), "An article about transformers.")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.PrimaryCategory != "tech/ai" {
		t.Errorf("expected primary 'tech/ai', got %q", cls.PrimaryCategory)
	}
	if len(cls.SuggestedTags) != 1 || cls.SuggestedTags[0] != "llm" {
		t.Errorf("unexpected tags: %v", cls.SuggestedTags)
	}

	if inv.lastKind != llm.TaskClassification {
		t.Errorf("expected classification task kind, got %q", inv.lastKind)
	}
	if inv.lastOpts.Temperature != classifyTemperature {
		t.Errorf("expected temperature %v, got %v", classifyTemperature, inv.lastOpts.Temperature)
	}
}

func TestClassifyPromptCarriesIndentedTree(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{{text: `{"primaryCategory":"tech"}`}}}
	c := NewClassifier(inv, testCategories())

	if _, err := c.Classify(context.Background(), "content"); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !strings.Contains(inv.lastPrompt, "tech\n  tech/ai") {
		t.Errorf("prompt missing indented tree:\n%s", inv.lastPrompt)
	}
}

func TestClassifyMalformedOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no JSON span", "I think this belongs under technology."},
		{"unparseable span", `{"primaryCategory": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{responses: []invokeResponse{{text: tt.text}}}
			c := NewClassifier(inv, testCategories())

			_, err := c.Classify(context.Background(), "content")
			if !errors.Is(err, llm.ErrMalformedOutput) {
				t.Errorf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestClassifyRouteErrorPropagates(t *testing.T) {
	inv := &fakeInvoker{responses: []invokeResponse{{err: llm.ErrAllBackendsFailed}}}
	c := NewClassifier(inv, testCategories())

	_, err := c.Classify(context.Background(), "content")
	if !errors.Is(err, llm.ErrAllBackendsFailed) {
		t.Errorf("expected ErrAllBackendsFailed, got %v", err)
	}
}

func TestRenderTreeEmpty(t *testing.T) {
	if got := renderTree(nil); !strings.Contains(got, "no categories") {
		t.Errorf("unexpected empty-tree rendering: %q", got)
	}
}
