package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// classifyTemperature keeps classification output deterministic-ish.
const classifyTemperature = 0.2

// Classification is the typed result of classifying one piece of content.
type Classification struct {
	PrimaryCategory   string   `json:"primaryCategory"`
	SecondaryCategory string   `json:"secondaryCategory,omitempty"`
	SuggestedTags     []string `json:"suggestedTags,omitempty"`
	NewCategory       string   `json:"newCategory,omitempty"`
}

// Classifier assigns content a place in the live category tree.
type Classifier struct {
	invoker    Invoker
	categories storage.CategoryStore
}

// NewClassifier creates a classifier backed by the given router slice and
// category store.
func NewClassifier(invoker Invoker, categories storage.CategoryStore) *Classifier {
	return &Classifier{invoker: invoker, categories: categories}
}

// Classify asks the model to place content into the category tree.
// Returns llm.ErrMalformedOutput (wrapped) when no JSON object can be
// extracted from the model's reply; callers leave the content uncategorized
// and continue.
func (c *Classifier) Classify(ctx context.Context, content string) (*Classification, error) {
	tree, err := c.categories.CategoryTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("classifier: failed to load category tree: %w", err)
	}

	prompt := classifyPrompt(renderTree(tree), content)
	result, err := c.invoker.Invoke(ctx, llm.TaskClassification, prompt, llm.Options{
		Temperature: classifyTemperature,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}

	var cls Classification
	if err := llm.DecodeObject(result.Text, &cls); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return &cls, nil
}

// renderTree formats categories as indented paths, children under parents.
// The slice is expected in path order (as CategoryTree returns it).
func renderTree(tree []types.Category) string {
	if len(tree) == 0 {
		return "(no categories defined yet)"
	}
	var b strings.Builder
	for _, c := range tree {
		depth := strings.Count(c.Path, "/")
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(c.Path)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
