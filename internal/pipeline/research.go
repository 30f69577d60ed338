package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// relatedArticleLimit bounds how many stored articles feed the context block.
const relatedArticleLimit = 5

// ResearchRequest is one research question plus its externally gathered
// search results.
type ResearchRequest struct {
	Question      string
	SearchResults []types.SearchResult

	// Persist stores the answer as a draft article when true.
	Persist bool
}

// ResearchResult carries the synthesized answer and everything that fed it.
type ResearchResult struct {
	Answer  string
	Adapter string
	Related []types.Article

	// Article is the persisted draft, nil unless Persist was requested.
	Article *types.Article
}

// Research merges external search results with related stored articles and
// asks the model for a synthesized answer.
type Research struct {
	invoker  Invoker
	articles storage.ArticleStore
}

// NewResearch creates a research service backed by the given router slice
// and article store.
func NewResearch(invoker Invoker, articles storage.ArticleStore) *Research {
	return &Research{invoker: invoker, articles: articles}
}

// Run answers the question. Related stored articles are found by vector
// search when embeddings are available, degrading to text search otherwise.
func (r *Research) Run(ctx context.Context, req ResearchRequest) (*ResearchResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("research: %w: question is required", storage.ErrInvalidInput)
	}

	related := r.findRelated(ctx, req.Question)

	result, err := r.invoker.Invoke(ctx, llm.TaskGeneration,
		researchPrompt(req.Question, contextBlock(req.SearchResults, related)), llm.Options{})
	if err != nil {
		return nil, err
	}

	out := &ResearchResult{
		Answer:  result.Text,
		Adapter: result.Adapter,
		Related: related,
	}

	if req.Persist {
		article, err := r.persist(ctx, req.Question, result)
		if err != nil {
			return nil, err
		}
		out.Article = article
	}
	return out, nil
}

// findRelated looks up stored articles relevant to the question. Every
// failure path degrades to text search; a research answer never fails just
// because retrieval did.
func (r *Research) findRelated(ctx context.Context, question string) []types.Article {
	if vec, _, err := r.invoker.Embed(ctx, question); err == nil {
		related, err := r.articles.VectorSearch(ctx, vec, relatedArticleLimit)
		if err == nil {
			return related
		}
		log.Printf("research: vector search unavailable, using text search: %v", err)
	} else {
		log.Printf("research: embedding failed, using text search: %v", err)
	}

	related, err := r.articles.Search(ctx, question, relatedArticleLimit)
	if err != nil {
		log.Printf("research: text search failed, continuing without related articles: %v", err)
		return nil
	}
	return related
}

// persist stores the answer as a draft article with a research- slug.
func (r *Research) persist(ctx context.Context, question string, result *llm.Result) (*types.Article, error) {
	slug, err := uniqueSlug(ctx, r.articles, "research-"+normalizeSlug(question))
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}

	article := &types.Article{
		ID:       uuid.NewString(),
		Slug:     slug,
		Title:    question,
		Content:  result.Text,
		Summary:  capRunes(strings.Join(strings.Fields(result.Text), " "), maxSummaryRunes),
		Category: "research",
		Status:   types.ArticleStatusDraft,
		Model:    result.Adapter,
	}
	if err := r.articles.Create(ctx, article); err != nil {
		return nil, fmt.Errorf("research: failed to store article: %w", err)
	}
	return article, nil
}

// contextBlock renders external search results and related stored articles
// as one numbered source list for the prompt.
func contextBlock(external []types.SearchResult, related []types.Article) string {
	if len(external) == 0 && len(related) == 0 {
		return "(no sources available; answer from general knowledge and say that no sources were found)"
	}

	var b strings.Builder
	n := 1
	for _, sr := range external {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", n, sr.Title, sr.URL, sr.Snippet)
		n++
	}
	for _, a := range related {
		summary := a.Summary
		if summary == "" {
			summary = capRunes(a.Content, maxSummaryRunes)
		}
		fmt.Fprintf(&b, "[%d] %s (stored article)\n%s\n\n", n, a.Title, summary)
		n++
	}
	return strings.TrimSpace(b.String())
}
