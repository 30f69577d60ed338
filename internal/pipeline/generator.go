package pipeline

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

const (
	// generateTemperature trades determinism for richer prose.
	generateTemperature = 0.9

	// Soft quality thresholds. Violations are logged, never fatal.
	minArticleRunes    = 800
	minSectionHeadings = 2

	// maxSummaryRunes caps the derived article summary.
	maxSummaryRunes = 300

	// maxTags caps how many tags are attached to a generated article.
	maxTags = 5
)

// Generator produces full articles from a topic and persists them.
type Generator struct {
	invoker  Invoker
	articles storage.ArticleStore
}

// NewGenerator creates a generator backed by the given router slice and
// article store.
func NewGenerator(invoker Invoker, articles storage.ArticleStore) *Generator {
	return &Generator{invoker: invoker, articles: articles}
}

// GenerateArticle writes, post-processes, and stores a new draft article
// about the topic. The returned article is already persisted. After a
// successful create the article body is embedded and the vector stored;
// embedding failures are logged and never fail the call.
func (g *Generator) GenerateArticle(ctx context.Context, topic string) (*types.Article, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("generator: %w: topic is required", storage.ErrInvalidInput)
	}

	result, err := g.invoker.Invoke(ctx, llm.TaskGeneration, generatePrompt(topic), llm.Options{
		Temperature: generateTemperature,
	})
	if err != nil {
		return nil, err
	}

	body := trimPreamble(result.Text)
	if body == "" {
		return nil, fmt.Errorf("generator: %w: no markdown heading in output", llm.ErrMalformedOutput)
	}
	checkQuality(topic, body)

	slug, err := uniqueSlug(ctx, g.articles, normalizeSlug(topic))
	if err != nil {
		return nil, err
	}

	article := &types.Article{
		ID:      uuid.NewString(),
		Slug:    slug,
		Title:   extractTitle(body, topic),
		Content: body,
		Summary: extractSummary(body),
		Tags:    extractTags(topic, body),
		Status:  types.ArticleStatusDraft,
		Model:   result.Adapter,
	}
	if err := g.articles.Create(ctx, article); err != nil {
		return nil, fmt.Errorf("generator: failed to store article: %w", err)
	}

	g.embedArticle(ctx, article)
	return article, nil
}

// embedArticle stores a vector for the article body, best effort.
func (g *Generator) embedArticle(ctx context.Context, article *types.Article) {
	vec, model, err := g.invoker.Embed(ctx, article.Summary+"\n\n"+article.Content)
	if err != nil {
		log.Printf("generator: embedding skipped for %s: %v", article.Slug, err)
		return
	}
	if err := g.articles.StoreEmbedding(ctx, article.ID, vec, model); err != nil {
		log.Printf("generator: failed to store embedding for %s: %v", article.Slug, err)
	}
}

// trimPreamble drops any chatter the model emitted before the first markdown
// heading ("Sure, here's your article:" and the like). Returns "" when the
// output contains no heading at all.
func trimPreamble(text string) string {
	idx := -1
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			idx = offset
			break
		}
		offset += len(line)
	}
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx:])
}

// checkQuality logs when a generated article looks thin. Soft check only.
func checkQuality(topic, body string) {
	if n := len([]rune(body)); n < minArticleRunes {
		log.Printf("generator: article for %q is short (%d runes)", topic, n)
	}
	headings := 0
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			headings++
		}
	}
	if headings < minSectionHeadings {
		log.Printf("generator: article for %q has only %d section headings", topic, headings)
	}
}

// extractTitle returns the text of the first heading, falling back to the
// topic when the heading is empty.
func extractTitle(body, topic string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title != "" {
				return title
			}
			break
		}
	}
	return topic
}

// extractSummary derives a short summary from the "## Overview" section when
// present, otherwise from the first body paragraph. Capped at maxSummaryRunes.
func extractSummary(body string) string {
	section := overviewSection(body)
	if section == "" {
		section = body
	}

	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") {
			continue
		}
		return capRunes(strings.Join(strings.Fields(para), " "), maxSummaryRunes)
	}
	return ""
}

// overviewSection returns the text between "## Overview" and the next "## "
// heading, or "" when no overview section exists.
func overviewSection(body string) string {
	lower := strings.ToLower(body)
	start := strings.Index(lower, "## overview")
	if start < 0 {
		return ""
	}
	rest := body[start:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return ""
	}
	if next := strings.Index(rest, "\n## "); next >= 0 {
		rest = rest[:next]
	}
	return rest
}

// glossaryTermRe matches a capitalized word immediately followed by a
// parenthetical gloss, e.g. "RAG (retrieval-augmented generation)".
var glossaryTermRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9-]*)\s+\(`)

// extractTags builds up to maxTags tags from the topic's significant words
// plus glossary-style terms found in the body.
func extractTags(topic, body string) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || len(tag) < 3 || seen[tag] || len(tags) >= maxTags {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, word := range strings.Fields(normalizeWords(topic)) {
		add(word)
	}
	for _, m := range glossaryTermRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return tags
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeWords lowercases and strips punctuation, keeping word boundaries.
func normalizeWords(s string) string {
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(strings.ToLower(s), " "))
}

// normalizeSlug converts free text to a lowercase hyphenated slug. Returns ""
// when nothing usable survives (e.g. a topic written entirely in a non-Latin
// script).
func normalizeSlug(s string) string {
	words := strings.Fields(normalizeWords(s))
	return strings.Join(words, "-")
}

// uniqueSlug disambiguates base against existing articles with an
// incrementing numeric suffix (-2, -3, ...). An empty base falls back to a
// timestamp slug.
func uniqueSlug(ctx context.Context, articles storage.ArticleStore, base string) (string, error) {
	if base == "" {
		base = "article-" + time.Now().UTC().Format("20060102-150405")
	}

	slug := base
	for i := 2; ; i++ {
		exists, err := articles.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", slug, err)
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// capRunes truncates s to at most n runes.
func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
