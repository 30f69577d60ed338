// Package types defines the core domain types shared across the Quill
// content-processing backend: articles, ingested news items, the category
// tree, and chat messages.
package types

import "time"

// ArticleStatus represents the publication state of an article.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
	ArticleStatusArchived  ArticleStatus = "archived"
)

// Article is a generated or ingested long-form document.
type Article struct {
	ID        string        `json:"id"`
	Slug      string        `json:"slug"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Summary   string        `json:"summary,omitempty"`
	Category  string        `json:"category,omitempty"` // slash-separated path, e.g. "tech/ai"
	Tags      []string      `json:"tags,omitempty"`
	Status    ArticleStatus `json:"status"`
	Model     string        `json:"model,omitempty"` // adapter that produced the content
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewsItem is one ingested feed or web item awaiting summarization.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SourceURL   string    `json:"source_url,omitempty"`
	Language    string    `json:"language,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Category is one node of the category tree. Path is the slash-separated
// location of the node ("tech/ai/llms"); ParentPath is empty for roots.
type Category struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	ParentPath string `json:"parent_path,omitempty"`
}

// SearchResult is one external web-search hit handed to the Research service.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
