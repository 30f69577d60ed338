// Package storage provides composable storage interfaces for the Quill
// content backend.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Two backends exist:
// SQLite (zero-dependency local deployments) and PostgreSQL (with optional
// pgvector acceleration for semantic search).
package storage

import (
	"context"

	"github.com/quillforge/quill/pkg/types"
)

// ArticleStore provides CRUD, search, and embedding operations for articles.
type ArticleStore interface {
	// Create inserts a new article.
	// Returns ErrInvalidInput if required fields are missing.
	Create(ctx context.Context, article *types.Article) error

	// Get retrieves an article by ID.
	// Returns ErrNotFound if the article doesn't exist.
	Get(ctx context.Context, id string) (*types.Article, error)

	// GetBySlug retrieves an article by its URL slug.
	// Returns ErrNotFound if no article has the slug.
	GetBySlug(ctx context.Context, slug string) (*types.Article, error)

	// Update modifies an existing article.
	// Returns ErrNotFound if the article doesn't exist.
	Update(ctx context.Context, article *types.Article) error

	// List retrieves articles with pagination and filtering,
	// newest first.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Article], error)

	// Search performs text search over title, summary, and content.
	Search(ctx context.Context, query string, limit int) ([]types.Article, error)

	// VectorSearch ranks articles by semantic similarity to the query
	// embedding. Returns ErrVectorSearchUnavailable when the backend has no
	// vector support; callers degrade to Search.
	VectorSearch(ctx context.Context, query []float32, limit int) ([]types.Article, error)

	// StoreEmbedding saves (or replaces) the embedding vector for an article.
	StoreEmbedding(ctx context.Context, articleID string, embedding []float32, model string) error

	// SlugExists reports whether any article already uses the slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// NewsItemStore persists ingested feed items and their summaries.
type NewsItemStore interface {
	// CreateNewsItem inserts a new item.
	CreateNewsItem(ctx context.Context, item *types.NewsItem) error

	// UpdateNewsItem replaces an item's summary fields after processing.
	// Returns ErrNotFound if the item doesn't exist.
	UpdateNewsItem(ctx context.Context, item *types.NewsItem) error

	// ListRecentNewsItems returns the newest items, most recent first.
	ListRecentNewsItems(ctx context.Context, limit int) ([]types.NewsItem, error)
}

// CategoryStore manages the category tree used by the classifier.
type CategoryStore interface {
	// CreateCategory inserts a category node. The parent path must already
	// exist unless the node is a root.
	CreateCategory(ctx context.Context, category *types.Category) error

	// CategoryTree returns every category ordered by path, so children
	// always follow their parent.
	CategoryTree(ctx context.Context) ([]types.Category, error)

	// FindCategoryByPath looks up a single node by its full path.
	// Returns ErrNotFound if the path doesn't exist.
	FindCategoryByPath(ctx context.Context, path string) (*types.Category, error)
}

// Store is the full persistence surface wired into the server.
type Store interface {
	ArticleStore
	NewsItemStore
	CategoryStore

	// Close releases the underlying database handle.
	Close() error
}
