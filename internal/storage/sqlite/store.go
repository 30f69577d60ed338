// Package sqlite provides a SQLite implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore opens a SQLite database, configures WAL mode, and creates the schema.
// The dsn is either a file path or ":memory:".
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new article.
func (s *Store) Create(ctx context.Context, article *types.Article) error {
	if article == nil {
		return storage.ErrInvalidInput
	}
	if article.ID == "" {
		return fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}
	if article.Slug == "" {
		return fmt.Errorf("%w: article slug is required", storage.ErrInvalidInput)
	}
	if article.Title == "" {
		return fmt.Errorf("%w: article title is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now
	if article.Status == "" {
		article.Status = types.ArticleStatusDraft
	}

	tags, err := marshalTags(article.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (id, slug, title, content, summary, category, tags, status, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.Slug, article.Title, article.Content, article.Summary,
		article.Category, tags, string(article.Status), article.Model,
		article.CreatedAt, article.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert article: %w", err)
	}
	return nil
}

// Get retrieves an article by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Article, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}
	return s.queryOne(ctx, `WHERE id = ?`, id)
}

// GetBySlug retrieves an article by its URL slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*types.Article, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: article slug is required", storage.ErrInvalidInput)
	}
	return s.queryOne(ctx, `WHERE slug = ?`, slug)
}

// Update modifies an existing article.
func (s *Store) Update(ctx context.Context, article *types.Article) error {
	if article == nil || article.ID == "" {
		return fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}

	article.UpdatedAt = time.Now().UTC()
	tags, err := marshalTags(article.Tags)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET slug = ?, title = ?, content = ?, summary = ?, category = ?,
		    tags = ?, status = ?, model = ?, updated_at = ?
		WHERE id = ?`,
		article.Slug, article.Title, article.Content, article.Summary,
		article.Category, tags, string(article.Status), article.Model,
		article.UpdatedAt, article.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update article: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves articles with pagination and filtering, newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Article], error) {
	opts.Normalize()

	var conds []string
	var args []any
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.Category != "" {
		conds = append(conds, "(category = ? OR category LIKE ?)")
		args = append(args, opts.Category, opts.Category+"/%")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count articles: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, slug, title, content, summary, category, tags, status, model, created_at, updated_at
		FROM articles %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, where)
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Article]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Search performs a case-insensitive LIKE search over title, summary, and content.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]types.Article, error) {
	if strings.TrimSpace(query) == "" {
		return []types.Article{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, title, content, summary, category, tags, status, model, created_at, updated_at
		FROM articles
		WHERE title LIKE ? ESCAPE '\'
		   OR summary LIKE ? ESCAPE '\'
		   OR content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to search articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanArticles(rows)
}

// vectorSearchMaxCandidates caps how many embeddings are loaded into memory
// during a vector search. Candidates are selected newest first, so recent
// articles are always considered. For larger datasets, use the PostgreSQL
// backend with pgvector for indexed ANN search.
const vectorSearchMaxCandidates = 10_000

// VectorSearch ranks articles by cosine similarity to the query embedding.
// Embeddings are loaded into Go memory and scored; there is no vector index
// in SQLite.
func (s *Store) VectorSearch(ctx context.Context, query []float32, limit int) ([]types.Article, error) {
	if len(query) == 0 {
		return []types.Article{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.article_id, e.embedding, e.dimension
		FROM article_embeddings e
		JOIN articles a ON a.id = e.article_id
		ORDER BY a.created_at DESC
		LIMIT ?`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type scored struct {
		articleID string
		score     float64
	}
	var candidates []scored

	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			continue
		}
		embedding, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{id, cosineSimilarity(query, embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating embeddings: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	var articles []types.Article
	for _, c := range candidates {
		article, err := s.Get(ctx, c.articleID)
		if err != nil {
			continue
		}
		articles = append(articles, *article)
	}
	return articles, nil
}

// StoreEmbedding saves (or replaces) the embedding vector for an article.
// The vector is serialized as a little-endian float32 BLOB.
func (s *Store) StoreEmbedding(ctx context.Context, articleID string, embedding []float32, model string) error {
	if articleID == "" {
		return fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if model == "" {
		return fmt.Errorf("%w: model is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_embeddings (article_id, embedding, dimension, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(article_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP`,
		articleID, serializeEmbedding(embedding), len(embedding), model)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store embedding: %w", err)
	}
	return nil
}

// SlugExists reports whether any article already uses the slug.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: failed to check slug: %w", err)
	}
	return n > 0, nil
}

func (s *Store) queryOne(ctx context.Context, where string, arg any) (*types.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, content, summary, category, tags, status, model, created_at, updated_at
		FROM articles `+where, arg)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get article: %w", err)
	}
	return article, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*types.Article, error) {
	var a types.Article
	var summary, category, tags, model sql.NullString
	var status string

	err := row.Scan(&a.ID, &a.Slug, &a.Title, &a.Content, &summary, &category,
		&tags, &status, &model, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Summary = summary.String
	a.Category = category.String
	a.Model = model.String
	a.Status = types.ArticleStatus(status)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal tags: %w", err)
		}
	}
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]types.Article, error) {
	articles := []types.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating articles: %w", err)
	}
	return articles, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to marshal tags: %w", err)
	}
	return string(b), nil
}

// escapeLike escapes LIKE wildcards in user-supplied search input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
