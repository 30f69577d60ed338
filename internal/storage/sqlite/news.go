package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// CreateNewsItem inserts a new ingested item.
func (s *Store) CreateNewsItem(ctx context.Context, item *types.NewsItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: news item ID is required", storage.ErrInvalidInput)
	}
	if item.Title == "" && item.Content == "" {
		return fmt.Errorf("%w: news item needs a title or content", storage.ErrInvalidInput)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	tags, err := marshalTags(item.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO news_items (id, title, content, source_url, language, summary, category, tags, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Content, item.SourceURL, item.Language,
		item.Summary, item.Category, tags, item.PublishedAt, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert news item: %w", err)
	}
	return nil
}

// UpdateNewsItem replaces an item's summary fields after processing.
func (s *Store) UpdateNewsItem(ctx context.Context, item *types.NewsItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: news item ID is required", storage.ErrInvalidInput)
	}

	tags, err := marshalTags(item.Tags)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE news_items
		SET title = ?, summary = ?, category = ?, tags = ?
		WHERE id = ?`,
		item.Title, item.Summary, item.Category, tags, item.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update news item: %w", err)
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

// ListRecentNewsItems returns the newest items, most recent first.
func (s *Store) ListRecentNewsItems(ctx context.Context, limit int) ([]types.NewsItem, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, source_url, language, summary, category, tags, published_at, created_at
		FROM news_items
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list news items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []types.NewsItem{}
	for rows.Next() {
		var item types.NewsItem
		var sourceURL, language, summary, category, tags sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &sourceURL, &language,
			&summary, &category, &tags, &publishedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan news item: %w", err)
		}
		item.SourceURL = sourceURL.String
		item.Language = language.String
		item.Summary = summary.String
		item.Category = category.String
		item.PublishedAt = publishedAt.Time
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &item.Tags); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal tags: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating news items: %w", err)
	}
	return items, nil
}

// CreateCategory inserts a category node.
func (s *Store) CreateCategory(ctx context.Context, category *types.Category) error {
	if category == nil || category.Path == "" {
		return fmt.Errorf("%w: category path is required", storage.ErrInvalidInput)
	}
	if category.Name == "" {
		category.Name = category.Path[strings.LastIndex(category.Path, "/")+1:]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, path, parent_path)
		VALUES (?, ?, ?, ?)`,
		category.ID, category.Name, category.Path, category.ParentPath)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert category: %w", err)
	}
	return nil
}

// CategoryTree returns every category ordered by path, so children always
// follow their parent.
func (s *Store) CategoryTree(ctx context.Context) ([]types.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, parent_path
		FROM categories
		ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	categories := []types.Category{}
	for rows.Next() {
		var c types.Category
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Path, &parent); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan category: %w", err)
		}
		c.ParentPath = parent.String
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating categories: %w", err)
	}
	return categories, nil
}

// FindCategoryByPath looks up a single node by its full path.
func (s *Store) FindCategoryByPath(ctx context.Context, path string) (*types.Category, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: category path is required", storage.ErrInvalidInput)
	}

	var c types.Category
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, parent_path
		FROM categories
		WHERE path = ?`, path).Scan(&c.ID, &c.Name, &c.Path, &parent)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find category: %w", err)
	}
	c.ParentPath = parent.String
	return &c, nil
}
