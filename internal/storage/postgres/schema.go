// Package postgres provides a PostgreSQL implementation of the storage interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. All statements are idempotent (IF NOT EXISTS) so the schema can
// be applied on every startup.
const Schema = `
-- Articles table: generated and ingested long-form documents
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    summary TEXT,
    category TEXT,
    tags JSONB,
    status TEXT NOT NULL DEFAULT 'draft',
    model TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);

-- Embeddings table: one vector per article.
-- The BYTEA column always holds the raw little-endian float32 vector; the
-- pgvector column is added by MigrationPgvector when the extension exists.
CREATE TABLE IF NOT EXISTS article_embeddings (
    article_id TEXT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
    embedding BYTEA NOT NULL,
    dimension INTEGER NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- News items table: ingested feed/web items awaiting summarization
CREATE TABLE IF NOT EXISTS news_items (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source_url TEXT,
    language TEXT,
    summary TEXT,
    category TEXT,
    tags JSONB,
    published_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_news_items_created_at ON news_items(created_at);

-- Categories table: the classification tree
CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    parent_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_path);
`

// MigrationPgvector adds pgvector support to the embeddings table. Only
// applied when the vector extension is available. Safe to run multiple times.
const MigrationPgvector = `
-- Add embedding_vec column if it doesn't already exist.
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'article_embeddings' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE article_embeddings ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

-- Create ivfflat index for approximate nearest-neighbor vector search.
-- Lists = 100 is a good default for up to ~1M vectors.
-- ivfflat requires at least one row to exist; guarded with a DO block.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_article_embeddings_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM article_embeddings LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_article_embeddings_vec_cosine ON article_embeddings USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
