package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// invokeResponse is one scripted reply from the fake invoker.
type invokeResponse struct {
	text    string
	adapter string
	err     error
}

// fakeInvoker is a scriptable stand-in for the router. Responses are consumed
// in order; when the queue is empty the last response repeats.
type fakeInvoker struct {
	responses []invokeResponse

	chunks    []llm.StreamChunk
	streamErr error

	embedVec []float32
	embedErr error

	lastKind     llm.TaskKind
	lastPrompt   string
	lastOpts     llm.Options
	lastMessages []types.ChatMessage
	invokeCalls  int
}

func (f *fakeInvoker) next() invokeResponse {
	if len(f.responses) == 0 {
		return invokeResponse{err: errors.New("fakeInvoker: no scripted response")}
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r
}

func (f *fakeInvoker) Invoke(ctx context.Context, kind llm.TaskKind, prompt string, opts llm.Options) (*llm.Result, error) {
	f.invokeCalls++
	f.lastKind = kind
	f.lastPrompt = prompt
	f.lastOpts = opts
	r := f.next()
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Result{Text: r.text, Adapter: r.adapter}, nil
}

func (f *fakeInvoker) InvokeChat(ctx context.Context, kind llm.TaskKind, messages []types.ChatMessage, opts llm.Options) (*llm.Result, error) {
	f.lastKind = kind
	f.lastMessages = messages
	f.lastOpts = opts
	r := f.next()
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Result{Text: r.text, Adapter: r.adapter}, nil
}

func (f *fakeInvoker) InvokeChatStream(ctx context.Context, kind llm.TaskKind, messages []types.ChatMessage, opts llm.Options) (<-chan llm.StreamChunk, string, error) {
	f.lastKind = kind
	f.lastMessages = messages
	f.lastOpts = opts
	if f.streamErr != nil {
		return nil, "", f.streamErr
	}
	ch := make(chan llm.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, "fake", nil
}

func (f *fakeInvoker) Embed(ctx context.Context, text string) ([]float32, string, error) {
	if f.embedErr != nil {
		return nil, "", f.embedErr
	}
	return f.embedVec, "fake-embed", nil
}

var _ Invoker = (*fakeInvoker)(nil)

// fakeArticleStore keeps articles in memory, keyed by ID.
type fakeArticleStore struct {
	articles      map[string]*types.Article
	embeddings    map[string][]float32
	vectorResults []types.Article
	vectorErr     error
	searchResults []types.Article
	searchErr     error
	slugCheckErr  error
}

func newFakeArticleStore() *fakeArticleStore {
	return &fakeArticleStore{
		articles:   map[string]*types.Article{},
		embeddings: map[string][]float32{},
	}
}

func (f *fakeArticleStore) Create(ctx context.Context, a *types.Article) error {
	f.articles[a.ID] = a
	return nil
}

func (f *fakeArticleStore) Get(ctx context.Context, id string) (*types.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeArticleStore) GetBySlug(ctx context.Context, slug string) (*types.Article, error) {
	for _, a := range f.articles {
		if a.Slug == slug {
			return a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeArticleStore) Update(ctx context.Context, a *types.Article) error {
	if _, ok := f.articles[a.ID]; !ok {
		return storage.ErrNotFound
	}
	f.articles[a.ID] = a
	return nil
}

func (f *fakeArticleStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Article], error) {
	return &storage.PaginatedResult[types.Article]{}, nil
}

func (f *fakeArticleStore) Search(ctx context.Context, query string, limit int) ([]types.Article, error) {
	return f.searchResults, f.searchErr
}

func (f *fakeArticleStore) VectorSearch(ctx context.Context, query []float32, limit int) ([]types.Article, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorResults, nil
}

func (f *fakeArticleStore) StoreEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	f.embeddings[id] = vec
	return nil
}

func (f *fakeArticleStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	if f.slugCheckErr != nil {
		return false, f.slugCheckErr
	}
	_, err := f.GetBySlug(ctx, slug)
	return err == nil, nil
}

var _ storage.ArticleStore = (*fakeArticleStore)(nil)

// fakeCategoryStore serves a fixed tree.
type fakeCategoryStore struct {
	tree    []types.Category
	treeErr error
}

func (f *fakeCategoryStore) CreateCategory(ctx context.Context, c *types.Category) error {
	f.tree = append(f.tree, *c)
	return nil
}

func (f *fakeCategoryStore) CategoryTree(ctx context.Context) ([]types.Category, error) {
	return f.tree, f.treeErr
}

func (f *fakeCategoryStore) FindCategoryByPath(ctx context.Context, path string) (*types.Category, error) {
	for i := range f.tree {
		if f.tree[i].Path == path {
			return &f.tree[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

var _ storage.CategoryStore = (*fakeCategoryStore)(nil)

// sampleArticleMarkdown returns a body that passes the soft quality check.
func sampleArticleMarkdown(title string) string {
	body := fmt.Sprintf("# %s\n\n## Overview\n\nThis article covers RAG (retrieval-augmented generation) in depth. It explains how retrieval grounds model output.\n\n## Background\n\n", title)
	for i := 0; i < 40; i++ {
		body += "Retrieval systems pair dense vectors with approximate search indexes. "
	}
	body += "\n\n## Practice\n\nDeployment notes follow.\n"
	return body
}
