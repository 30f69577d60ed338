package pipeline

import (
	"context"
	"fmt"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/pkg/types"
)

// maxArticleContextRunes bounds how much article text is stuffed into the
// chat system preamble.
const maxArticleContextRunes = 6000

// Chat answers multi-turn questions, optionally grounded in one article.
type Chat struct {
	invoker  Invoker
	articles storage.ArticleStore
}

// NewChat creates a chat service backed by the given router slice and
// article store.
func NewChat(invoker Invoker, articles storage.ArticleStore) *Chat {
	return &Chat{invoker: invoker, articles: articles}
}

// Stream opens a streaming chat exchange. When articleID is non-empty the
// system preamble carries that article's (truncated) text; otherwise a
// generic persona is used. Returns the open chunk stream and the name of the
// adapter serving it.
func (c *Chat) Stream(ctx context.Context, articleID string, messages []types.ChatMessage) (<-chan llm.StreamChunk, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("chat: %w: at least one message is required", storage.ErrInvalidInput)
	}

	system := genericPersona
	if articleID != "" {
		article, err := c.articles.Get(ctx, articleID)
		if err != nil {
			return nil, "", fmt.Errorf("chat: failed to load article %s: %w", articleID, err)
		}
		system = fmt.Sprintf(
			"You are Quill, a writing assistant. The user is asking about the article %q. Article text:\n\n%s",
			article.Title, capRunes(article.Content, maxArticleContextRunes))
	}

	return c.invoker.InvokeChatStream(ctx, llm.TaskChat, messages, llm.Options{System: system})
}
