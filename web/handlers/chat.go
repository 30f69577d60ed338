package handlers

import (
	"context"
	"log"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quillforge/quill/pkg/types"
)

// ChatHandlers bridges the streaming chat service onto a websocket.
type ChatHandlers struct {
	chat ChatService
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(chat ChatService) *ChatHandlers {
	return &ChatHandlers{chat: chat}
}

// chatWSRequest is one inbound exchange request on the socket.
type chatWSRequest struct {
	ArticleID string              `json:"article_id,omitempty"`
	Messages  []types.ChatMessage `json:"messages"`
}

// chatWSFrame is one outbound frame. Exactly one of the fields is set:
// Delta for text fragments, Done for normal completion, Error on failure.
type chatWSFrame struct {
	Delta   string `json:"delta,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
	Adapter string `json:"adapter,omitempty"`
}

// ServeChat handles GET /ws/chat. Each JSON message on the socket is one
// chat exchange; the reply streams back as delta frames ending in a done or
// error frame. Closing the socket cancels the in-flight generation.
func (h *ChatHandlers) ServeChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("chat ws: accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server shutting down")

	// Cancelled when the handler exits, which stops any in-flight stream
	// producer still publishing chunks.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req chatWSRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}

		if err := h.serveExchange(ctx, conn, req); err != nil {
			return
		}
	}
}

// serveExchange runs one request/stream cycle. A non-nil return means the
// socket is unusable and the loop should end.
func (h *ChatHandlers) serveExchange(ctx context.Context, conn *websocket.Conn, req chatWSRequest) error {
	ch, adapter, err := h.chat.Stream(ctx, req.ArticleID, req.Messages)
	if err != nil {
		return wsjson.Write(ctx, conn, chatWSFrame{Error: err.Error()})
	}

	for chunk := range ch {
		var frame chatWSFrame
		switch {
		case chunk.Err != nil:
			frame = chatWSFrame{Error: chunk.Err.Error()}
		case chunk.Done:
			frame = chatWSFrame{Done: true, Adapter: adapter}
		default:
			frame = chatWSFrame{Delta: chunk.Text}
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			// Client went away; ctx cancellation stops the producer, but
			// drain remaining chunks so the channel's sender isn't blocked.
			go func() {
				for range ch {
				}
			}()
			return err
		}
	}
	return nil
}
