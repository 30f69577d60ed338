package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/pkg/types"
)

type fakeChat struct {
	chunks  []llm.StreamChunk
	err     error
	adapter string
}

func (f *fakeChat) Stream(ctx context.Context, articleID string, messages []types.ChatMessage) (<-chan llm.StreamChunk, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	ch := make(chan llm.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, f.adapter, nil
}

func httpMuxFor(h *ChatHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat", h.ServeChat)
	return mux
}

func TestChatWebSocketStreamsFrames(t *testing.T) {
	chat := &fakeChat{
		chunks:  []llm.StreamChunk{{Text: "He"}, {Text: "llo"}, {Done: true}},
		adapter: "ollama",
	}
	h := NewChatHandlers(chat)
	srv := httptest.NewServer(httpMuxFor(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, chatWSRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	}))

	var got string
	for {
		var frame chatWSFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		if frame.Error != "" {
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
		if frame.Done {
			assert.Equal(t, "ollama", frame.Adapter)
			break
		}
		got += frame.Delta
	}
	assert.Equal(t, "Hello", got)
}

func TestChatWebSocketErrorFrame(t *testing.T) {
	chat := &fakeChat{err: llm.ErrAllBackendsFailed}
	h := NewChatHandlers(chat)
	srv := httptest.NewServer(httpMuxFor(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, chatWSRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	}))

	var frame chatWSFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Contains(t, frame.Error, "all backends failed")
}
