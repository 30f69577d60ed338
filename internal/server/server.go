// Package server provides HTTP server initialization and lifecycle management
// for the Quill API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/quillforge/quill/internal/config"
	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/pipeline"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/web/handlers"
)

// Start builds the full handler chain and begins serving. It returns the
// actual listen address (useful for testing with port 0). The server shuts
// down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, router *llm.Router) (string, error) {
	generator := pipeline.NewGenerator(router, store)
	classifier := pipeline.NewClassifier(router, store)
	summarizer := pipeline.NewSummarizer(router)
	research := pipeline.NewResearch(router, store)
	chat := pipeline.NewChat(router, store)

	api := handlers.NewAPIHandlers(store, router, generator, classifier, summarizer, research)
	chatHandlers := handlers.NewChatHandlers(chat)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", api.Generate)
	mux.HandleFunc("POST /api/classify", api.Classify)
	mux.HandleFunc("POST /api/summarize", api.Summarize)
	mux.HandleFunc("POST /api/research", api.Research)
	mux.HandleFunc("GET /api/articles", api.ListArticles)
	mux.HandleFunc("GET /api/articles/search", api.SearchArticles)
	mux.HandleFunc("GET /api/articles/{slug}", api.GetArticle)
	mux.HandleFunc("GET /api/models", api.ListModels)
	mux.HandleFunc("POST /api/models/{name}/test", api.TestModel)
	mux.HandleFunc("GET /ws/chat", chatHandlers.ServeChat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Rate limit the API surface (10 req/sec sustained, burst of 20).
	rateLimiter := handlers.NewRateLimiter(10.0, 20)
	handler := handlers.SecurityHeadersMiddleware(
		handlers.RateLimitMiddleware(mux, rateLimiter))

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return "", fmt.Errorf("server: failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler: handler,
		// Long generations hold the response open; only bound header reads.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("server: listening on %s", listener.Addr())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}
