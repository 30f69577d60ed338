package llm

import (
	"github.com/quillforge/quill/internal/config"
)

// NewRouterFromConfig builds the process-wide Router: one adapter per
// configured backend, registered under its default name, plus the supplied
// route table. Cloud adapters without a credential are still registered —
// their liveness probe reports them unavailable and the fallback walk skips
// them.
func NewRouterFromConfig(cfg config.LLMConfig, routes map[string][]string) *Router {
	router := NewRouter(RouterConfig{CallTimeout: cfg.CallTimeout})

	router.Register(NewOllamaAdapter(OllamaConfig{
		BaseURL:    cfg.OllamaURL,
		Model:      cfg.OllamaModel,
		EmbedModel: cfg.OllamaEmbedModel,
	}))
	router.Register(NewOpenAIAdapter(OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
	}))
	router.Register(NewAnthropicAdapter(AnthropicConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	}))

	for kind, names := range routes {
		router.SetRoute(TaskKind(kind), names)
	}
	return router
}

// NewEmbedder creates a standalone embedding client for components that
// embed outside the Router (for example backfill jobs). The Ollama embedding
// model is separate from the generation model.
func NewEmbedder(cfg config.LLMConfig) Embedder {
	return NewOllamaAdapter(OllamaConfig{
		Name:       "ollama-embed",
		BaseURL:    cfg.OllamaURL,
		EmbedModel: cfg.OllamaEmbedModel,
	})
}
