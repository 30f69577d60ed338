// Package handlers provides HTTP handlers and middleware for the Quill API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/quillforge/quill/internal/llm"
	"github.com/quillforge/quill/internal/pipeline"
	"github.com/quillforge/quill/internal/storage"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	store      storage.Store
	router     ModelRouter
	generator  GeneratorService
	classifier ClassifierService
	summarizer SummarizerService
	research   ResearchService
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(store storage.Store, router ModelRouter, generator GeneratorService,
	classifier ClassifierService, summarizer SummarizerService, research ResearchService) *APIHandlers {
	return &APIHandlers{
		store:      store,
		router:     router,
		generator:  generator,
		classifier: classifier,
		summarizer: summarizer,
		research:   research,
	}
}

// Generate handles POST /api/generate: writes and stores a new draft article.
func (h *APIHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Topic == "" {
		respondError(w, http.StatusBadRequest, "topic is required", nil)
		return
	}

	article, err := h.generator.GenerateArticle(r.Context(), req.Topic)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrAllBackendsFailed), errors.Is(err, llm.ErrNoRoute):
			respondError(w, http.StatusServiceUnavailable, "no backend could serve the request", err)
		case errors.Is(err, llm.ErrMalformedOutput):
			respondError(w, http.StatusUnprocessableEntity, "model produced unusable output", err)
		default:
			respondError(w, http.StatusInternalServerError, "generation failed", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, article)
}

// Classify handles POST /api/classify.
func (h *APIHandlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required", nil)
		return
	}

	cls, err := h.classifier.Classify(r.Context(), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrMalformedOutput):
			respondError(w, http.StatusUnprocessableEntity, "classification output unusable", err)
		case errors.Is(err, llm.ErrAllBackendsFailed), errors.Is(err, llm.ErrNoRoute):
			respondError(w, http.StatusServiceUnavailable, "no backend could serve the request", err)
		default:
			respondError(w, http.StatusInternalServerError, "classification failed", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, cls)
}

// Summarize handles POST /api/summarize: processes a batch of news items.
// Per-item failures are reported inline; the endpoint itself only fails on a
// bad request.
func (h *APIHandlers) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "at least one item is required", nil)
		return
	}

	batch := h.summarizer.SummarizeBatch(r.Context(), req.Items)
	results := make([]SummarizeItemResult, 0, len(batch))
	for _, b := range batch {
		res := SummarizeItemResult{ItemID: b.Item.ID, Summary: b.Summary}
		if b.Err != nil {
			res.Error = b.Err.Error()
		}
		results = append(results, res)
	}
	respondJSON(w, http.StatusOK, results)
}

// Research handles POST /api/research.
func (h *APIHandlers) Research(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required", nil)
		return
	}

	result, err := h.research.Run(r.Context(), pipeline.ResearchRequest{
		Question:      req.Question,
		SearchResults: req.SearchResults,
		Persist:       req.Persist,
	})
	if err != nil {
		if errors.Is(err, llm.ErrAllBackendsFailed) || errors.Is(err, llm.ErrNoRoute) {
			respondError(w, http.StatusServiceUnavailable, "no backend could serve the request", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "research failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListArticles handles GET /api/articles.
func (h *APIHandlers) ListArticles(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 20),
		Status:   r.URL.Query().Get("status"),
		Category: r.URL.Query().Get("category"),
	}

	result, err := h.store.List(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list articles", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetArticle handles GET /api/articles/{slug}.
func (h *APIHandlers) GetArticle(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		respondError(w, http.StatusBadRequest, "slug is required", nil)
		return
	}

	article, err := h.store.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load article", err)
		return
	}
	respondJSON(w, http.StatusOK, article)
}

// SearchArticles handles GET /api/articles/search?q=...
func (h *APIHandlers) SearchArticles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required", nil)
		return
	}

	articles, err := h.store.Search(r.Context(), query, queryInt(r, "limit", 10))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, articles)
}

// ListModels handles GET /api/models: probes every registered adapter.
func (h *APIHandlers) ListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.router.Status(r.Context()))
}

// TestModel handles POST /api/models/{name}/test: a single direct call that
// bypasses routing, used to verify one backend's configuration.
func (h *APIHandlers) TestModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "model name is required", nil)
		return
	}

	// The body is optional; a missing or invalid one just means default prompt.
	var req ModelTestRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	prompt := req.Prompt
	if prompt == "" {
		prompt = "Reply with the single word: ok"
	}

	result, err := h.router.GenerateWithModel(r.Context(), name, prompt, llm.Options{MaxTokens: 16})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, llm.ErrBackendUnavailable) {
			status = http.StatusNotFound
		}
		respondJSON(w, status, ModelTestResponse{Success: false, Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, ModelTestResponse{Success: true, Text: result.Text, Cost: result.Cost})
}

// queryInt reads an integer query parameter, falling back on absence or junk.
func queryInt(r *http.Request, key string, defaultValue int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}
