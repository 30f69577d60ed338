package llm

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quillforge/quill/pkg/types"
)

// DefaultCallTimeout bounds one non-streaming invocation across the whole
// fallback walk, so a stuck backend cannot hang a worker indefinitely.
// Streaming invocations are bounded by consumption instead.
const DefaultCallTimeout = 5 * time.Minute

// Router holds the adapter registry and the table mapping task kinds to an
// ordered fallback list of adapter names. It executes calls by walking that
// list: skip unregistered and unavailable adapters, log and continue past
// call failures, return the first success. No retries, no weighting, no
// cool-down — validation of the produced text is the caller's job.
//
// One Router is constructed at startup and shared by all request and worker
// goroutines; both maps are guarded for concurrent read/write.
type Router struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	routes      map[TaskKind][]string
	callTimeout time.Duration
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// CallTimeout bounds one non-streaming invocation (default: 5m).
	CallTimeout time.Duration
}

// NewRouter creates an empty Router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Router{
		adapters:    make(map[string]Adapter),
		routes:      make(map[TaskKind][]string),
		callTimeout: cfg.CallTimeout,
	}
}

// Register adds an adapter to the registry under its own name. Registering
// the same name again replaces the previous adapter.
func (r *Router) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// SetRoute installs the ordered fallback list for a task kind, replacing any
// previous route. Names may reference adapters that are not (yet)
// registered; the walk skips them.
func (r *Router) SetRoute(kind TaskKind, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[kind] = append([]string(nil), names...)
}

// Route returns a copy of the route for a task kind, or nil when none is
// configured.
func (r *Router) Route(kind TaskKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.routes[kind]...)
}

// AdapterStatus describes one registered adapter for display.
type AdapterStatus struct {
	Name      string          `json:"name"`
	Category  BackendCategory `json:"category"`
	Available bool            `json:"available"`
}

// Status probes every registered adapter and reports its availability.
func (r *Router) Status(ctx context.Context) []AdapterStatus {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	statuses := make([]AdapterStatus, 0, len(adapters))
	for _, a := range adapters {
		statuses = append(statuses, AdapterStatus{
			Name:      a.Name(),
			Category:  a.Category(),
			Available: a.IsAvailable(ctx),
		})
	}
	return statuses
}

// Invoke walks the route for kind and performs a blocking single-shot
// completion on the first adapter that succeeds. The returned Result carries
// the name of the adapter used and its estimated cost.
func (r *Router) Invoke(ctx context.Context, kind TaskKind, prompt string, opts Options) (*Result, error) {
	return r.invoke(ctx, kind, func(ctx context.Context, a Adapter) (*Result, error) {
		return a.Generate(ctx, prompt, opts)
	})
}

// InvokeChat is Invoke for multi-turn message lists.
func (r *Router) InvokeChat(ctx context.Context, kind TaskKind, messages []types.ChatMessage, opts Options) (*Result, error) {
	return r.invoke(ctx, kind, func(ctx context.Context, a Adapter) (*Result, error) {
		return a.GenerateChat(ctx, messages, opts)
	})
}

// InvokeStream selects the first routable adapter for kind and returns its
// open chunk stream together with the adapter name. Once a stream is handed
// out there is no further fallback: transport failures arrive as the
// terminal chunk.
func (r *Router) InvokeStream(ctx context.Context, kind TaskKind, prompt string, opts Options) (<-chan StreamChunk, string, error) {
	a, err := r.pick(ctx, kind)
	if err != nil {
		return nil, "", err
	}
	return a.GenerateStream(ctx, prompt, opts), a.Name(), nil
}

// InvokeChatStream is InvokeStream for multi-turn message lists.
func (r *Router) InvokeChatStream(ctx context.Context, kind TaskKind, messages []types.ChatMessage, opts Options) (<-chan StreamChunk, string, error) {
	a, err := r.pick(ctx, kind)
	if err != nil {
		return nil, "", err
	}
	return a.GenerateChatStream(ctx, messages, opts), a.Name(), nil
}

// GenerateWithModel bypasses routing and calls one named adapter directly.
// Administrative use ("test this model"); no fallback of any kind.
func (r *Router) GenerateWithModel(ctx context.Context, name, prompt string, opts Options) (*Result, error) {
	a, ok := r.adapter(name)
	if !ok {
		return nil, fmt.Errorf("%w: adapter %q not registered", ErrBackendUnavailable, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	result, err := a.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, &BackendError{Adapter: name, Err: err}
	}
	result.Adapter = name
	result.Cost = a.EstimateCost(result.InputTokens, result.OutputTokens)
	return result, nil
}

// Embed walks the embedding route and returns the vector from the first
// adapter that both supports embeddings and succeeds, plus the adapter name.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, string, error) {
	names := r.Route(TaskEmbedding)
	if len(names) == 0 {
		return nil, "", fmt.Errorf("%w for task %q", ErrNoRoute, TaskEmbedding)
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	for _, name := range names {
		a, ok := r.adapter(name)
		if !ok {
			log.Printf("router: embedding: adapter %q not registered, skipping", name)
			continue
		}
		emb, ok := a.(Embedder)
		if !ok {
			log.Printf("router: embedding: adapter %q has no embedding capability, skipping", name)
			continue
		}
		if !a.IsAvailable(ctx) {
			log.Printf("router: embedding: adapter %q unavailable, skipping", name)
			continue
		}

		vec, err := emb.Embed(ctx, text)
		if err != nil {
			log.Printf("router: embedding: adapter %q failed: %v", name, err)
			continue
		}
		return vec, name, nil
	}
	return nil, "", fmt.Errorf("%w: task %q", ErrAllBackendsFailed, TaskEmbedding)
}

// invoke runs the ordered-fallback walk for one non-streaming call shape.
func (r *Router) invoke(ctx context.Context, kind TaskKind, call func(context.Context, Adapter) (*Result, error)) (*Result, error) {
	names := r.Route(kind)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w for task %q", ErrNoRoute, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	for _, name := range names {
		a, ok := r.adapter(name)
		if !ok {
			log.Printf("router: task %s: adapter %q not registered, skipping", kind, name)
			continue
		}
		if !a.IsAvailable(ctx) {
			log.Printf("router: task %s: adapter %q unavailable, skipping", kind, name)
			continue
		}

		result, err := call(ctx, a)
		if err != nil {
			// First success wins; a failure just moves the walk on.
			backendErr := &BackendError{Adapter: name, Err: err}
			log.Printf("router: task %s: %v, trying next candidate", kind, backendErr)
			continue
		}

		result.Adapter = name
		result.Cost = a.EstimateCost(result.InputTokens, result.OutputTokens)
		return result, nil
	}

	return nil, fmt.Errorf("%w: task %q", ErrAllBackendsFailed, kind)
}

// pick returns the first registered, available adapter on the route for
// kind. Used by the streaming call shapes, which cannot fall back after the
// exchange starts.
func (r *Router) pick(ctx context.Context, kind TaskKind) (Adapter, error) {
	names := r.Route(kind)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w for task %q", ErrNoRoute, kind)
	}

	for _, name := range names {
		a, ok := r.adapter(name)
		if !ok {
			log.Printf("router: task %s: adapter %q not registered, skipping", kind, name)
			continue
		}
		if !a.IsAvailable(ctx) {
			log.Printf("router: task %s: adapter %q unavailable, skipping", kind, name)
			continue
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: task %q", ErrAllBackendsFailed, kind)
}

// adapter looks up one adapter by name under the read lock.
func (r *Router) adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}
