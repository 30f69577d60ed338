package llm

import (
	"errors"
	"fmt"
)

// Error taxonomy for the orchestration layer. Adapter-level failures are
// recovered locally by the Router's fallback walk; only chain exhaustion
// propagates to callers.
var (
	// ErrNoRoute indicates a task kind with no configured route. This is a
	// configuration bug, not a runtime condition.
	ErrNoRoute = errors.New("no route configured")

	// ErrBackendUnavailable indicates a liveness probe failed. The Router
	// treats it as a skip, never a hard failure.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrAllBackendsFailed indicates every candidate on a route was
	// skipped or failed.
	ErrAllBackendsFailed = errors.New("all backends failed")

	// ErrMalformedOutput indicates a pipeline service could not extract
	// its expected structure from model text. Never auto-retried.
	ErrMalformedOutput = errors.New("malformed model output")
)

// BackendError wraps a transport, HTTP, or decode failure from one backend
// call. The Router logs it and continues to the next route candidate.
type BackendError struct {
	Adapter string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Adapter, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
