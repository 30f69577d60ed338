package llm

import "context"

const (
	// streamBufferSize is the capacity of every stream chunk channel. The
	// consumer paces the producer through this buffer.
	streamBufferSize = 16

	// maxStreamLineBytes bounds one streamed line/event payload.
	maxStreamLineBytes = 1024 * 1024
)

// sendChunk delivers one chunk unless the consumer has gone away. A false
// return means ctx was cancelled and the producer must stop.
func sendChunk(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
