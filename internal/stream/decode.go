package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

// Dialect names one of the four provider-specific extraction contracts this
// package understands.
type Dialect string

const (
	OpenAI    Dialect = "openai"
	Anthropic Dialect = "anthropic"
	Google    Dialect = "google"
	Ollama    Dialect = "ollama"
)

// ChunkBufferSize bounds the channel Decode returns, giving the
// back-pressure the concurrency model requires: a slow consumer blocks the
// decoder, which blocks the transport reader.
const ChunkBufferSize = 64

// Decode turns byteStream, framed per dialect, into a channel of
// core.StreamChunk. The channel is closed once the transport is exhausted,
// the dialect's end sentinel is seen, or ctx is cancelled; in all three
// cases the caller observes channel closure and should treat a missing
// terminal (FinishReason-bearing) chunk as core.KindUnexpectedEnd.
func Decode(ctx context.Context, byteStream io.Reader, dialect Dialect) (<-chan core.StreamChunk, error) {
	out := make(chan core.StreamChunk, ChunkBufferSize)

	var run func() error
	switch dialect {
	case OpenAI:
		run = func() error { return decodeOpenAI(ctx, byteStream, out) }
	case Anthropic:
		run = func() error { return decodeAnthropic(ctx, byteStream, out) }
	case Google:
		run = func() error { return decodeGoogle(ctx, byteStream, out) }
	case Ollama:
		run = func() error { return decodeOllama(ctx, byteStream, out) }
	default:
		return nil, fmt.Errorf("stream: unknown dialect %q", dialect)
	}

	go func() {
		defer close(out)
		if err := run(); err != nil {
			select {
			case out <- core.StreamChunk{Err: fmt.Errorf("stream: %s decode: %w", dialect, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// emit sends chunk on out unless ctx is cancelled first, so a decoder
// goroutine never blocks forever past cancellation.
func emit(ctx context.Context, out chan<- core.StreamChunk, chunk core.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
