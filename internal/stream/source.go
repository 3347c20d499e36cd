// Package stream owns the upstream connection lifecycle: one long-lived SSE
// stream per language, message decoding, and language-prefix filtering.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/r3labs/sse/v2"
)

// DefaultEndpoint is the fixed upstream recent-changes stream.
const DefaultEndpoint = "https://stream.wikimedia.org/v2/stream/recentchange"

// Single stream messages can carry large page payloads; the scanner buffer
// must accommodate them or the transport drops the connection.
const sseMaxBufferSize = 1 << 20

// Source abstracts the streaming transport behind the connector.
//
// Subscribe blocks, delivering raw message payloads to handler until ctx is
// canceled. Reconnection after transport drops is the source's own
// responsibility; the connector never retries.
type Source interface {
	Subscribe(ctx context.Context, handler func(data []byte)) error
}

// SourceFactory builds one Source per upstream connection.
type SourceFactory func() Source

// SSESource is the server-sent-events transport for the Wikimedia stream.
//
// The underlying client reconnects with backoff on its own; transport drops
// surface only as a best-effort log line through OnDisconnect.
type SSESource struct {
	endpoint string
	logger   *slog.Logger
}

// SSEOption mutates SSE source configuration.
type SSEOption func(*SSESource)

// WithSSELogger injects the logger used for transport state changes.
func WithSSELogger(logger *slog.Logger) SSEOption {
	return func(source *SSESource) {
		if logger != nil {
			source.logger = logger
		}
	}
}

// NewSSESource creates an SSE source for the given endpoint. An empty
// endpoint falls back to DefaultEndpoint.
func NewSSESource(endpoint string, options ...SSEOption) *SSESource {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	source := &SSESource{
		endpoint: endpoint,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(source)
	}

	return source
}

// Subscribe opens the stream and forwards raw payloads until ctx cancellation.
//
// A fresh client is built per call so every language owns an independent
// connection.
func (s *SSESource) Subscribe(ctx context.Context, handler func(data []byte)) error {
	if handler == nil {
		return fmt.Errorf("subscribe sse source: nil handler")
	}

	client := sse.NewClient(s.endpoint, sse.ClientMaxBufferSize(sseMaxBufferSize))
	client.OnConnect(func(*sse.Client) {
		s.logger.InfoContext(ctx, "connected to change stream", "endpoint", s.endpoint)
	})
	client.OnDisconnect(func(*sse.Client) {
		s.logger.WarnContext(ctx, "change stream disconnected, transport will reconnect", "endpoint", s.endpoint)
	})

	if err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		handler(msg.Data)
	}); err != nil {
		return fmt.Errorf("subscribe sse source %s: %w", s.endpoint, err)
	}

	return nil
}
