package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"wikistream/internal/metrics"
	"wikistream/pkg/wikistream"
)

// PublishFunc receives every decoded event relevant to the connection's
// language. It must not block: downstream fan-out applies its own bounded
// queues.
type PublishFunc func(event wikistream.ChangeEvent)

// Option mutates connector configuration.
type Option func(*Connector)

// WithLogger injects the connector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(connector *Connector) {
		if logger != nil {
			connector.logger = logger
		}
	}
}

// WithSourceFactory overrides how upstream transports are built, used by the
// app wiring and by tests.
func WithSourceFactory(factory SourceFactory) Option {
	return func(connector *Connector) {
		if factory != nil {
			connector.newSource = factory
		}
	}
}

// Connector opens per-language upstream connections and forwards relevant
// decoded events.
type Connector struct {
	logger    *slog.Logger
	newSource SourceFactory
}

// New creates a connector backed by the default SSE transport.
func New(options ...Option) *Connector {
	connector := &Connector{
		logger: slog.Default(),
	}
	for _, option := range options {
		option(connector)
	}
	if connector.newSource == nil {
		logger := connector.logger
		connector.newSource = func() Source {
			return NewSSESource(DefaultEndpoint, WithSSELogger(logger))
		}
	}

	return connector
}

// Connect opens one long-lived stream for lang and forwards matching events
// to publish until the connection is closed.
//
// Decoding failures drop the single message and log; they never terminate
// the connection. Transport errors are logged and left to the source's
// built-in reconnection.
func (c *Connector) Connect(ctx context.Context, lang wikistream.LanguageKey, publish PublishFunc) (*Conn, error) {
	if lang == "" {
		return nil, fmt.Errorf("connect stream: %w", wikistream.ErrInvalidLanguage)
	}
	if publish == nil {
		return nil, fmt.Errorf("connect stream %s: nil publish", lang)
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		lang:   lang,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	source := c.newSource()
	go func() {
		defer close(conn.done)
		err := source.Subscribe(connCtx, func(data []byte) {
			c.handleMessage(connCtx, conn, data, publish)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.logger.ErrorContext(connCtx, "change stream terminated", "lang", lang, "error", err)
		}
	}()

	c.logger.InfoContext(ctx, "opened change stream", "lang", lang)

	return conn, nil
}

// handleMessage decodes, filters, and forwards one raw stream message.
func (c *Connector) handleMessage(ctx context.Context, conn *Conn, data []byte, publish PublishFunc) {
	// Racing callbacks observed after Close are dropped here rather than
	// delivered to a torn-down pipeline.
	if conn.closed.Load() {
		return
	}

	event, err := decodeEvent(data)
	if err != nil {
		metrics.IncParseErrors()
		c.logger.WarnContext(ctx, "dropping malformed stream message", "lang", conn.lang, "error", err)
		return
	}
	if !event.Matches(conn.lang) {
		return
	}
	if conn.closed.Load() {
		return
	}

	metrics.IncEventsReceived(string(conn.lang))
	publish(event)
}

// Conn is the handle for one live upstream connection.
type Conn struct {
	lang   wikistream.LanguageKey
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

// Lang returns the language this connection serves.
func (c *Conn) Lang() wikistream.LanguageKey {
	return c.lang
}

// Close releases the transport. It is idempotent; messages decoded after
// Close are not delivered.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		c.cancel()
	})
}

// Done is closed once the transport goroutine has fully exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// wireEvent is the upstream JSON shape. Unknown fields are ignored.
type wireEvent struct {
	Wiki      string `json:"wiki"`
	Title     string `json:"title"`
	User      string `json:"user"`
	Timestamp int64  `json:"timestamp"`
	Meta      struct {
		URI string `json:"uri"`
	} `json:"meta"`
}

// decodeEvent parses one raw message into a ChangeEvent.
func decodeEvent(data []byte) (wikistream.ChangeEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return wikistream.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if wire.Wiki == "" {
		return wikistream.ChangeEvent{}, fmt.Errorf("decode change event: missing wiki field")
	}

	return wikistream.ChangeEvent{
		Wiki:          wire.Wiki,
		Title:         wire.Title,
		User:          wire.User,
		TimestampUnix: wire.Timestamp,
		SourceURI:     wire.Meta.URI,
	}, nil
}
