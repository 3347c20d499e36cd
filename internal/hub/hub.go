// Package hub maps each language edition to exactly one shared broadcast fed
// by exactly one upstream connection. Subscribers share the stream;
// per-subscriber bounded queues with drop-oldest policy keep any one
// consumer from blocking the others or the upstream receive loop.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"wikistream/internal/metrics"
	"wikistream/pkg/wikistream"
)

// DefaultSubscriberBuffer bounds each subscriber queue.
const DefaultSubscriberBuffer = 256

// Conn is the handle for one live upstream connection.
type Conn interface {
	Close()
}

// DialFunc opens the single upstream connection for a language, forwarding
// relevant events to publish.
type DialFunc func(ctx context.Context, lang wikistream.LanguageKey, publish func(wikistream.ChangeEvent)) (Conn, error)

// Consumer is a permanently attached per-language event handler, such as the
// recent-events recorder or the stats recorder. Each consumer drains its own
// bounded queue with a single worker, so consumers observe events in arrival
// order and never block each other.
type Consumer struct {
	// Name identifies the consumer in logs and teardown errors.
	Name string
	// Handler processes one event for one language; it runs on the
	// consumer's own goroutine.
	Handler func(lang wikistream.LanguageKey, event wikistream.ChangeEvent)
}

// Option mutates hub configuration.
type Option func(*Hub)

// WithLogger injects the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber queue capacity.
func WithSubscriberBuffer(buffer int) Option {
	return func(h *Hub) {
		if buffer > 0 {
			h.buffer = buffer
		}
	}
}

// WithConsumer attaches a consumer to every language broadcast the hub
// creates.
func WithConsumer(consumer Consumer) Option {
	return func(h *Hub) {
		if consumer.Handler != nil {
			h.consumers = append(h.consumers, consumer)
		}
	}
}

// Hub owns the language-to-broadcast registry.
type Hub struct {
	dial      DialFunc
	logger    *slog.Logger
	buffer    int
	consumers []Consumer

	mu         sync.Mutex
	broadcasts map[wikistream.LanguageKey]*broadcast
}

// New creates a hub that dials upstream connections on demand.
func New(dial DialFunc, options ...Option) (*Hub, error) {
	if dial == nil {
		return nil, fmt.Errorf("new hub: nil dial")
	}

	h := &Hub{
		dial:       dial,
		logger:     slog.Default(),
		buffer:     DefaultSubscriberBuffer,
		broadcasts: make(map[wikistream.LanguageKey]*broadcast),
	}
	for _, option := range options {
		option(h)
	}

	return h, nil
}

// Subscribe attaches a consumer to the language's shared broadcast, creating
// the broadcast and its single upstream connection on first use.
//
// The call is idempotent per language: concurrent subscribers race to
// exactly one live connection, and every subscriber for the same language
// observes the same event sequence.
func (h *Hub) Subscribe(ctx context.Context, lang wikistream.LanguageKey) (wikistream.Subscription, error) {
	broadcast, err := h.broadcastFor(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", lang, err)
	}

	sub, err := broadcast.attach(h.buffer)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", lang, err)
	}

	return &subscription{lang: lang, owner: broadcast, sub: sub}, nil
}

// broadcastFor returns the per-language entry, creating it and dialing
// upstream on miss. Creation happens under the hub lock so a second caller
// can never produce a duplicate connection.
func (h *Hub) broadcastFor(ctx context.Context, lang wikistream.LanguageKey) (*broadcast, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, exists := h.broadcasts[lang]; exists {
		return existing, nil
	}

	entry := newBroadcast(lang, h.buffer, h.consumers)
	conn, err := h.dial(ctx, lang, entry.publish)
	if err != nil {
		// The dial never happened; release the consumer workers started for
		// this aborted entry.
		_ = entry.shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("dial upstream: %w", err)
	}
	entry.conn = conn
	h.broadcasts[lang] = entry
	metrics.SetActiveStreams(len(h.broadcasts))
	h.logger.InfoContext(ctx, "language broadcast created", "lang", lang)

	return entry, nil
}

// ActiveLanguages lists languages with a live broadcast, sorted for stable
// presentation.
func (h *Hub) ActiveLanguages() []wikistream.LanguageKey {
	h.mu.Lock()
	defer h.mu.Unlock()

	langs := make([]wikistream.LanguageKey, 0, len(h.broadcasts))
	for lang := range h.broadcasts {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	return langs
}

// Cleanup tears down one language: the connection closes, every subscriber
// channel completes, and the registry entry is removed. Re-subscribing
// afterwards builds a fresh connection with no carried state. Idempotent.
func (h *Hub) Cleanup(ctx context.Context, lang wikistream.LanguageKey) error {
	h.mu.Lock()
	entry, exists := h.broadcasts[lang]
	if exists {
		delete(h.broadcasts, lang)
		metrics.SetActiveStreams(len(h.broadcasts))
	}
	h.mu.Unlock()

	if !exists {
		return nil
	}
	if err := entry.shutdown(ctx); err != nil {
		return fmt.Errorf("cleanup %s: %w", lang, err)
	}
	h.logger.InfoContext(ctx, "language broadcast torn down", "lang", lang)

	return nil
}

// CleanupAll tears down every language at once; like Cleanup it leaves the
// hub usable, so re-subscribing afterwards dials a fresh upstream
// connection. Idempotent and tolerant of partial prior cleanup. Terminal
// shutdown is the caller's concern.
func (h *Hub) CleanupAll(ctx context.Context) error {
	h.mu.Lock()
	entries := make([]*broadcast, 0, len(h.broadcasts))
	for _, entry := range h.broadcasts {
		entries = append(entries, entry)
	}
	h.broadcasts = make(map[wikistream.LanguageKey]*broadcast)
	h.mu.Unlock()

	metrics.SetActiveStreams(0)

	var shutdownErrs []error
	for _, entry := range entries {
		if err := entry.shutdown(ctx); err != nil {
			shutdownErrs = append(shutdownErrs, err)
		}
	}

	if len(shutdownErrs) > 0 {
		return fmt.Errorf("cleanup hub: %w", errors.Join(shutdownErrs...))
	}

	return nil
}

// subscription adapts one broadcast queue to the public Subscription surface.
type subscription struct {
	lang  wikistream.LanguageKey
	owner *broadcast
	sub   *subscriber
}

// Events returns the receive channel; it is closed on hub teardown.
func (s *subscription) Events() <-chan wikistream.ChangeEvent {
	return s.sub.queue
}

// Lang returns the subscribed language.
func (s *subscription) Lang() wikistream.LanguageKey {
	return s.lang
}

// Close detaches this consumer only; the shared broadcast stays alive.
func (s *subscription) Close(_ context.Context) error {
	s.owner.detach(s.sub.id)

	return nil
}
