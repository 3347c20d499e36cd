// Package feed wires the stream connector, the fan-out hub, the recent-events
// cache and the stats aggregator into one service exposing the APIs chat front
// ends consume.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"wikistream/internal/hub"
	"wikistream/internal/recent"
	"wikistream/internal/stats"
	"wikistream/internal/stream"
	"wikistream/pkg/wikistream"
)

// Option mutates service configuration.
type Option func(*Service)

// WithLogger sets the logger used by the service and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConnector overrides the default SSE-backed connector. Tests use this to
// feed scripted events.
func WithConnector(connector *stream.Connector) Option {
	return func(s *Service) {
		if connector != nil {
			s.connector = connector
		}
	}
}

// WithCacheCapacity sets the per-language recent-events cache capacity.
func WithCacheCapacity(capacity int) Option {
	return func(s *Service) {
		s.cacheCapacity = capacity
	}
}

// Service owns one upstream connection per active language and fans each
// connection out to its subscribers, the recent-events cache and the stats
// aggregator.
type Service struct {
	logger        *slog.Logger
	connector     *stream.Connector
	cache         *recent.Cache
	aggregator    *stats.Aggregator
	hub           *hub.Hub
	cacheCapacity int

	closeOnce sync.Once
	closeErr  error
}

// New builds a feed service recording stats through aggregator.
func New(aggregator *stats.Aggregator, options ...Option) (*Service, error) {
	s := &Service{
		logger:        slog.Default(),
		aggregator:    aggregator,
		cacheCapacity: recent.DefaultCapacity,
	}
	for _, option := range options {
		option(s)
	}
	if s.connector == nil {
		s.connector = stream.New(stream.WithLogger(s.logger))
	}
	s.cache = recent.New(recent.WithCapacity(s.cacheCapacity))

	dial := func(ctx context.Context, lang wikistream.LanguageKey, publish func(wikistream.ChangeEvent)) (hub.Conn, error) {
		return s.connector.Connect(ctx, lang, publish)
	}
	h, err := hub.New(dial,
		hub.WithLogger(s.logger),
		hub.WithConsumer(hub.Consumer{Name: "recent-cache", Handler: s.cache.Record}),
		hub.WithConsumer(hub.Consumer{Name: "stats", Handler: s.aggregator.ConsumeEvent}),
	)
	if err != nil {
		return nil, err
	}
	s.hub = h
	return s, nil
}

// Subscribe attaches the caller to the language's event stream, opening the
// upstream connection on first use.
func (s *Service) Subscribe(ctx context.Context, lang wikistream.LanguageKey) (wikistream.Subscription, error) {
	parsed, err := wikistream.ParseLanguage(string(lang))
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, parsed)
}

// Recent returns up to count cached events for lang, newest first.
func (s *Service) Recent(lang wikistream.LanguageKey, count int) ([]wikistream.ChangeEvent, error) {
	parsed, err := wikistream.ParseLanguage(string(lang))
	if err != nil {
		return nil, err
	}
	return s.cache.Query(parsed, count), nil
}

// Stats returns the aggregated daily stats for lang on day.
func (s *Service) Stats(ctx context.Context, lang wikistream.LanguageKey, day wikistream.Day) (wikistream.DailyStats, bool, error) {
	parsed, err := wikistream.ParseLanguage(string(lang))
	if err != nil {
		return wikistream.DailyStats{}, false, err
	}
	return s.aggregator.Query(ctx, parsed, day)
}

// ActiveLanguages lists languages with a live upstream connection, sorted.
func (s *Service) ActiveLanguages() []wikistream.LanguageKey {
	return s.hub.ActiveLanguages()
}

// Cleanup tears down the language's upstream connection and completes its
// subscriber streams. Missing languages are ignored.
func (s *Service) Cleanup(ctx context.Context, lang wikistream.LanguageKey) error {
	parsed, err := wikistream.ParseLanguage(string(lang))
	if err != nil {
		return err
	}
	return s.hub.Cleanup(ctx, parsed)
}

// Close tears down every connection and empties the cache. It is idempotent;
// repeat calls return the first outcome.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.hub.CleanupAll(ctx)
		s.cache.Clear()
	})
	return s.closeErr
}
