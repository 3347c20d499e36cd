// Package stats aggregates per-day editor statistics into the external
// store and bounds the store's total record count over time.
package stats

import (
	"context"
	"log/slog"

	"wikistream/internal/metrics"
	"wikistream/pkg/wikistream"
)

// AggregatorOption mutates aggregator configuration.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger injects the aggregator logger.
func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(aggregator *Aggregator) {
		if logger != nil {
			aggregator.logger = logger
		}
	}
}

// WithOpportunisticSweeper makes the aggregator trigger a retention sweep
// before each write once the sweeper's record threshold is exceeded.
func WithOpportunisticSweeper(sweeper *Sweeper) AggregatorOption {
	return func(aggregator *Aggregator) {
		aggregator.sweeper = sweeper
	}
}

// Aggregator performs the incremental per-day statistics updates.
//
// Stats are best-effort and never transactionally tied to event delivery: a
// failed upsert is logged and swallowed so ingestion and broadcasting
// continue untouched.
type Aggregator struct {
	store   wikistream.StatStore
	logger  *slog.Logger
	sweeper *Sweeper
}

// NewAggregator creates an aggregator writing through the given store.
func NewAggregator(store wikistream.StatStore, options ...AggregatorOption) *Aggregator {
	aggregator := &Aggregator{
		store:  store,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(aggregator)
	}

	return aggregator
}

// Record folds one change event into its (lang, UTC day) record.
//
// The editor identity is escaped into a storage-safe key; an empty editor
// becomes the anonymous sentinel. The day total and the editor count are
// incremented in one atomic store upsert, keeping the sum invariant without
// any read-modify-write.
func (a *Aggregator) Record(ctx context.Context, lang wikistream.LanguageKey, timestampUnix int64, editor string) {
	if a.sweeper != nil {
		a.sweeper.SweepIfOverThreshold(ctx)
	}

	if editor == "" {
		editor = wikistream.AnonymousEditor
	}
	day := wikistream.DayOf(timestampUnix)

	if err := a.store.IncrementDaily(ctx, lang, day, EscapeEditorKey(editor), editor); err != nil {
		metrics.IncStatsUpsertErrors()
		a.logger.ErrorContext(ctx, "daily stats update failed",
			"lang", lang,
			"day", day.String(),
			"error", err,
		)
		return
	}
	metrics.IncStatsUpserts()
}

// Query returns the daily record for (lang, day) with editor keys restored
// to their original identities. A day with no recorded events yields
// found=false, never an empty record.
func (a *Aggregator) Query(ctx context.Context, lang wikistream.LanguageKey, day wikistream.Day) (wikistream.DailyStats, bool, error) {
	stored, found, err := a.store.DailyStats(ctx, lang, day)
	if err != nil || !found {
		return wikistream.DailyStats{}, false, err
	}

	editors := make(map[string]wikistream.EditorStat, len(stored.TopEditors))
	for key, stat := range stored.TopEditors {
		editors[UnescapeEditorKey(key)] = stat
	}
	stored.TopEditors = editors

	return stored, true, nil
}

// ConsumeEvent folds one broadcast event into the aggregate for its
// language. It is the handler installed as the hub's stats consumer, running
// on the consumer's own goroutine so store latency never stalls the
// upstream receive loop.
func (a *Aggregator) ConsumeEvent(lang wikistream.LanguageKey, event wikistream.ChangeEvent) {
	a.Record(context.Background(), lang, event.TimestampUnix, event.Editor())
}
