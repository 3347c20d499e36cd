package wikistream

import (
	"context"
	"time"
)

// StatStore is the persistence collaborator for daily statistics.
//
// Implementations must be concurrency-safe: the aggregator issues increments
// from per-language consumer goroutines while the sweeper counts and deletes
// from a schedule goroutine. All counter mutations are expressed as atomic
// increments at the store boundary; callers never fetch-then-save.
type StatStore interface {
	// IncrementDaily atomically upserts the (lang, day) record: the day total
	// and the editor's change count both grow by one in the same operation,
	// and the editor's display name is set to displayName.
	//
	// editorKey is the storage-safe key produced by escaping; displayName is
	// the original editor identity.
	IncrementDaily(ctx context.Context, lang LanguageKey, day Day, editorKey string, displayName string) error
	// DailyStats returns the record for (lang, day). A missing record yields
	// found=false with a nil error, never an empty record.
	DailyStats(ctx context.Context, lang LanguageKey, day Day) (stats DailyStats, found bool, err error)
	// RecordCount reports how many day records the store currently holds,
	// across all languages.
	RecordCount(ctx context.Context) (int64, error)
	// DeleteOlderThan removes every record whose day is before cutoff and
	// returns how many were deleted. Zero deletions is a normal outcome.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Close releases the store connection. It must be idempotent.
	Close(ctx context.Context) error
}
