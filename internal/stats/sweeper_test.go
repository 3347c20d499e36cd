package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"wikistream/pkg/wikistream"
)

func seedRecords(t *testing.T, store *MemoryStore, lang wikistream.LanguageKey, base time.Time, count int) {
	t.Helper()

	for idx := 0; idx < count; idx++ {
		day := wikistream.DayOf(base.AddDate(0, 0, -idx).Unix())
		if err := store.IncrementDaily(context.Background(), lang, day, "alice", "alice"); err != nil {
			t.Fatalf("seed record %d failed: %v", idx, err)
		}
	}
}

// TestSweeperDeletesStaleRecordsOverThreshold verifies that,
// with 11 records and a threshold of 10, records older than the retention
// window are deleted while records inside it survive.
func TestSweeperDeletesStaleRecordsOverThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 9, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	// 11 day records: today plus the previous 10 days. With a 6h retention
	// window every record except today's midnight-relative entry is stale.
	seedRecords(t, store, "en", now, 11)

	sweeper := NewSweeper(store,
		WithMaxRecords(10),
		WithRetention(6*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)

	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 11 {
		// All 11 midnight-dated records are older than now-6h (06:00).
		t.Fatalf("deleted = %d, want 11", deleted)
	}

	count, err := store.RecordCount(context.Background())
	if err != nil {
		t.Fatalf("record count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("remaining records = %d, want 0", count)
	}
}

// TestSweeperKeepsRecordsInsideWindow verifies that records within the
// retention window survive even when the store is over the threshold.
func TestSweeperKeepsRecordsInsideWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 9, 2, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedRecords(t, store, "en", now, 11)

	// At 02:00 with a 6h window the cutoff is the previous day 20:00, so
	// today's midnight record is inside the window.
	sweeper := NewSweeper(store,
		WithMaxRecords(10),
		WithRetention(6*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)

	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 10 {
		t.Fatalf("deleted = %d, want 10", deleted)
	}

	stats, found, err := store.DailyStats(context.Background(), "en", wikistream.DayOf(now.Unix()))
	if err != nil || !found {
		t.Fatalf("today's record missing after sweep: found=%v err=%v", found, err)
	}
	if stats.ChangeCount != 1 {
		t.Fatalf("surviving record total = %d, want 1", stats.ChangeCount)
	}
}

// TestSweeperUnderThresholdIsNoOp verifies stale records survive while the
// total count stays at or under the threshold.
func TestSweeperUnderThresholdIsNoOp(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 9, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedRecords(t, store, "en", now, 10)

	sweeper := NewSweeper(store,
		WithMaxRecords(10),
		WithRetention(6*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)

	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}

	count, err := store.RecordCount(context.Background())
	if err != nil {
		t.Fatalf("record count failed: %v", err)
	}
	if count != 10 {
		t.Fatalf("remaining records = %d, want 10", count)
	}
}

// TestSweeperZeroDeletionsIsNormal verifies an over-threshold sweep with
// nothing stale succeeds with zero deletions.
func TestSweeperZeroDeletionsIsNormal(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 9, 0, 30, 0, 0, time.UTC)
	store := NewMemoryStore()
	// 11 records for 11 languages, all dated today: over threshold, none stale.
	for idx := 0; idx < 11; idx++ {
		lang := wikistream.LanguageKey(fmt.Sprintf("l%d", idx))
		if err := store.IncrementDaily(context.Background(), lang, wikistream.DayOf(now.Unix()), "alice", "alice"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	sweeper := NewSweeper(store,
		WithMaxRecords(10),
		WithRetention(6*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)

	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

// TestSweeperFailuresDoNotBlockAggregation verifies the opportunistic
// trigger swallows store failures.
func TestSweeperFailuresDoNotBlockAggregation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewSweeper(failingStore{}, WithSweeperLogger(logger))
	aggregator := NewAggregator(NewMemoryStore(), WithOpportunisticSweeper(sweeper))

	// The sweep fails against its store; the write must still land.
	aggregator.Record(context.Background(), "en", noonUnix, "alice")

	stats, found, err := aggregator.Query(context.Background(), "en", wikistream.DayOf(noonUnix))
	if err != nil || !found {
		t.Fatalf("query failed: found=%v err=%v", found, err)
	}
	if stats.ChangeCount != 1 {
		t.Fatalf("total = %d, want 1", stats.ChangeCount)
	}
}

// TestSweeperOpportunisticTriggerBoundsRecords verifies the pre-write sweep
// trims the store once over threshold.
func TestSweeperOpportunisticTriggerBoundsRecords(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 9, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedRecords(t, store, "en", now.AddDate(0, 0, -2), 11)

	sweeper := NewSweeper(store,
		WithMaxRecords(10),
		WithRetention(6*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)
	aggregator := NewAggregator(store, WithOpportunisticSweeper(sweeper))

	aggregator.Record(context.Background(), "en", now.Unix(), "alice")

	count, err := store.RecordCount(context.Background())
	if err != nil {
		t.Fatalf("record count failed: %v", err)
	}
	// The 11 stale seeds were swept before the write; only today's record remains.
	if count != 1 {
		t.Fatalf("remaining records = %d, want 1", count)
	}
}
