package stats

import (
	"context"
	"log/slog"
	"time"

	"wikistream/internal/metrics"
	"wikistream/pkg/wikistream"
)

const (
	// DefaultMaxRecords is the record-count threshold above which stale
	// records become eligible for deletion.
	DefaultMaxRecords = 10
	// DefaultRetention is how old a day record must be before a sweep may
	// delete it.
	DefaultRetention = 6 * time.Hour
	// DefaultSweepSchedule is the cron cadence for scheduled sweeps.
	DefaultSweepSchedule = "@every 6h"

	// sweepTimeout bounds a single sweep so a wedged store cannot pin the
	// schedule goroutine or the stats consumer.
	sweepTimeout = 30 * time.Second
)

// SweeperOption mutates sweeper configuration.
type SweeperOption func(*Sweeper)

// WithSweeperLogger injects the sweeper logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(sweeper *Sweeper) {
		if logger != nil {
			sweeper.logger = logger
		}
	}
}

// WithMaxRecords sets the record-count threshold.
func WithMaxRecords(maxRecords int64) SweeperOption {
	return func(sweeper *Sweeper) {
		if maxRecords > 0 {
			sweeper.maxRecords = maxRecords
		}
	}
}

// WithRetention sets the retention window.
func WithRetention(retention time.Duration) SweeperOption {
	return func(sweeper *Sweeper) {
		if retention > 0 {
			sweeper.retention = retention
		}
	}
}

// WithSweeperClock injects the time source, used by tests.
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(sweeper *Sweeper) {
		if clock != nil {
			sweeper.clock = clock
		}
	}
}

// Sweeper bounds the store's total day-record count: once the count exceeds
// the threshold, records older than the retention window are deleted. The
// cap is coarse and store-wide, not a per-language quota.
type Sweeper struct {
	store      wikistream.StatStore
	logger     *slog.Logger
	clock      func() time.Time
	maxRecords int64
	retention  time.Duration
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store wikistream.StatStore, options ...SweeperOption) *Sweeper {
	sweeper := &Sweeper{
		store:      store,
		logger:     slog.Default(),
		clock:      time.Now,
		maxRecords: DefaultMaxRecords,
		retention:  DefaultRetention,
	}
	for _, option := range options {
		option(sweeper)
	}

	return sweeper
}

// Sweep deletes stale records once the record count exceeds the threshold.
//
// Deleting zero records is a normal outcome: the count may be over the
// threshold while every record is still inside the retention window.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	metrics.IncSweepRuns()

	count, err := s.store.RecordCount(ctx)
	if err != nil {
		return 0, err
	}
	if count <= s.maxRecords {
		return 0, nil
	}

	cutoff := s.clock().Add(-s.retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "retention sweep deleted stale records",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}

	return deleted, nil
}

// SweepIfOverThreshold is the opportunistic trigger used ahead of
// aggregation writes. Failures are logged and swallowed so a sweep can
// never block ingestion.
func (s *Sweeper) SweepIfOverThreshold(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
	defer cancel()

	if _, err := s.Sweep(sweepCtx); err != nil {
		s.logger.WarnContext(sweepCtx, "opportunistic retention sweep failed", "error", err)
	}
}

// Run is the no-argument entry point for the schedule collaborator.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.WarnContext(ctx, "scheduled retention sweep failed", "error", err)
	}
}
