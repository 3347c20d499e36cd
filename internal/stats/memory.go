package stats

import (
	"context"
	"sync"
	"time"

	"wikistream/pkg/wikistream"
)

// MemoryStore is an in-process StatStore with the same atomic-increment
// semantics as the document store. It backs tests and storeless local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]*memoryRecord
}

type recordKey struct {
	lang wikistream.LanguageKey
	date time.Time
}

type memoryRecord struct {
	changeCount int64
	topEditors  map[string]wikistream.EditorStat
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]*memoryRecord),
	}
}

// IncrementDaily upserts the (lang, day) record, growing the day total and
// the editor count in one locked step.
func (s *MemoryStore) IncrementDaily(_ context.Context, lang wikistream.LanguageKey, day wikistream.Day, editorKey string, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{lang: lang, date: day.Time()}
	record, exists := s.records[key]
	if !exists {
		record = &memoryRecord{topEditors: make(map[string]wikistream.EditorStat)}
		s.records[key] = record
	}
	record.changeCount++
	stat := record.topEditors[editorKey]
	stat.ChangeCount++
	stat.DisplayName = displayName
	record.topEditors[editorKey] = stat

	return nil
}

// DailyStats returns a copy of the record for (lang, day); a missing record
// yields found=false with a nil error.
func (s *MemoryStore) DailyStats(_ context.Context, lang wikistream.LanguageKey, day wikistream.Day) (wikistream.DailyStats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[recordKey{lang: lang, date: day.Time()}]
	if !exists {
		return wikistream.DailyStats{}, false, nil
	}

	editors := make(map[string]wikistream.EditorStat, len(record.topEditors))
	for editor, stat := range record.topEditors {
		editors[editor] = stat
	}

	return wikistream.DailyStats{
		Lang:        lang,
		Date:        day,
		ChangeCount: record.changeCount,
		TopEditors:  editors,
	}, true, nil
}

// RecordCount reports the number of day records across all languages.
func (s *MemoryStore) RecordCount(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.records)), nil
}

// DeleteOlderThan removes records dated before cutoff.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.records {
		if key.date.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}

	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
