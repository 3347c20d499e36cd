package wikistream

import (
	"fmt"
	"strings"
	"time"
)

// AnonymousEditor is the canonical editor identity stored when the upstream
// event carries no user field.
const AnonymousEditor = "anonymous"

// LanguageKey identifies one Wikipedia language edition. It partitions every
// per-language structure: upstream connection, broadcast, cache, and stats.
type LanguageKey string

// ParseLanguage normalizes and validates a caller-supplied language code.
//
// Codes are trimmed and lower-cased before validation; anything other than
// 2-3 ASCII letters is rejected with ErrInvalidLanguage.
func ParseLanguage(raw string) (LanguageKey, error) {
	code := strings.ToLower(strings.TrimSpace(raw))
	if len(code) < 2 || len(code) > 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, raw)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, raw)
		}
	}

	return LanguageKey(code), nil
}

// ChangeEvent is one decoded recent-change notification from the upstream
// stream. It is a value type and immutable once constructed.
type ChangeEvent struct {
	// Wiki is the source wiki identifier, for example "enwiki".
	Wiki string
	// Title is the changed page title.
	Title string
	// User is the editor identifier; empty when the edit was anonymous.
	User string
	// TimestampUnix is the change time in unix seconds.
	TimestampUnix int64
	// SourceURI is the optional canonical URI for the change.
	SourceURI string
}

// Editor returns the editor identity, substituting AnonymousEditor for
// missing users.
func (e ChangeEvent) Editor() string {
	if strings.TrimSpace(e.User) == "" {
		return AnonymousEditor
	}

	return e.User
}

// OccurredAt returns the change time in UTC.
func (e ChangeEvent) OccurredAt() time.Time {
	return time.Unix(e.TimestampUnix, 0).UTC()
}

// Matches reports whether this event belongs to the given language edition.
//
// Routing is a prefix match because source wikis are suffixed: "en" matches
// "enwiki" and "enwiktionary", while "dewiktionary" never matches "en".
func (e ChangeEvent) Matches(lang LanguageKey) bool {
	if lang == "" {
		return false
	}

	return strings.HasPrefix(e.Wiki, string(lang))
}
