package wikistream

import (
	"errors"
	"testing"
	"time"
)

// TestParseLanguageNormalizesValidCodes verifies trimming and lower-casing.
func TestParseLanguageNormalizesValidCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want LanguageKey
	}{
		{name: "plain", raw: "en", want: "en"},
		{name: "upper case", raw: "EN", want: "en"},
		{name: "padded", raw: "  de ", want: "de"},
		{name: "three letters", raw: "ast", want: "ast"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLanguage(testCase.raw)
			if err != nil {
				t.Fatalf("ParseLanguage(%q) failed: %v", testCase.raw, err)
			}
			if got != testCase.want {
				t.Fatalf("ParseLanguage(%q) = %q, want %q", testCase.raw, got, testCase.want)
			}
		})
	}
}

// TestParseLanguageRejectsInvalidCodes verifies validation failures surface
// ErrInvalidLanguage to the caller.
func TestParseLanguageRejectsInvalidCodes(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "e", "engl", "e1", "en-US", "日本"} {
		if _, err := ParseLanguage(raw); !errors.Is(err, ErrInvalidLanguage) {
			t.Fatalf("ParseLanguage(%q) error = %v, want ErrInvalidLanguage", raw, err)
		}
	}
}

// TestChangeEventMatchesUsesPrefixRouting verifies the partition-key rule.
func TestChangeEventMatchesUsesPrefixRouting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wiki string
		lang LanguageKey
		want bool
	}{
		{name: "suffixed wiki matches", wiki: "enwiki", lang: "en", want: true},
		{name: "wiktionary matches own language", wiki: "enwiktionary", lang: "en", want: true},
		{name: "foreign wiki does not match", wiki: "dewiktionary", lang: "en", want: false},
		{name: "empty language never matches", wiki: "enwiki", lang: "", want: false},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := ChangeEvent{Wiki: testCase.wiki}
			if got := event.Matches(testCase.lang); got != testCase.want {
				t.Fatalf("Matches(%q, %q) = %v, want %v", testCase.wiki, testCase.lang, got, testCase.want)
			}
		})
	}
}

// TestChangeEventEditorSubstitutesAnonymous verifies the missing-user sentinel.
func TestChangeEventEditorSubstitutesAnonymous(t *testing.T) {
	t.Parallel()

	if got := (ChangeEvent{User: ""}).Editor(); got != AnonymousEditor {
		t.Fatalf("Editor() = %q, want %q", got, AnonymousEditor)
	}
	if got := (ChangeEvent{User: "   "}).Editor(); got != AnonymousEditor {
		t.Fatalf("Editor() with blank user = %q, want %q", got, AnonymousEditor)
	}
	if got := (ChangeEvent{User: "Rosie"}).Editor(); got != "Rosie" {
		t.Fatalf("Editor() = %q, want Rosie", got)
	}
}

// TestChangeEventOccurredAtIsUTC verifies timestamp conversion.
func TestChangeEventOccurredAtIsUTC(t *testing.T) {
	t.Parallel()

	event := ChangeEvent{TimestampUnix: 1700000000}
	want := time.Unix(1700000000, 0).UTC()
	if got := event.OccurredAt(); !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("OccurredAt() = %v, want %v in UTC", got, want)
	}
}
