package stats

import "testing"

// TestEscapeEditorKeyRoundTrip verifies reserved separator characters
// survive escape-then-unescape unchanged.
func TestEscapeEditorKeyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		editor string
	}{
		{name: "plain", editor: "Rosie"},
		{name: "dotted", editor: "J.R.R. Tolkien"},
		{name: "dollar prefixed", editor: "$ystem"},
		{name: "percent literal", editor: "100% human"},
		{name: "pre-escaped lookalike", editor: "a%2Eb"},
		{name: "mixed", editor: "bot.service$v2.1%final"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			escaped := EscapeEditorKey(testCase.editor)
			if got := UnescapeEditorKey(escaped); got != testCase.editor {
				t.Fatalf("round trip of %q via %q = %q", testCase.editor, escaped, got)
			}
		})
	}
}

// TestEscapeEditorKeyRemovesSeparators verifies escaped keys are safe for
// nested-path addressing.
func TestEscapeEditorKeyRemovesSeparators(t *testing.T) {
	t.Parallel()

	escaped := EscapeEditorKey("J.R.$money")
	for _, forbidden := range []byte{'.', '$'} {
		for idx := 0; idx < len(escaped); idx++ {
			if escaped[idx] == forbidden {
				t.Fatalf("escaped key %q still contains %q", escaped, string(forbidden))
			}
		}
	}
}
