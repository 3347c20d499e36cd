package stats

import "strings"

// Editor identifiers become nested document keys in the store, where ".",
// "$", and the escape character itself collide with path addressing. The
// substitution is percent-style and fully reversible, so read-back recovers
// the original identity; display names are stored unescaped regardless.
var (
	editorKeyEscaper   = strings.NewReplacer("%", "%25", ".", "%2E", "$", "%24")
	editorKeyUnescaper = strings.NewReplacer("%2E", ".", "%24", "$", "%25", "%")
)

// EscapeEditorKey converts an editor identity into a storage-safe map key.
func EscapeEditorKey(editor string) string {
	return editorKeyEscaper.Replace(editor)
}

// UnescapeEditorKey reverses EscapeEditorKey.
func UnescapeEditorKey(key string) string {
	return editorKeyUnescaper.Replace(key)
}
