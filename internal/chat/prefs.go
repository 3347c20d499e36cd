package chat

import (
	"sync"

	"wikistream/pkg/wikistream"
)

// DefaultLanguage is assumed for users who never ran the set-language command.
const DefaultLanguage = wikistream.LanguageKey("en")

// Prefs holds per-user language preferences in memory. Preferences do not
// survive a restart.
type Prefs struct {
	mu    sync.RWMutex
	langs map[int64]wikistream.LanguageKey
}

// NewPrefs creates an empty preference table.
func NewPrefs() *Prefs {
	return &Prefs{langs: make(map[int64]wikistream.LanguageKey)}
}

// Language returns the user's preferred language, or DefaultLanguage.
func (p *Prefs) Language(userID int64) wikistream.LanguageKey {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if lang, ok := p.langs[userID]; ok {
		return lang
	}
	return DefaultLanguage
}

// SetLanguage records the user's preferred language.
func (p *Prefs) SetLanguage(userID int64, lang wikistream.LanguageKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.langs[userID] = lang
}
