package wikistream

import "errors"

var (
	// ErrInvalidLanguage indicates a caller-supplied language code that is not
	// a 2-3 letter lowercase edition key.
	ErrInvalidLanguage = errors.New("wikistream: invalid language code")
	// ErrInvalidDate indicates a caller-supplied date string that is not a
	// valid YYYY-MM-DD calendar day.
	ErrInvalidDate = errors.New("wikistream: invalid date")
	// ErrHubClosed indicates an attach raced the teardown of its language
	// broadcast; subscribing again builds a fresh one.
	ErrHubClosed = errors.New("wikistream: hub closed")
)
