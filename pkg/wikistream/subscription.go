package wikistream

import "context"

// Subscription is one consumer's live attachment to a language broadcast.
//
// The events channel is closed when the hub tears the language down, so
// consumers observe a clean end-of-stream rather than a stall. Closing the
// subscription detaches this consumer only; the shared broadcast and the
// upstream connection stay alive for the remaining consumers.
type Subscription interface {
	// Events returns the receive channel for broadcast change events.
	Events() <-chan ChangeEvent
	// Lang returns the language edition this subscription is attached to.
	Lang() LanguageKey
	// Close detaches the consumer and releases its queue. It is idempotent.
	Close(ctx context.Context) error
}
