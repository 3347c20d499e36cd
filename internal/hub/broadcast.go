package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wikistream/internal/metrics"
	"wikistream/pkg/wikistream"
)

// broadcast owns one language's multicast: the upstream connection, the
// attached consumers, and every live subscriber queue.
//
// Publish and teardown are serialized on mu so queue closure never races a
// send. Publish applies drop-oldest per queue and therefore never blocks the
// upstream receive path on a slow subscriber.
type broadcast struct {
	lang wikistream.LanguageKey

	mu          sync.Mutex
	closed      bool
	nextID      int64
	conn        Conn
	subscribers map[int64]*subscriber
	workers     []*subscriber
}

// subscriber is one bounded queue attached to a broadcast. Channel
// subscribers expose the queue directly through Subscription.Events;
// consumer subscribers drain it with a single worker so per-language order
// is preserved.
type subscriber struct {
	id      int64
	name    string
	queue   chan wikistream.ChangeEvent
	handler func(wikistream.ChangeEvent)
	done    chan struct{}
	closed  bool
}

func newBroadcast(lang wikistream.LanguageKey, buffer int, consumers []Consumer) *broadcast {
	b := &broadcast{
		lang:        lang,
		subscribers: make(map[int64]*subscriber),
	}
	for _, consumer := range consumers {
		handle := consumer.Handler
		worker := &subscriber{
			name:    consumer.Name,
			queue:   make(chan wikistream.ChangeEvent, buffer),
			handler: func(event wikistream.ChangeEvent) { handle(lang, event) },
			done:    make(chan struct{}),
		}
		b.workers = append(b.workers, worker)
		go worker.run()
	}

	return b
}

// run drains the queue until closure, preserving arrival order with a single
// worker per consumer.
func (s *subscriber) run() {
	defer close(s.done)
	for event := range s.queue {
		s.handler(event)
	}
}

// publish fans one event out to every consumer and subscriber queue.
func (b *broadcast) publish(event wikistream.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, worker := range b.workers {
		b.enqueueDropOldest(worker, event)
	}
	for _, sub := range b.subscribers {
		b.enqueueDropOldest(sub, event)
	}
}

// enqueueDropOldest evicts one queued event when the queue is full so the
// newest event always lands. Source fidelity is best-effort by contract.
func (b *broadcast) enqueueDropOldest(sub *subscriber, event wikistream.ChangeEvent) {
	if sub.closed {
		return
	}

	select {
	case sub.queue <- event:
		return
	default:
	}

	select {
	case <-sub.queue:
		metrics.IncEventsDropped()
	default:
	}

	select {
	case sub.queue <- event:
	default:
		metrics.IncEventsDropped()
	}
}

// attach registers one channel subscriber.
func (b *broadcast) attach(buffer int) (*subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, wikistream.ErrHubClosed
	}

	b.nextID++
	sub := &subscriber{
		id:    b.nextID,
		name:  fmt.Sprintf("%s-subscriber-%d", b.lang, b.nextID),
		queue: make(chan wikistream.ChangeEvent, buffer),
	}
	b.subscribers[sub.id] = sub

	return sub, nil
}

// detach removes one channel subscriber and closes its queue. Idempotent.
func (b *broadcast) detach(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return
	}
	delete(b.subscribers, id)
	if !sub.closed {
		sub.closed = true
		close(sub.queue)
	}
}

// shutdown closes the upstream connection and completes every queue so
// subscribers observe end-of-stream rather than a stall. It tolerates
// partial prior cleanup and waits for consumer workers up to ctx expiry.
func (b *broadcast) shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.conn != nil {
		b.conn.Close()
	}
	for _, sub := range b.subscribers {
		if !sub.closed {
			sub.closed = true
			close(sub.queue)
		}
	}
	b.subscribers = make(map[int64]*subscriber)
	workers := append([]*subscriber(nil), b.workers...)
	for _, worker := range workers {
		if !worker.closed {
			worker.closed = true
			close(worker.queue)
		}
	}
	b.mu.Unlock()

	var waitErrs []error
	for _, worker := range workers {
		select {
		case <-worker.done:
		case <-ctx.Done():
			waitErrs = append(waitErrs, fmt.Errorf("wait consumer %s: %w", worker.name, ctx.Err()))
		}
	}

	if len(waitErrs) > 0 {
		return fmt.Errorf("shutdown broadcast %s: %w", b.lang, errors.Join(waitErrs...))
	}

	return nil
}
