package app

import "sync"

// Broadcaster fans out snapshots to subscribers grouped by topic (a session
// or debate id). Sessions live in the document store now, not in process
// memory, so the fan-out is a standalone hub instead of living on a session
// object.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[string]map[chan T]struct{}
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[string]map[chan T]struct{})}
}

// Subscribe registers a listener for a topic. The caller must invoke the
// returned cancel function to avoid leaks.
func (b *Broadcaster[T]) Subscribe(topic string) (<-chan T, func()) {
	ch := make(chan T, 8)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan T]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[topic]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber of the topic. Slow
// subscribers lose their stale frame instead of blocking the publisher.
func (b *Broadcaster[T]) Publish(topic string, v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
