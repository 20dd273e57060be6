package navigation

import "sync"

// broadcaster fans values out to subscribers without ever blocking the publisher
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	closed bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T)}
}

func (b *broadcaster[T]) subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			close(sub)
			delete(b.subs, id)
		}
	}
}

// publish delivers v to every subscriber with room in its buffer
func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
