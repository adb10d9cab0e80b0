package events

import (
	"context"
	"sync"

	"github.com/soochol/chatflow/internal/chatflow"
)

type Handler func(chatflow.Event)

// Bus fans domain events out to in-process subscribers. Handlers run
// synchronously on the publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers handler and returns a function that removes it.
func (b *Bus) Subscribe(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(event chatflow.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// Channel delivers events on a buffered channel until ctx is done. Events
// are dropped when the buffer is full.
func (b *Bus) Channel(ctx context.Context, bufSize int) <-chan chatflow.Event {
	ch := make(chan chatflow.Event, bufSize)
	var mu sync.Mutex
	closed := false
	unsubscribe := b.Subscribe(func(e chatflow.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
