package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans lifecycle events out to subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// MemoryDispatcher delivers events synchronously on the publishing goroutine.
type MemoryDispatcher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates an empty dispatcher.
func NewInMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{subscribers: make(map[EventType][]EventHandler)}
}

// Publish runs every subscriber of event.Type, even after one fails, and
// joins their errors. A panicking subscriber is reported as an error.
func (d *MemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	subs := d.subscribers[event.Type]
	d.mu.RUnlock()

	var errs []error
	for i, handle := range subs {
		if err := deliver(ctx, handle, event); err != nil {
			errs = append(errs, fmt.Errorf("%s subscriber %d: %w", event.Type, i, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe adds handler for eventType.
func (d *MemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// slices handed to Publish are never appended to in place
	current := d.subscribers[eventType]
	d.subscribers[eventType] = append(current[:len(current):len(current)], handler)
}

func deliver(ctx context.Context, handle EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handle(ctx, event)
}
