package events

import (
	"context"
	"fmt"
	"sync"

	"masterbook/pkg/logger"
)

type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus delivers events to subscribers asynchronously. A failing or panicking
// subscriber is logged and never affects the publisher.
type Bus struct {
	log  *logger.Logger
	mu   sync.RWMutex
	subs []subscription
	wg   sync.WaitGroup
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{log: log}
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h})
}

// Subscribe registers a handler for one event variant. The variant is
// checked at compile time, so a handler cannot be wired to a wrong payload.
func Subscribe[E Event](b *Bus, name string, h func(ctx context.Context, ev E) error) {
	b.SubscribeAll(name, func(ctx context.Context, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return nil
		}
		return h(ctx, typed)
	})
}

// Publish hands ev to every subscriber on its own goroutine. Delivery
// outlives the caller's context cancellation but keeps its values.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	deliveryCtx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.wg.Add(1)
		go b.deliver(deliveryCtx, sub, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, ev Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event subscriber panicked",
				"subscriber", sub.name,
				"event", ev.EventName(),
				"booking_id", ev.AggregateID(),
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := sub.handler(ctx, ev); err != nil {
		b.log.Error("Event subscriber failed",
			"subscriber", sub.name,
			"event", ev.EventName(),
			"booking_id", ev.AggregateID(),
			"error", err,
		)
	}
}

// Wait blocks until every delivery started so far has finished.
func (b *Bus) Wait() {
	b.wg.Wait()
}
