package event

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultHandlerTimeout = 5 * time.Second

// Bus delivers events synchronously and in subscription order to handlers
// registered for the event's kind. A handler error or panic is logged and
// does not stop delivery to the remaining handlers; publishing always
// succeeds from the caller's point of view.
type Bus struct {
	mu             sync.RWMutex
	subs           map[Kind][]subscription
	handlerTimeout time.Duration
}

type subscription struct {
	name    string
	handler Handler
}

func NewBus() *Bus {
	return &Bus{
		subs:           make(map[Kind][]subscription),
		handlerTimeout: defaultHandlerTimeout,
	}
}

// Subscribe registers the handler for the given kinds. Registration happens
// once at startup; name is only used in failure logs.
func (b *Bus) Subscribe(name string, h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], subscription{name: name, handler: h})
	}
}

// Publish delivers the event to every handler subscribed to its kind. Each
// handler runs under its own deadline so one slow subscriber cannot stall
// the mutation path indefinitely.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.subs[e.Kind()]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, e)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("subscriber %s panicked on %s: %v", sub.name, e.Kind(), r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	if err := e.accept(ctx, sub.handler); err != nil {
		log.Printf("subscriber %s failed on %s: %v", sub.name, e.Kind(), err)
	}
}
