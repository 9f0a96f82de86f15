package subscriber

import (
	"context"
	"log"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
)

// Notification reacts to cart activity with recommendation checks.
type Notification struct {
	event.NopHandler
}

func NewNotification() *Notification {
	return &Notification{}
}

func (n *Notification) Register(bus *event.Bus) {
	bus.Subscribe("notification", n, event.KindItemAdded)
}

func (n *Notification) OnItemAdded(_ context.Context, e event.ItemAddedToCart) error {
	log.Printf("[NOTIFICATION] checking recommendations for product %s", e.ProductName)
	return nil
}
