package subscriber

import (
	"context"
	"log"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
)

// Inventory reserves stock when items enter a cart and releases it when they
// leave. The actual inventory system sits behind this log for now.
type Inventory struct {
	event.NopHandler
}

func NewInventory() *Inventory {
	return &Inventory{}
}

func (i *Inventory) Register(bus *event.Bus) {
	bus.Subscribe("inventory", i, event.KindItemAdded, event.KindItemRemoved)
}

func (i *Inventory) OnItemAdded(_ context.Context, e event.ItemAddedToCart) error {
	log.Printf("[INVENTORY] reserving %d units of product %d for cart %s", e.Quantity, e.ProductID, e.CartID)
	return nil
}

func (i *Inventory) OnItemRemoved(_ context.Context, e event.ItemRemovedFromCart) error {
	log.Printf("[INVENTORY] releasing %d units of product %d from cart %s", e.Quantity, e.ProductID, e.CartID)
	return nil
}
