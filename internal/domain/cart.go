package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a cart. A cart is abandoned exactly when
// AbandonedAt is set; State is derived, never stored independently.
type State string

const (
	StateActive    State = "active"
	StateAbandoned State = "abandoned"
)

type Cart struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"session_id"`
	Items             []CartItem      `json:"items"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	LastInteractionAt time.Time       `json:"last_interaction_at"`
	AbandonedAt       *time.Time      `json:"abandoned_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CartItem holds the quantity and the unit price captured from the catalog
// at the time of the mutation. Prices are never re-fetched on read.
type CartItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	AddedAt     time.Time       `json:"added_at"`
}

// LineTotal returns quantity times unit price for this item.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func NewCart(sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id is required")
	}

	now := time.Now()
	return &Cart{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		TotalPrice:        decimal.Zero,
		LastInteractionAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (c *Cart) State() State {
	if c.AbandonedAt != nil {
		return StateAbandoned
	}
	return StateActive
}

// AddProduct merges the quantity into an existing item for the product or
// appends a new item. The unit price snapshot of an existing item is kept.
func (c *Cart) AddProduct(productID int64, name string, unitPrice decimal.Decimal, quantity int) error {
	if quantity <= 0 {
		return NewValidationError("quantity must be greater than 0")
	}

	now := time.Now()
	if item := c.findItem(productID); item != nil {
		item.Quantity += quantity
		item.AddedAt = now
	} else {
		c.Items = append(c.Items, CartItem{
			ProductID:   productID,
			ProductName: name,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			AddedAt:     now,
		})
	}

	c.touch(now)
	return nil
}

// RemoveProduct deletes the item for the product and returns it, so callers
// can report what was removed.
func (c *Cart) RemoveProduct(productID int64) (CartItem, error) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch(time.Now())
			return item, nil
		}
	}
	return CartItem{}, ErrItemNotFound
}

// UpdateQuantity sets the quantity of an existing item. A quantity of zero or
// less removes the item instead of persisting an invalid row.
func (c *Cart) UpdateQuantity(productID int64, quantity int) error {
	item := c.findItem(productID)
	if item == nil {
		return ErrItemNotFound
	}

	if quantity <= 0 {
		_, err := c.RemoveProduct(productID)
		return err
	}

	item.Quantity = quantity
	c.touch(time.Now())
	return nil
}

// MarkAbandoned sets AbandonedAt and reports whether the cart transitioned.
// Calling it on an already abandoned cart is a no-op; this guard is what
// keeps concurrent timer and sweep attempts from double-abandoning a cart.
func (c *Cart) MarkAbandoned(now time.Time) bool {
	if c.AbandonedAt != nil {
		return false
	}
	c.AbandonedAt = &now
	c.UpdatedAt = now
	return true
}

// TotalQuantity sums the quantities over all items.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) findItem(productID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// touch is the single choke point every item mutation goes through: it
// recomputes the total and stamps the interaction time.
func (c *Cart) touch(now time.Time) {
	c.TotalPrice = reconcileTotal(c.Items)
	c.LastInteractionAt = now
	c.UpdatedAt = now
}

// reconcileTotal computes the cart total from scratch. The stored total is
// never treated as authoritative.
func reconcileTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
