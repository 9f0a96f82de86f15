package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies an event variant. The set is closed: adding a variant
// means adding a Handler method, which every handler must then implement.
type Kind string

const (
	KindCartCreated   Kind = "cart_created"
	KindItemAdded     Kind = "item_added_to_cart"
	KindItemRemoved   Kind = "item_removed_from_cart"
	KindCartAbandoned Kind = "cart_abandoned"
)

// Event is a fact about the past. Implementations are the four variants in
// this package and nothing else; accept routes an event to the matching
// Handler method without runtime type switches.
type Event interface {
	Kind() Kind
	accept(ctx context.Context, h Handler) error
}

// Handler receives events from the Bus. One method per variant keeps the
// dispatch exhaustive at compile time. Embed NopHandler to subscribe to a
// subset of variants.
type Handler interface {
	OnCartCreated(ctx context.Context, e CartCreated) error
	OnItemAdded(ctx context.Context, e ItemAddedToCart) error
	OnItemRemoved(ctx context.Context, e ItemRemovedFromCart) error
	OnCartAbandoned(ctx context.Context, e CartAbandoned) error
}

// NopHandler implements Handler with no-ops for embedding in handlers that
// only care about some variants.
type NopHandler struct{}

func (NopHandler) OnCartCreated(context.Context, CartCreated) error         { return nil }
func (NopHandler) OnItemAdded(context.Context, ItemAddedToCart) error       { return nil }
func (NopHandler) OnItemRemoved(context.Context, ItemRemovedFromCart) error { return nil }
func (NopHandler) OnCartAbandoned(context.Context, CartAbandoned) error     { return nil }

// The json tags below are the wire contract consumed by downstream
// subscribers; field names must not change without a version bump.

type CartCreated struct {
	CartID    string    `json:"cart_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (CartCreated) Kind() Kind { return KindCartCreated }

func (e CartCreated) accept(ctx context.Context, h Handler) error {
	return h.OnCartCreated(ctx, e)
}

type ItemAddedToCart struct {
	CartID      string          `json:"cart_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SessionID   string          `json:"session_id"`
	AddedAt     time.Time       `json:"added_at"`
}

func (ItemAddedToCart) Kind() Kind { return KindItemAdded }

func (e ItemAddedToCart) accept(ctx context.Context, h Handler) error {
	return h.OnItemAdded(ctx, e)
}

type ItemRemovedFromCart struct {
	CartID      string          `json:"cart_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SessionID   string          `json:"session_id"`
	RemovedAt   time.Time       `json:"removed_at"`
}

func (ItemRemovedFromCart) Kind() Kind { return KindItemRemoved }

func (e ItemRemovedFromCart) accept(ctx context.Context, h Handler) error {
	return h.OnItemRemoved(ctx, e)
}

type CartAbandoned struct {
	CartID            string          `json:"cart_id"`
	SessionID         string          `json:"session_id"`
	TotalItems        int             `json:"total_items"`
	TotalValue        decimal.Decimal `json:"total_value"`
	LastInteractionAt time.Time       `json:"last_interaction_at"`
	AbandonedAt       time.Time       `json:"abandoned_at"`
}

func (CartAbandoned) Kind() Kind { return KindCartAbandoned }

func (e CartAbandoned) accept(ctx context.Context, h Handler) error {
	return h.OnCartAbandoned(ctx, e)
}
