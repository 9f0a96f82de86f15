package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
)

// EventWriter is the subset of kafka.Writer the analytics subscriber uses.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewCartEventsWriter builds a kafka writer for the cart-events topic.
func NewCartEventsWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "cart-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// Analytics tracks every cart event and, when a writer is configured,
// forwards it to the cart-events topic keyed by cart id so events for one
// cart stay ordered.
type Analytics struct {
	writer EventWriter
}

func NewAnalytics(writer EventWriter) *Analytics {
	return &Analytics{writer: writer}
}

func (a *Analytics) Register(bus *event.Bus) {
	bus.Subscribe("analytics", a,
		event.KindCartCreated, event.KindItemAdded,
		event.KindItemRemoved, event.KindCartAbandoned)
}

func (a *Analytics) OnCartCreated(ctx context.Context, e event.CartCreated) error {
	log.Printf("[ANALYTICS] cart created: %s for session %s", e.CartID, e.SessionID)
	return a.forward(ctx, e.CartID, e)
}

func (a *Analytics) OnItemAdded(ctx context.Context, e event.ItemAddedToCart) error {
	log.Printf("[ANALYTICS] item added to cart: %s (%dx) - cart: %s", e.ProductName, e.Quantity, e.CartID)
	return a.forward(ctx, e.CartID, e)
}

func (a *Analytics) OnItemRemoved(ctx context.Context, e event.ItemRemovedFromCart) error {
	log.Printf("[ANALYTICS] item removed from cart: %s (%dx) - cart: %s", e.ProductName, e.Quantity, e.CartID)
	return a.forward(ctx, e.CartID, e)
}

func (a *Analytics) OnCartAbandoned(ctx context.Context, e event.CartAbandoned) error {
	log.Printf("[ANALYTICS] cart abandoned: %s with %d items worth %s", e.CartID, e.TotalItems, e.TotalValue)
	return a.forward(ctx, e.CartID, e)
}

func (a *Analytics) forward(ctx context.Context, cartID string, e event.Event) error {
	if a.writer == nil {
		return nil
	}

	msg, err := buildMessage(cartID, e)
	if err != nil {
		return err
	}

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Kind(), err)
	}
	return nil
}

func buildMessage(cartID string, e event.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}

	return kafka.Message{
		Key:   []byte(cartID), // cart_id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Kind())},
		},
	}, nil
}
