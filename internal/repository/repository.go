package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository defines the interface for cart data operations.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	FindBySession(ctx context.Context, sessionID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, cartID string) error

	// FindStaleActive returns up to limit active carts whose last interaction
	// is older than before. FindExpiredAbandoned returns up to limit carts
	// abandoned before the given time. Both feed the cleanup sweep in batches.
	FindStaleActive(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error)
	FindExpiredAbandoned(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error)
}
