package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	CreatedAt   time.Time
}

// Finder is what the cart service needs from the catalog: a price and name
// lookup at mutation time.
type Finder interface {
	FindProduct(ctx context.Context, id int64) (*Product, error)
}
