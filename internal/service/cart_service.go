package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/cache"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/catalog"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/repository"
)

// CartService orchestrates cart mutations: load the cart, apply the change,
// persist, then publish exactly one domain event describing the mutation.
// Every mutation on a given cart id runs under that cart's lock, so request
// handlers, abandonment timers and the sweep never interleave on one cart.
type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Finder
	bus     *event.Bus
	sfg     singleflight.Group // Prevents cache stampede
	locks   *keyedMutex
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog catalog.Finder, bus *event.Bus) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		bus:     bus,
		locks:   newKeyedMutex(),
	}
}

// CreateCart returns the session's cart, creating it first if the session has
// none. When productID is non-zero the product is added in the same call.
// Lookup and create run under a session-keyed lock, so concurrent first
// requests for one session agree on a single cart instead of the loser
// tripping the unique session index.
func (s *CartService) CreateCart(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error) {
	unlock := s.locks.lock("session:" + sessionID)
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart, err = s.createCart(ctx, sessionID)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	if productID != 0 {
		return s.AddItem(ctx, cart.ID, productID, quantity)
	}

	return cart, nil
}

func (s *CartService) createCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	cart, err := domain.NewCart(sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, event.CartCreated{
		CartID:    cart.ID,
		SessionID: cart.SessionID,
		CreatedAt: cart.CreatedAt,
	})

	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error) {
	unlock := s.locks.lock(cartID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := cart.AddProduct(product.ID, product.Name, product.Price, quantity); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}
	s.invalidateCache(cartID)

	s.bus.Publish(ctx, event.ItemAddedToCart{
		CartID:      cart.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		SessionID:   cart.SessionID,
		AddedAt:     cart.LastInteractionAt,
	})

	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, cartID string, productID int64) (*domain.Cart, error) {
	unlock := s.locks.lock(cartID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	removed, err := cart.RemoveProduct(productID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}
	s.invalidateCache(cartID)

	s.bus.Publish(ctx, event.ItemRemovedFromCart{
		CartID:      cart.ID,
		ProductID:   removed.ProductID,
		ProductName: removed.ProductName,
		Quantity:    removed.Quantity,
		UnitPrice:   removed.UnitPrice,
		SessionID:   cart.SessionID,
		RemovedAt:   cart.LastInteractionAt,
	})

	return cart, nil
}

// UpdateQuantity sets an item's quantity. The published event describes the
// delta: an increase is an item-added event, a decrease an item-removed one.
// Setting the current quantity again changes nothing and publishes nothing.
func (s *CartService) UpdateQuantity(ctx context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error) {
	unlock := s.locks.lock(cartID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	var before domain.CartItem
	for _, item := range cart.Items {
		if item.ProductID == productID {
			before = item
			break
		}
	}

	if err := cart.UpdateQuantity(productID, quantity); err != nil {
		return nil, err
	}

	if quantity < 0 {
		quantity = 0
	}
	delta := quantity - before.Quantity
	if delta == 0 {
		return cart, nil
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}
	s.invalidateCache(cartID)

	if delta > 0 {
		s.bus.Publish(ctx, event.ItemAddedToCart{
			CartID:      cart.ID,
			ProductID:   before.ProductID,
			ProductName: before.ProductName,
			Quantity:    delta,
			UnitPrice:   before.UnitPrice,
			SessionID:   cart.SessionID,
			AddedAt:     cart.LastInteractionAt,
		})
	} else {
		s.bus.Publish(ctx, event.ItemRemovedFromCart{
			CartID:      cart.ID,
			ProductID:   before.ProductID,
			ProductName: before.ProductName,
			Quantity:    -delta,
			UnitPrice:   before.UnitPrice,
			SessionID:   cart.SessionID,
			RemovedAt:   cart.LastInteractionAt,
		})
	}

	return cart, nil
}

func (s *CartService) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v \n", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, cartID)
		if errGet != nil {
			return nil, errGet
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), cartID, cart)
			if errSet != nil {
				log.Printf("cache set error: %v \n", errSet)
			}
		}()

		return cart, nil // cart was not in cache, return it from repo
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// MarkCartAbandoned transitions an active cart to abandoned and publishes
// CartAbandoned with totals snapshotted now. An already abandoned cart is
// left untouched and no second event is published, which is what makes the
// timer-fire and sweep paths safe to race. idleSince is the caller's
// staleness cutoff: a cart interacted with after it is left alone, so a
// mutation that persisted between the caller's stale check and this call
// keeps its cart active.
func (s *CartService) MarkCartAbandoned(ctx context.Context, cartID string, idleSince time.Time) error {
	unlock := s.locks.lock(cartID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return err
	}

	if cart.LastInteractionAt.After(idleSince) {
		return nil
	}

	if !cart.MarkAbandoned(time.Now()) {
		return nil
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return err
	}
	s.invalidateCache(cartID)

	s.bus.Publish(ctx, event.CartAbandoned{
		CartID:            cart.ID,
		SessionID:         cart.SessionID,
		TotalItems:        cart.TotalQuantity(),
		TotalValue:        cart.TotalPrice,
		LastInteractionAt: cart.LastInteractionAt,
		AbandonedAt:       *cart.AbandonedAt,
	})

	return nil
}

// PurgeCart hard-deletes an abandoned cart together with its items. Active
// carts and carts already gone are left alone, so repeated calls are no-ops.
func (s *CartService) PurgeCart(ctx context.Context, cartID string) error {
	unlock := s.locks.lock(cartID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if cart.AbandonedAt == nil {
		return nil
	}

	if err := s.repo.DeleteCart(ctx, cartID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	s.invalidateCache(cartID)

	log.Printf("removed abandoned cart %s", cartID)
	return nil
}

func (s *CartService) invalidateCache(cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errInvalidate := s.cache.Delete(ctx, cartID)
	if errInvalidate != nil {
		log.Printf("cache invalidate error: %v \n", errInvalidate)
	}
}
