package sweeper

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
)

const (
	// DefaultAbandonAfter matches the scheduler's inactivity threshold; the
	// sweep is the backstop for timers that were lost.
	DefaultAbandonAfter = 3 * time.Hour

	// DefaultRetainFor is how long abandoned carts are kept before deletion.
	DefaultRetainFor = 7 * 24 * time.Hour

	// DefaultBatchSize bounds how many carts a single query pulls in.
	DefaultBatchSize = 100

	schedule = "0 * * * *"
)

// CartStore provides the two range queries the sweep batches over.
type CartStore interface {
	FindStaleActive(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error)
	FindExpiredAbandoned(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error)
}

// CartLifecycle is what the sweep needs from the cart service. Both
// operations are idempotent, which is what lets a sweep overlap with timer
// fires and with its own retries.
type CartLifecycle interface {
	MarkCartAbandoned(ctx context.Context, cartID string, idleSince time.Time) error
	PurgeCart(ctx context.Context, cartID string) error
}

// Sweeper reconciles cart lifecycle state on a fixed hourly schedule:
// phase 1 promotes stale active carts to abandoned, phase 2 deletes carts
// abandoned past the retention window.
type Sweeper struct {
	store        CartStore
	service      CartLifecycle
	abandonAfter time.Duration
	retainFor    time.Duration
	batchSize    int

	running atomic.Bool
	cron    *cron.Cron
}

func New(store CartStore, service CartLifecycle, abandonAfter, retainFor time.Duration, batchSize int) *Sweeper {
	if abandonAfter <= 0 {
		abandonAfter = DefaultAbandonAfter
	}
	if retainFor <= 0 {
		retainFor = DefaultRetainFor
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sweeper{
		store:        store,
		service:      service,
		abandonAfter: abandonAfter,
		retainFor:    retainFor,
		batchSize:    batchSize,
	}
}

// Start runs the sweep at the top of every hour until Stop is called.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}

	c.Start()
	s.cron = c
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs both phases once. A sweep that finds another run in flight
// returns immediately; two concurrent passes over the same stale set would
// double-publish abandonment events.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("sweep already running, skipping")
		return
	}
	defer s.running.Store(false)

	now := time.Now()

	abandoned := s.markStale(ctx, now.Add(-s.abandonAfter))
	removed := s.purgeExpired(ctx, now.Add(-s.retainFor))

	log.Printf("sweep completed: %d carts abandoned, %d carts removed", abandoned, removed)
}

// markStale walks active carts idle since before the cutoff in batches.
// Processed carts leave the predicate set, so re-querying with the same
// cutoff pages through the whole backlog without a cursor.
func (s *Sweeper) markStale(ctx context.Context, cutoff time.Time) int {
	total := 0
	for {
		carts, err := s.store.FindStaleActive(ctx, cutoff, s.batchSize)
		if err != nil {
			log.Printf("failed to query stale carts: %v", err)
			return total
		}
		if len(carts) == 0 {
			return total
		}

		succeeded := 0
		for _, cart := range carts {
			// Passing the query cutoff means a cart mutated between the
			// query and this call stays active.
			if err := s.service.MarkCartAbandoned(ctx, cart.ID, cutoff); err != nil {
				log.Printf("failed to mark cart %s abandoned: %v", cart.ID, err)
				continue
			}
			log.Printf("cart %s marked as abandoned", cart.ID)
			succeeded++
		}
		total += succeeded

		// Every cart in this batch failed; bail out instead of re-reading
		// the same rows forever. The next scheduled run retries them.
		if succeeded == 0 {
			return total
		}
	}
}

func (s *Sweeper) purgeExpired(ctx context.Context, cutoff time.Time) int {
	total := 0
	for {
		carts, err := s.store.FindExpiredAbandoned(ctx, cutoff, s.batchSize)
		if err != nil {
			log.Printf("failed to query expired carts: %v", err)
			return total
		}
		if len(carts) == 0 {
			return total
		}

		succeeded := 0
		for _, cart := range carts {
			if err := s.service.PurgeCart(ctx, cart.ID); err != nil {
				log.Printf("failed to remove cart %s: %v", cart.ID, err)
				continue
			}
			succeeded++
		}
		total += succeeded

		if succeeded == 0 {
			return total
		}
	}
}
