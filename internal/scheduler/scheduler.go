package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/repository"
)

// DefaultThreshold is the inactivity duration after which a cart is marked
// abandoned.
const DefaultThreshold = 3 * time.Hour

const fireTimeout = 30 * time.Second

// CartAbandoner is what the scheduler needs from the cart service. Marking
// an already abandoned cart must be a no-op on the implementation side, and
// a cart interacted with after idleSince must be left active.
type CartAbandoner interface {
	MarkCartAbandoned(ctx context.Context, cartID string, idleSince time.Time) error
}

// Scheduler keeps at most one pending abandonment timer per cart id. Every
// mutation event cancels the cart's current timer and installs a fresh one
// in a single step under the scheduler lock. Each installed timer carries a
// generation number; a fire whose generation no longer matches the installed
// task lost a race with a reschedule and does nothing.
type Scheduler struct {
	event.NopHandler

	service   CartAbandoner
	threshold time.Duration

	mu      sync.Mutex
	pending map[string]*task
	nextGen uint64
	closed  bool
}

type task struct {
	gen    uint64
	timer  *time.Timer
	fireAt time.Time
}

func New(service CartAbandoner, threshold time.Duration) *Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scheduler{
		service:   service,
		threshold: threshold,
		pending:   make(map[string]*task),
	}
}

// Register subscribes the scheduler to the mutation events that reset a
// cart's inactivity clock.
func (s *Scheduler) Register(bus *event.Bus) {
	bus.Subscribe("abandonment-scheduler", s,
		event.KindCartCreated, event.KindItemAdded, event.KindItemRemoved)
}

func (s *Scheduler) OnCartCreated(_ context.Context, e event.CartCreated) error {
	s.Schedule(e.CartID)
	return nil
}

func (s *Scheduler) OnItemAdded(_ context.Context, e event.ItemAddedToCart) error {
	s.Schedule(e.CartID)
	return nil
}

func (s *Scheduler) OnItemRemoved(_ context.Context, e event.ItemRemovedFromCart) error {
	s.Schedule(e.CartID)
	return nil
}

// Schedule installs a timer firing after the inactivity threshold,
// superseding any pending timer for the cart.
func (s *Scheduler) Schedule(cartID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if t, ok := s.pending[cartID]; ok {
		t.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	s.pending[cartID] = &task{
		gen:    gen,
		fireAt: time.Now().Add(s.threshold),
		timer: time.AfterFunc(s.threshold, func() {
			s.fire(cartID, gen)
		}),
	}
}

// Cancel drops the pending timer for the cart, if any. Cancelling a cart
// with no pending task is a no-op, never an error.
func (s *Scheduler) Cancel(cartID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[cartID]; ok {
		t.timer.Stop()
		delete(s.pending, cartID)
	}
}

// PendingTasks reports how many carts currently have a timer installed.
func (s *Scheduler) PendingTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) fire(cartID string, gen uint64) {
	s.mu.Lock()
	t, ok := s.pending[cartID]
	if s.closed || !ok || t.gen != gen {
		// Superseded by a reschedule or cancelled after this timer went off.
		s.mu.Unlock()
		return
	}
	delete(s.pending, cartID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	// The timer ran for the full threshold, so any interaction after the
	// cutoff belongs to a mutation this fire lost a race with.
	err := s.service.MarkCartAbandoned(ctx, cartID, time.Now().Add(-s.threshold))
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		log.Printf("failed to mark cart %s abandoned: %v", cartID, err)
		return
	}
	if err == nil {
		log.Printf("cart %s marked as abandoned", cartID)
	}
}

// Close stops all pending timers. Safe to call once during shutdown.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for cartID, t := range s.pending {
		t.timer.Stop()
		delete(s.pending, cartID)
	}
}
