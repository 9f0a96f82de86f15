package sweeper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
)

// memoryStore fakes the repository and the cart service at once so the sweep
// can be exercised against a fully in-memory lifecycle.
type memoryStore struct {
	m           sync.Mutex
	carts       map[string]*domain.Cart
	marked      int
	purged      int
	markErr     error
	block       chan struct{} // when set, MarkCartAbandoned waits on it
	touchOnFind bool          // refresh found carts, like a racing request
}

func newMemoryStore() *memoryStore {
	return &memoryStore{carts: make(map[string]*domain.Cart)}
}

func (s *memoryStore) add(id string, lastInteraction time.Time, abandonedAt *time.Time) {
	s.m.Lock()
	defer s.m.Unlock()
	s.carts[id] = &domain.Cart{
		ID:                id,
		SessionID:         "session-" + id,
		LastInteractionAt: lastInteraction,
		AbandonedAt:       abandonedAt,
	}
}

func (s *memoryStore) FindStaleActive(_ context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	var out []*domain.Cart
	for _, cart := range s.carts {
		if cart.AbandonedAt == nil && cart.LastInteractionAt.Before(before) {
			out = append(out, cart)
			if len(out) == limit {
				break
			}
		}
	}
	if s.touchOnFind {
		for _, cart := range out {
			cart.LastInteractionAt = time.Now()
		}
	}
	return out, nil
}

func (s *memoryStore) FindExpiredAbandoned(_ context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	var out []*domain.Cart
	for _, cart := range s.carts {
		if cart.AbandonedAt != nil && cart.AbandonedAt.Before(before) {
			out = append(out, cart)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memoryStore) MarkCartAbandoned(_ context.Context, cartID string, idleSince time.Time) error {
	if s.block != nil {
		<-s.block
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	cart, ok := s.carts[cartID]
	if !ok {
		return nil
	}
	if cart.LastInteractionAt.After(idleSince) {
		return nil
	}
	if cart.AbandonedAt == nil {
		now := time.Now()
		cart.AbandonedAt = &now
		s.marked++
	}
	return nil
}

func (s *memoryStore) PurgeCart(_ context.Context, cartID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	cart, ok := s.carts[cartID]
	if !ok || cart.AbandonedAt == nil {
		return nil
	}
	delete(s.carts, cartID)
	s.purged++
	return nil
}

func (s *memoryStore) counts() (int, int) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.marked, s.purged
}

func (s *memoryStore) cart(id string) *domain.Cart {
	s.m.Lock()
	defer s.m.Unlock()
	return s.carts[id]
}

func TestSweep_MarksStaleActiveCarts(t *testing.T) {
	store := newMemoryStore()
	store.add("stale", time.Now().Add(-4*time.Hour), nil)
	store.add("fresh", time.Now().Add(-time.Hour), nil)

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)
	sut.Sweep(context.Background())

	stale := store.cart("stale")
	require.NotNil(t, stale.AbandonedAt)
	assert.WithinDuration(t, time.Now(), *stale.AbandonedAt, 5*time.Second)

	assert.Nil(t, store.cart("fresh").AbandonedAt)

	marked, purged := store.counts()
	assert.Equal(t, 1, marked)
	assert.Equal(t, 0, purged)
}

func TestSweep_PurgesExpiredAbandonedCarts(t *testing.T) {
	store := newMemoryStore()
	old := time.Now().Add(-8 * 24 * time.Hour)
	store.add("expired", old, &old)

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)
	sut.Sweep(context.Background())

	assert.Nil(t, store.cart("expired"))

	marked, purged := store.counts()
	assert.Equal(t, 0, marked)
	assert.Equal(t, 1, purged)
}

func TestSweep_RetentionBoundary(t *testing.T) {
	store := newMemoryStore()
	// 6 days 23 hours: just inside the retention window
	almost := time.Now().Add(-(6*24 + 23) * time.Hour)
	store.add("kept", almost, &almost)

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)
	sut.Sweep(context.Background())

	assert.NotNil(t, store.cart("kept"), "cart just under 7 days abandoned must survive")
}

func TestSweep_SecondRunChangesNothing(t *testing.T) {
	store := newMemoryStore()
	store.add("stale", time.Now().Add(-4*time.Hour), nil)
	old := time.Now().Add(-8 * 24 * time.Hour)
	store.add("expired", old, &old)

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)

	sut.Sweep(context.Background())
	markedFirst, purgedFirst := store.counts()
	assert.Equal(t, 1, markedFirst)
	assert.Equal(t, 1, purgedFirst)

	sut.Sweep(context.Background())
	markedSecond, purgedSecond := store.counts()
	assert.Equal(t, markedFirst, markedSecond, "second sweep must not re-abandon")
	assert.Equal(t, purgedFirst, purgedSecond, "second sweep must not re-purge")
}

func TestSweep_Batches(t *testing.T) {
	store := newMemoryStore()
	for i := 0; i < 25; i++ {
		store.add(fmt.Sprintf("cart-%d", i), time.Now().Add(-5*time.Hour), nil)
	}

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 10)
	sut.Sweep(context.Background())

	marked, _ := store.counts()
	assert.Equal(t, 25, marked, "all batches must be processed")
}

func TestSweep_MutatedCartStaysActive(t *testing.T) {
	store := newMemoryStore()
	store.add("racing", time.Now().Add(-4*time.Hour), nil)
	store.touchOnFind = true

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)
	sut.Sweep(context.Background())

	// The interaction landed between the query and the mark, so the cart
	// must come out of the sweep still active.
	assert.Nil(t, store.cart("racing").AbandonedAt)
	marked, _ := store.counts()
	assert.Equal(t, 0, marked)
}

func TestSweep_SkipsWhenAlreadyRunning(t *testing.T) {
	store := newMemoryStore()
	store.add("stale", time.Now().Add(-4*time.Hour), nil)
	store.block = make(chan struct{})

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)

	done := make(chan struct{})
	go func() {
		sut.Sweep(context.Background())
		close(done)
	}()

	// Wait until the first sweep is inside phase 1
	require.Eventually(t, func() bool {
		return sut.running.Load()
	}, time.Second, time.Millisecond)

	// The overlapping sweep must return immediately without touching state
	sut.Sweep(context.Background())
	marked, _ := store.counts()
	assert.Equal(t, 0, marked)

	close(store.block)
	<-done

	marked, _ = store.counts()
	assert.Equal(t, 1, marked)
}

func TestSweep_StopsWhenNothingSucceeds(t *testing.T) {
	store := newMemoryStore()
	store.add("stale", time.Now().Add(-4*time.Hour), nil)
	store.markErr = fmt.Errorf("mongo unavailable")

	sut := New(store, store, 3*time.Hour, 7*24*time.Hour, 100)

	done := make(chan struct{})
	go func() {
		sut.Sweep(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep kept retrying a failing batch instead of bailing out")
	}
}
