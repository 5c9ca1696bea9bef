package cart

import (
	"reflect"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Store holds the visitor's cart as last reported by WooCommerce. Writers go
// through SyncWithWooCommerce and ClearWooCommerceSession only.
type Store struct {
	// writeMu orders notifications the same way as the writes they report.
	writeMu   sync.Mutex
	mu        sync.RWMutex
	cart      *domain.Cart
	observers map[int]func(*domain.Cart)
	nextID    int
}

func NewStore() *Store {
	return &Store{observers: make(map[int]func(*domain.Cart))}
}

// Cart returns a copy of the current cart, or nil.
func (s *Store) Cart() *domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

func (s *Store) HasCart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart != nil
}

// SyncWithWooCommerce replaces the whole cart. A cart without items clears
// the store. Syncing the same cart twice notifies observers once.
func (s *Store) SyncWithWooCommerce(c *domain.Cart) {
	if c.IsEmpty() {
		s.ClearWooCommerceSession()
		return
	}
	next := c.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if reflect.DeepEqual(s.cart, next) {
		s.mu.Unlock()
		return
	}
	s.cart = next
	observers := s.snapshotObservers()
	s.mu.Unlock()

	notify(observers, next)
}

// ClearWooCommerceSession drops the cart. Clearing an empty store is a no-op.
func (s *Store) ClearWooCommerceSession() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return
	}
	s.cart = nil
	observers := s.snapshotObservers()
	s.mu.Unlock()

	notify(observers, nil)
}

// Subscribe registers fn to run after every change. fn must not write to the
// store. The returned func removes it.
func (s *Store) Subscribe(fn func(*domain.Cart)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) snapshotObservers() []func(*domain.Cart) {
	out := make([]func(*domain.Cart), 0, len(s.observers))
	for _, fn := range s.observers {
		out = append(out, fn)
	}
	return out
}

func notify(observers []func(*domain.Cart), c *domain.Cart) {
	for _, fn := range observers {
		fn(c.Clone())
	}
}
