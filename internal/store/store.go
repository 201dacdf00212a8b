// Package store holds the session's restaurant-keyed cart mirror. It has no
// authority: every entry is eventually replaced by the next server read.
package store

import (
	"sync"

	"github.com/fjod/dinecart/internal/domain"
)

// Epoch identifies one lifetime of a restaurant entry.
type Epoch struct {
	generation uint64
	clears     uint64
}

type Store struct {
	mu         sync.RWMutex
	carts      map[string]*domain.Cart // a nil value means the server reported no cart
	clears     map[string]uint64
	generation uint64
}

func New() *Store {
	return &Store{
		carts:  make(map[string]*domain.Cart),
		clears: make(map[string]uint64),
	}
}

// Epoch changes on Clear and Reset. Capture it before a request and pass it
// to Apply.
func (s *Store) Epoch(restaurantID string) Epoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochLocked(restaurantID)
}

func (s *Store) epochLocked(restaurantID string) Epoch {
	return Epoch{generation: s.generation, clears: s.clears[restaurantID]}
}

// Set replaces the entry unconditionally.
func (s *Store) Set(restaurantID string, cart *domain.Cart) {
	s.mu.Lock()
	s.carts[restaurantID] = cart.Clone()
	s.mu.Unlock()
}

// Apply replaces the entry with a server response unless the entry was
// cleared after the request was issued, or the response is older than what
// is already stored.
func (s *Store) Apply(restaurantID string, cart *domain.Cart, epoch Epoch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epochLocked(restaurantID) != epoch {
		return false
	}
	if cur := s.carts[restaurantID]; cur != nil && cart != nil {
		if !cur.UpdatedAt.IsZero() && !cart.UpdatedAt.IsZero() && cart.UpdatedAt.Before(cur.UpdatedAt.Time) {
			return false
		}
	}
	s.carts[restaurantID] = cart.Clone()
	return true
}

// Clear removes the entry (absent, not empty) and starts a new epoch.
func (s *Store) Clear(restaurantID string) {
	s.mu.Lock()
	delete(s.carts, restaurantID)
	s.clears[restaurantID]++
	s.mu.Unlock()
}

// Get returns a copy of the stored cart, or nil when absent or empty.
func (s *Store) Get(restaurantID string) *domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.carts[restaurantID].Clone()
}

// Lookup distinguishes an absent entry from an explicit empty one.
func (s *Store) Lookup(restaurantID string) (*domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[restaurantID]
	return c.Clone(), ok
}

func (s *Store) HasItem(restaurantID, menuItemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.carts[restaurantID].Item(menuItemID)
	return ok
}

// TotalItems sums quantities for the restaurant; 0 when nothing is stored.
func (s *Store) TotalItems(restaurantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.carts[restaurantID].ItemCount()
}

func (s *Store) Restaurants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.carts))
	for id := range s.carts {
		ids = append(ids, id)
	}
	return ids
}

// Reset drops every entry, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.carts = make(map[string]*domain.Cart)
	s.generation++
	s.mu.Unlock()
}
