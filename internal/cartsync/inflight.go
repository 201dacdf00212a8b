package cartsync

import "sync"

// inflight tracks menu items with a mutation on the wire, per restaurant.
// A second acquire for the same key fails instead of queueing.
type inflight struct {
	mu    sync.Mutex
	items map[string]map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{items: make(map[string]map[string]struct{})}
}

func (f *inflight) acquire(restaurantID, menuItemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.items[restaurantID]
	if !ok {
		set = make(map[string]struct{})
		f.items[restaurantID] = set
	}
	if _, busy := set[menuItemID]; busy {
		return false
	}
	set[menuItemID] = struct{}{}
	return true
}

func (f *inflight) release(restaurantID, menuItemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.items[restaurantID]
	delete(set, menuItemID)
	if len(set) == 0 {
		delete(f.items, restaurantID)
	}
}

func (f *inflight) busy(restaurantID, menuItemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[restaurantID][menuItemID]
	return ok
}

func (f *inflight) list(restaurantID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.items[restaurantID]))
	for id := range f.items[restaurantID] {
		out = append(out, id)
	}
	return out
}

// sequence counts mutations issued per restaurant, so a background read
// can tell whether a newer write went out while it was on the wire.
type sequence struct {
	mu sync.Mutex
	n  map[string]uint64
}

func newSequence() *sequence {
	return &sequence{n: make(map[string]uint64)}
}

func (q *sequence) next(restaurantID string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.n[restaurantID]++
	return q.n[restaurantID]
}

func (q *sequence) current(restaurantID string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n[restaurantID]
}
