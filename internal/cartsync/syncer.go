// Package cartsync keeps a session's local cart store consistent with the
// remote cart API. Mutations are de-duplicated per menu item, guarded
// against stale local state, and reconciled by refetching when the server
// reports that the cart changed underneath them.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/dinecart/internal/domain"
	"github.com/fjod/dinecart/internal/notify"
	"github.com/fjod/dinecart/internal/store"
	"golang.org/x/sync/singleflight"
)

type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeApplied
	OutcomeSkipped
	OutcomeReconciled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeReconciled:
		return "reconciled"
	default:
		return "failed"
	}
}

// RemoteCart is the server side of the cart.
type RemoteCart interface {
	FetchCart(ctx context.Context, restaurantID string) (*domain.Cart, error)
	UserCarts(ctx context.Context) ([]*domain.Cart, error)
	AddToCart(ctx context.Context, restaurantID, menuItemID string, quantity int) (*domain.Cart, error)
	UpdateCartItem(ctx context.Context, restaurantID, menuItemID string, quantity int) (*domain.Cart, error)
	RemoveFromCart(ctx context.Context, restaurantID, menuItemID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, restaurantID string) (bool, error)
}

// CartCache is implemented by remotes that keep a query cache of GetCart.
type CartCache interface {
	CachedCart(ctx context.Context, restaurantID string) (*domain.Cart, bool)
	WriteCachedCart(ctx context.Context, restaurantID string, c *domain.Cart)
}

type Authenticator interface {
	Authenticated() bool
}

type Options struct {
	// RefetchAfterMutation re-reads GetCart in the background after a
	// successful add/update/remove.
	RefetchAfterMutation bool
	RefetchTimeout       time.Duration
	// OnUnauthenticated runs when the server rejects the session.
	OnUnauthenticated func()
}

type Syncer struct {
	remote   RemoteCart
	cache    CartCache
	store    *store.Store
	auth     Authenticator
	notifier notify.Notifier
	log      *slog.Logger
	opts     Options

	inflight *inflight
	seq      *sequence
	group    singleflight.Group
	wg       sync.WaitGroup
}

func New(remote RemoteCart, st *store.Store, auth Authenticator, n notify.Notifier, log *slog.Logger, opts Options) *Syncer {
	if opts.RefetchTimeout <= 0 {
		opts.RefetchTimeout = 10 * time.Second
	}
	s := &Syncer{
		remote:   remote,
		store:    st,
		auth:     auth,
		notifier: n,
		log:      log,
		opts:     opts,
		inflight: newInflight(),
		seq:      newSequence(),
	}
	if c, ok := remote.(CartCache); ok {
		s.cache = c
	}
	return s
}

// Load replaces the store entry for restaurantID with the server's cart.
func (s *Syncer) Load(ctx context.Context, restaurantID string) (Outcome, error) {
	if restaurantID == "" || !s.auth.Authenticated() {
		return OutcomeSkipped, nil
	}

	epoch := s.store.Epoch(restaurantID)
	if s.cache != nil {
		if _, present := s.store.Lookup(restaurantID); !present {
			if cached, ok := s.cache.CachedCart(ctx, restaurantID); ok {
				s.store.Apply(restaurantID, cached, epoch)
			}
		}
	}

	cart, err := s.remote.FetchCart(ctx, restaurantID)
	if err != nil {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "load", RestaurantID: restaurantID, Err: err})
	}
	if !s.store.Apply(restaurantID, cart, epoch) {
		s.log.DebugContext(ctx, "load result discarded", "restaurant_id", restaurantID)
	}
	return OutcomeApplied, nil
}

// LoadAll loads every cart the user has. Restaurants missing from the
// response keep whatever the store holds.
func (s *Syncer) LoadAll(ctx context.Context) (Outcome, error) {
	if !s.auth.Authenticated() {
		return OutcomeSkipped, nil
	}

	carts, err := s.remote.UserCarts(ctx)
	if err != nil {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "load_all", Err: err})
	}
	for _, c := range carts {
		if c == nil {
			continue
		}
		s.store.Apply(c.RestaurantID, c, s.store.Epoch(c.RestaurantID))
	}
	return OutcomeApplied, nil
}

func (s *Syncer) AddItem(ctx context.Context, restaurantID, menuItemID string, quantity int) (Outcome, error) {
	if !s.auth.Authenticated() {
		s.notifier.Notify(notify.LevelError, msgLoginToAdd)
		return OutcomeFailed, &Error{Kind: KindUnauthenticated, Op: "add_item", RestaurantID: restaurantID, MenuItemID: menuItemID, Err: ErrUnauthenticated}
	}
	if quantity == 0 {
		quantity = 1
	}
	if err := checkArgs(restaurantID, menuItemID, quantity); err != nil {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "add_item", RestaurantID: restaurantID, MenuItemID: menuItemID, Err: err})
	}

	epoch := s.store.Epoch(restaurantID)
	s.seq.next(restaurantID)
	cart, err := s.remote.AddToCart(ctx, restaurantID, menuItemID, quantity)
	if err != nil {
		e := &Error{Op: "add_item", RestaurantID: restaurantID, MenuItemID: menuItemID, Err: err}
		// nothing local to reconcile for an add
		if classify(err) == KindStaleState {
			e.Kind = KindServer
		}
		return OutcomeFailed, s.fail(ctx, e)
	}

	s.store.Apply(restaurantID, cart, epoch)
	s.notifier.Notify(notify.LevelSuccess, msgItemAdded)
	s.refetch(restaurantID, true)
	return OutcomeApplied, nil
}

func (s *Syncer) UpdateQuantity(ctx context.Context, restaurantID, menuItemID string, quantity int) (Outcome, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, restaurantID, menuItemID)
	}
	return s.mutateItem(ctx, "update_quantity", restaurantID, menuItemID, "",
		func(ctx context.Context) (*domain.Cart, error) {
			return s.remote.UpdateCartItem(ctx, restaurantID, menuItemID, quantity)
		})
}

func (s *Syncer) RemoveItem(ctx context.Context, restaurantID, menuItemID string) (Outcome, error) {
	return s.mutateItem(ctx, "remove_item", restaurantID, menuItemID, msgItemRemoved,
		func(ctx context.Context) (*domain.Cart, error) {
			return s.remote.RemoveFromCart(ctx, restaurantID, menuItemID)
		})
}

// mutateItem runs one item mutation through the in-flight set and the
// stale guard. The marker is released on every return path.
func (s *Syncer) mutateItem(ctx context.Context, op, restaurantID, menuItemID, success string,
	call func(context.Context) (*domain.Cart, error)) (Outcome, error) {
	if err := checkArgs(restaurantID, menuItemID, 1); err != nil {
		return OutcomeFailed, s.fail(ctx, &Error{Op: op, RestaurantID: restaurantID, MenuItemID: menuItemID, Err: err})
	}
	if !s.auth.Authenticated() {
		return OutcomeFailed, s.fail(ctx, &Error{Op: op, RestaurantID: restaurantID, MenuItemID: menuItemID, Err: ErrUnauthenticated})
	}

	if !s.inflight.acquire(restaurantID, menuItemID) {
		s.log.DebugContext(ctx, "mutation already in flight", "op", op, "restaurant_id", restaurantID, "menu_item_id", menuItemID)
		return OutcomeSkipped, nil
	}
	defer s.inflight.release(restaurantID, menuItemID)

	if !s.store.HasItem(restaurantID, menuItemID) {
		s.notifier.Notify(notify.LevelInfo, msgItemGone)
		s.reconcile(ctx, restaurantID)
		return OutcomeReconciled, nil
	}

	epoch := s.store.Epoch(restaurantID)
	s.seq.next(restaurantID)
	cart, err := call(ctx)
	if err != nil {
		if classify(err) == KindStaleState {
			s.log.InfoContext(ctx, "cart changed on server", "op", op, "restaurant_id", restaurantID, "menu_item_id", menuItemID, "error", err)
			s.notifier.Notify(notify.LevelInfo, msgCartUpdated)
			s.reconcile(ctx, restaurantID)
			return OutcomeReconciled, nil
		}
		return OutcomeFailed, s.fail(ctx, &Error{Op: op, RestaurantID: restaurantID, MenuItemID: menuItemID, Err: err})
	}

	if !s.store.Apply(restaurantID, cart, epoch) {
		s.log.DebugContext(ctx, "mutation result discarded", "op", op, "restaurant_id", restaurantID)
	}
	if success != "" {
		s.notifier.Notify(notify.LevelSuccess, success)
	}
	s.refetch(restaurantID, true)
	return OutcomeApplied, nil
}

// Clear empties the cart on the server and drops the local entry.
func (s *Syncer) Clear(ctx context.Context, restaurantID string) (Outcome, error) {
	if restaurantID == "" {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "clear", Err: fmt.Errorf("%w: restaurant id is required", ErrInvalidArgument)})
	}
	if !s.auth.Authenticated() {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "clear", RestaurantID: restaurantID, Err: ErrUnauthenticated})
	}

	if _, err := s.remote.ClearCart(ctx, restaurantID); err != nil {
		return OutcomeFailed, s.fail(ctx, &Error{Op: "clear", RestaurantID: restaurantID, Err: err})
	}
	s.store.Clear(restaurantID)
	s.notifier.Notify(notify.LevelSuccess, msgCartCleared)
	return OutcomeApplied, nil
}

// Forget drops the local cart and its cached GetCart entry without calling
// the server, then refreshes the cache in the background. Used when the
// cart was consumed elsewhere, e.g. by an order.
func (s *Syncer) Forget(ctx context.Context, restaurantID string) {
	s.store.Clear(restaurantID)
	if s.cache != nil {
		s.cache.WriteCachedCart(ctx, restaurantID, nil)
	}
	s.refetch(restaurantID, false)
}

func (s *Syncer) GetCart(restaurantID string) *domain.Cart {
	return s.store.Get(restaurantID)
}

func (s *Syncer) GetTotalItemCount(restaurantID string) int {
	return s.store.TotalItems(restaurantID)
}

// Mutating reports whether an update or removal of the item is in flight.
func (s *Syncer) Mutating(restaurantID, menuItemID string) bool {
	return s.inflight.busy(restaurantID, menuItemID)
}

func (s *Syncer) InFlight(restaurantID string) []string {
	return s.inflight.list(restaurantID)
}

// Wait blocks until background refetches have finished.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) reconcile(ctx context.Context, restaurantID string) {
	// Load notifies its own failures.
	_, _ = s.Load(ctx, restaurantID)
}

// refetch re-reads GetCart off the request path. Refetches of one
// restaurant scheduled between the same two mutations share a single call,
// and a result is dropped when a mutation went out after it was scheduled.
// When toStore is false only the query cache is refreshed.
func (s *Syncer) refetch(restaurantID string, toStore bool) {
	if toStore && !s.opts.RefetchAfterMutation {
		return
	}
	if !s.auth.Authenticated() {
		return
	}

	epoch := s.store.Epoch(restaurantID)
	seq := s.seq.current(restaurantID)
	key := fmt.Sprintf("%s#%d", restaurantID, seq)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefetchTimeout)
		defer cancel()

		v, err, _ := s.group.Do(key, func() (any, error) {
			return s.remote.FetchCart(ctx, restaurantID)
		})
		if err != nil {
			s.log.Warn("background refetch failed", "restaurant_id", restaurantID, "error", err)
			return
		}
		if !toStore {
			return
		}
		if s.seq.current(restaurantID) != seq {
			s.log.Debug("refetch result superseded", "restaurant_id", restaurantID)
			return
		}
		s.store.Apply(restaurantID, v.(*domain.Cart), epoch)
	}()
}

// fail classifies, logs and notifies an error, and returns it.
func (s *Syncer) fail(ctx context.Context, e *Error) *Error {
	if e.Kind == 0 {
		e.Kind = classify(e.Err)
	}

	attrs := []any{"op", e.Op, "kind", e.Kind.String(), "error", e.Err}
	if e.RestaurantID != "" {
		attrs = append(attrs, "restaurant_id", e.RestaurantID)
	}
	if e.MenuItemID != "" {
		attrs = append(attrs, "menu_item_id", e.MenuItemID)
	}

	switch e.Kind {
	case KindNetwork, KindServer:
		s.log.ErrorContext(ctx, "cart operation failed", attrs...)
	default:
		s.log.WarnContext(ctx, "cart operation failed", attrs...)
	}

	if e.Kind == KindUnauthenticated && !errors.Is(e.Err, ErrUnauthenticated) {
		s.store.Reset()
		if s.opts.OnUnauthenticated != nil {
			s.opts.OnUnauthenticated()
		}
	}

	s.notifier.Notify(notify.LevelError, e.UserMessage())
	return e
}

func checkArgs(restaurantID, menuItemID string, quantity int) error {
	switch {
	case restaurantID == "":
		return fmt.Errorf("%w: restaurant id is required", ErrInvalidArgument)
	case menuItemID == "":
		return fmt.Errorf("%w: menu item id is required", ErrInvalidArgument)
	case quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidArgument)
	}
	return nil
}
