// Package checkout turns a session's cart for one restaurant into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/fjod/dinecart/internal/cartsync"
	"github.com/fjod/dinecart/internal/domain"
	"github.com/fjod/dinecart/internal/notify"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrAddressRequired    = errors.New("delivery address is required")
	ErrInvalidLocation    = errors.New("delivery location is invalid")
	ErrCheckoutInProgress = errors.New("checkout already in progress for this restaurant")
)

const msgOrderPlaced = "Order placed successfully!"

type Orders interface {
	CreateOrder(ctx context.Context, input domain.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UserOrders(ctx context.Context, limit, offset int) ([]*domain.Order, error)
}

// Carts is the part of the cart syncer checkout needs.
type Carts interface {
	GetCart(restaurantID string) *domain.Cart
	Forget(ctx context.Context, restaurantID string)
}

type Service struct {
	orders   Orders
	carts    Carts
	auth     cartsync.Authenticator
	notifier notify.Notifier
	log      *slog.Logger
	expired  func()

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewService(orders Orders, carts Carts, auth cartsync.Authenticator, n notify.Notifier, log *slog.Logger, onExpired func()) *Service {
	return &Service{
		orders:   orders,
		carts:    carts,
		auth:     auth,
		notifier: n,
		log:      log,
		expired:  onExpired,
		pending:  make(map[string]struct{}),
	}
}

// PlaceOrder orders the current cart of restaurantID. On success the local
// cart and its cached entry are dropped.
func (s *Service) PlaceOrder(ctx context.Context, restaurantID string, input domain.CreateOrderInput) (*domain.Order, error) {
	const op = "place_order"

	if !s.auth.Authenticated() {
		return nil, s.fail(ctx, &cartsync.Error{Kind: cartsync.KindUnauthenticated, Op: op, RestaurantID: restaurantID, Err: cartsync.ErrUnauthenticated})
	}
	input.RestaurantID = restaurantID
	input.DeliveryAddress = strings.TrimSpace(input.DeliveryAddress)
	if err := validate(input); err != nil {
		return nil, s.fail(ctx, &cartsync.Error{Kind: cartsync.KindValidation, Op: op, RestaurantID: restaurantID, Err: err})
	}

	cart := s.carts.GetCart(restaurantID)
	if cart == nil || len(cart.Items) == 0 {
		return nil, s.fail(ctx, &cartsync.Error{Kind: cartsync.KindValidation, Op: op, RestaurantID: restaurantID, Err: ErrEmptyCart})
	}

	if !s.begin(restaurantID) {
		s.log.InfoContext(ctx, "duplicate checkout request", "restaurant_id", restaurantID)
		return nil, &cartsync.Error{Kind: cartsync.KindValidation, Op: op, RestaurantID: restaurantID, Err: ErrCheckoutInProgress}
	}
	defer s.end(restaurantID)

	order, err := s.orders.CreateOrder(ctx, input)
	if err != nil {
		e := cartsync.Wrap(op, err)
		e.RestaurantID = restaurantID
		return nil, s.fail(ctx, e)
	}

	s.carts.Forget(ctx, restaurantID)
	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"restaurant_id", restaurantID,
		"total", order.TotalAmount.String(),
		"items", len(order.Items),
	)
	s.notifier.Notify(notify.LevelSuccess, msgOrderPlaced)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if !s.auth.Authenticated() {
		return nil, &cartsync.Error{Kind: cartsync.KindUnauthenticated, Op: "get_order", Err: cartsync.ErrUnauthenticated}
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.classified(ctx, "get_order", err)
	}
	return order, nil
}

// Orders lists the user's order history. Negative paging is rejected.
func (s *Service) Orders(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	if !s.auth.Authenticated() {
		return nil, &cartsync.Error{Kind: cartsync.KindUnauthenticated, Op: "list_orders", Err: cartsync.ErrUnauthenticated}
	}
	if limit < 0 || offset < 0 {
		return nil, &cartsync.Error{Kind: cartsync.KindValidation, Op: "list_orders", Err: fmt.Errorf("%w: limit and offset must not be negative", cartsync.ErrInvalidArgument)}
	}
	orders, err := s.orders.UserOrders(ctx, limit, offset)
	if err != nil {
		return nil, s.classified(ctx, "list_orders", err)
	}
	return orders, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if !s.auth.Authenticated() {
		return nil, &cartsync.Error{Kind: cartsync.KindUnauthenticated, Op: "cancel_order", Err: cartsync.ErrUnauthenticated}
	}
	order, err := s.orders.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, s.fail(ctx, cartsync.Wrap("cancel_order", err))
	}
	s.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Order %s cancelled", order.ID))
	return order, nil
}

// classified is fail without a user notice; order lookups are polled.
func (s *Service) classified(ctx context.Context, op string, err error) *cartsync.Error {
	e := cartsync.Wrap(op, err)
	s.log.WarnContext(ctx, "order request failed", "op", op, "kind", e.Kind.String(), "error", err)
	s.expire(e)
	return e
}

func (s *Service) fail(ctx context.Context, e *cartsync.Error) *cartsync.Error {
	s.log.WarnContext(ctx, "checkout failed", "op", e.Op, "kind", e.Kind.String(), "restaurant_id", e.RestaurantID, "error", e.Err)
	s.expire(e)
	s.notifier.Notify(notify.LevelError, e.UserMessage())
	return e
}

func (s *Service) expire(e *cartsync.Error) {
	if e.Kind == cartsync.KindUnauthenticated && !errors.Is(e.Err, cartsync.ErrUnauthenticated) && s.expired != nil {
		s.expired()
	}
}

func (s *Service) begin(restaurantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.pending[restaurantID]; busy {
		return false
	}
	s.pending[restaurantID] = struct{}{}
	return true
}

func (s *Service) end(restaurantID string) {
	s.mu.Lock()
	delete(s.pending, restaurantID)
	s.mu.Unlock()
}

func validate(input domain.CreateOrderInput) error {
	if input.DeliveryAddress == "" {
		return ErrAddressRequired
	}
	if loc := input.DeliveryLocation; loc != nil {
		if !finite(loc.Lat) || !finite(loc.Lng) || math.Abs(loc.Lat) > 90 || math.Abs(loc.Lng) > 180 {
			return ErrInvalidLocation
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
