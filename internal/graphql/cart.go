package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/dinecart/internal/domain"
	"github.com/fjod/dinecart/internal/querycache"
)

type TokenSource interface {
	Token() string
}

// CartService is the remote cart API for one user. Every cart it receives is
// also written to the query cache under that restaurant's GetCart entry.
type CartService struct {
	client *Client
	cache  querycache.Cache
	scope  string
	tokens TokenSource
	log    *slog.Logger
}

func NewCartService(client *Client, cache querycache.Cache, scope string, tokens TokenSource, log *slog.Logger) *CartService {
	return &CartService{
		client: client,
		cache:  cache,
		scope:  scope,
		tokens: tokens,
		log:    log,
	}
}

func (s *CartService) FetchCart(ctx context.Context, restaurantID string) (*domain.Cart, error) {
	var data struct {
		GetCart *domain.Cart `json:"getCart"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         getCartQuery,
		OperationName: opGetCart,
		Variables:     map[string]any{"restaurantId": restaurantID},
	}, &data)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, opGetCart, restaurantID, data.GetCart)
}

func (s *CartService) UserCarts(ctx context.Context) ([]*domain.Cart, error) {
	var data struct {
		GetUserCarts []*domain.Cart `json:"getUserCarts"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         getUserCartsQuery,
		OperationName: opGetUserCarts,
	}, &data)
	if err != nil {
		return nil, err
	}

	carts := make([]*domain.Cart, 0, len(data.GetUserCarts))
	for _, c := range data.GetUserCarts {
		if c == nil {
			continue
		}
		accepted, err := s.accept(ctx, opGetUserCarts, c.RestaurantID, c)
		if err != nil {
			return nil, err
		}
		carts = append(carts, accepted)
	}
	return carts, nil
}

func (s *CartService) AddToCart(ctx context.Context, restaurantID, menuItemID string, quantity int) (*domain.Cart, error) {
	var data struct {
		AddToCart *domain.Cart `json:"addToCart"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         addToCartMutation,
		OperationName: opAddToCart,
		Variables: map[string]any{
			"restaurantId": restaurantID,
			"menuItemId":   menuItemID,
			"quantity":     quantity,
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	return s.acceptMutation(ctx, opAddToCart, restaurantID, data.AddToCart)
}

func (s *CartService) UpdateCartItem(ctx context.Context, restaurantID, menuItemID string, quantity int) (*domain.Cart, error) {
	var data struct {
		UpdateCartItem *domain.Cart `json:"updateCartItem"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         updateCartItemMutation,
		OperationName: opUpdateCartItem,
		Variables: map[string]any{
			"restaurantId": restaurantID,
			"menuItemId":   menuItemID,
			"quantity":     quantity,
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	return s.acceptMutation(ctx, opUpdateCartItem, restaurantID, data.UpdateCartItem)
}

func (s *CartService) RemoveFromCart(ctx context.Context, restaurantID, menuItemID string) (*domain.Cart, error) {
	var data struct {
		RemoveFromCart *domain.Cart `json:"removeFromCart"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         removeFromCartMutation,
		OperationName: opRemoveFromCart,
		Variables: map[string]any{
			"restaurantId": restaurantID,
			"menuItemId":   menuItemID,
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	return s.acceptMutation(ctx, opRemoveFromCart, restaurantID, data.RemoveFromCart)
}

// ClearCart returns the server's boolean. The cached GetCart entry becomes
// null either way once the call succeeds.
func (s *CartService) ClearCart(ctx context.Context, restaurantID string) (bool, error) {
	var data struct {
		ClearCart *bool `json:"clearCart"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         clearCartMutation,
		OperationName: opClearCart,
		Variables:     map[string]any{"restaurantId": restaurantID},
	}, &data)
	if err != nil && !errors.Is(err, ErrMalformedResponse) {
		return false, err
	}

	s.WriteCachedCart(ctx, restaurantID, nil)
	return data.ClearCart != nil && *data.ClearCart, nil
}

// CachedCart returns the last cached GetCart result. ok is false on a miss.
func (s *CartService) CachedCart(ctx context.Context, restaurantID string) (*domain.Cart, bool) {
	raw, err := s.cache.Get(ctx, s.cartKey(restaurantID))
	if err != nil {
		if !errors.Is(err, querycache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "error", err)
		}
		return nil, false
	}

	var c *domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		s.log.WarnContext(ctx, "cached cart unreadable", "restaurant_id", restaurantID, "error", err)
		return nil, false
	}
	if err := c.Validate(restaurantID); err != nil {
		return nil, false
	}
	return c, true
}

// WriteCachedCart overwrites the GetCart entry; nil records "no cart".
func (s *CartService) WriteCachedCart(ctx context.Context, restaurantID string, c *domain.Cart) {
	raw, err := json.Marshal(c)
	if err != nil {
		s.log.WarnContext(ctx, "marshal cart failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, s.cartKey(restaurantID), raw); err != nil {
		s.log.WarnContext(ctx, "cache set error", "error", err)
	}
}

func (s *CartService) EvictCachedCart(ctx context.Context, restaurantID string) {
	if err := s.cache.Delete(ctx, s.cartKey(restaurantID)); err != nil {
		s.log.WarnContext(ctx, "cache invalidate error", "error", err)
	}
}

func (s *CartService) cartKey(restaurantID string) string {
	return querycache.Key(s.scope, opGetCart, map[string]any{"restaurantId": restaurantID})
}

func (s *CartService) acceptMutation(ctx context.Context, op, restaurantID string, c *domain.Cart) (*domain.Cart, error) {
	if c == nil {
		return nil, fmt.Errorf("%s: %w: no cart returned", op, ErrMalformedResponse)
	}
	return s.accept(ctx, op, restaurantID, c)
}

func (s *CartService) accept(ctx context.Context, op, restaurantID string, c *domain.Cart) (*domain.Cart, error) {
	if err := c.Validate(restaurantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.WriteCachedCart(ctx, restaurantID, c)
	return c, nil
}
