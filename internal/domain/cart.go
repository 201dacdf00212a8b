package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidCart = errors.New("invalid cart payload")

// RestaurantRef is the slice of a restaurant that cart queries select.
type RestaurantRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	CuisineType string `json:"cuisineType,omitempty"`
}

// MenuItemRef is display data only. Pricing always comes from CartItem.Price.
type MenuItemRef struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
}

type Cart struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	RestaurantID string          `json:"restaurantId"`
	Restaurant   *RestaurantRef  `json:"restaurant,omitempty"`
	Items        []CartItem      `json:"items"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CreatedAt    Timestamp       `json:"createdAt"`
	UpdatedAt    Timestamp       `json:"updatedAt"`
}

type CartItem struct {
	MenuItemID string          `json:"menuItemId"`
	MenuItem   *MenuItemRef    `json:"menuItem,omitempty"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Name       string          `json:"name"`
}

// Item returns the line for menuItemID, if present.
func (c *Cart) Item(menuItemID string) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.MenuItemID == menuItemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// ItemCount sums quantities over all lines.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Validate checks a server payload before it is allowed into the local store.
// The total is taken as given; it is never recomputed here.
func (c *Cart) Validate(restaurantID string) error {
	if c == nil {
		return nil
	}
	if c.RestaurantID == "" {
		return fmt.Errorf("%w: missing restaurantId", ErrInvalidCart)
	}
	if restaurantID != "" && c.RestaurantID != restaurantID {
		return fmt.Errorf("%w: restaurantId %q, want %q", ErrInvalidCart, c.RestaurantID, restaurantID)
	}
	if c.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: negative totalAmount", ErrInvalidCart)
	}

	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.MenuItemID == "" {
			return fmt.Errorf("%w: item without menuItemId", ErrInvalidCart)
		}
		if _, dup := seen[item.MenuItemID]; dup {
			return fmt.Errorf("%w: duplicate menuItemId %q", ErrInvalidCart, item.MenuItemID)
		}
		seen[item.MenuItemID] = struct{}{}

		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity %d for %q", ErrInvalidCart, item.Quantity, item.MenuItemID)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: negative price for %q", ErrInvalidCart, item.MenuItemID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate stored carts in place.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Restaurant != nil {
		r := *c.Restaurant
		out.Restaurant = &r
	}
	out.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item
		if item.MenuItem != nil {
			m := *item.MenuItem
			out.Items[i].MenuItem = &m
		}
	}
	return &out
}
