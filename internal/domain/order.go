package domain

import (
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OrderItem struct {
	MenuItemID string          `json:"menuItemId"`
	MenuItem   *MenuItemRef    `json:"menuItem,omitempty"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Name       string          `json:"name"`
}

type Order struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"userId"`
	RestaurantID        string          `json:"restaurantId"`
	Restaurant          *RestaurantRef  `json:"restaurant,omitempty"`
	Items               []OrderItem     `json:"items"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	Status              OrderStatus     `json:"status"`
	DeliveryAddress     string          `json:"deliveryAddress,omitempty"`
	DeliveryLocation    *Location       `json:"deliveryLocation,omitempty"`
	SpecialInstructions string          `json:"specialInstructions,omitempty"`
	CreatedAt           Timestamp       `json:"createdAt"`
	UpdatedAt           Timestamp       `json:"updatedAt"`
}

type CreateOrderInput struct {
	RestaurantID        string    `json:"restaurantId"`
	DeliveryAddress     string    `json:"deliveryAddress,omitempty"`
	DeliveryLocation    *Location `json:"deliveryLocation,omitempty"`
	SpecialInstructions string    `json:"specialInstructions,omitempty"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type AuthPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
