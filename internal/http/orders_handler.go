package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/dinecart/internal/domain"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	timeout time.Duration
}

func NewOrdersHandler(timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{timeout: timeout}
}

type PlaceOrderRequestDTO struct {
	DeliveryAddress     string           `json:"deliveryAddress"`
	DeliveryLocation    *domain.Location `json:"deliveryLocation,omitempty"`
	SpecialInstructions string           `json:"specialInstructions,omitempty"`
}

// POST /api/v1/checkout/{restaurant_id}
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := ws.Checkout.PlaceOrder(ctx, chi.URLParam(r, "restaurant_id"), domain.CreateOrderInput{
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryLocation:    req.DeliveryLocation,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		handleSyncError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

type OrdersResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
}

// GET /api/v1/orders?limit=&offset=
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	orders, err := ws.Checkout.Orders(ctx, limit, offset)
	if err != nil {
		handleSyncError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	respondJSON(w, http.StatusOK, OrdersResponseDTO{Orders: orders})
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id is required")
		return
	}

	order, err := ws.Checkout.GetOrder(ctx, orderID)
	if err != nil {
		handleSyncError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	order, err := ws.Checkout.CancelOrder(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleSyncError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
