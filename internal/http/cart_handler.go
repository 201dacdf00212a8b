package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/dinecart/internal/cartsync"
	"github.com/fjod/dinecart/internal/workspace"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	timeout time.Duration
}

func NewCartHandler(timeout time.Duration) *CartHandler {
	return &CartHandler{timeout: timeout}
}

type AddItemRequestDTO struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CountResponseDTO struct {
	RestaurantID string `json:"restaurantId"`
	ItemCount    int    `json:"itemCount"`
}

// POST /api/v1/carts/{restaurant_id}/load
func (h *CartHandler) Load(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, func(ctx context.Context, ws *workspace.Workspace, rid string) (cartsync.Outcome, error) {
		return ws.Syncer.Load(ctx, rid)
	})
}

// GET /api/v1/carts/{restaurant_id}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(ws, chi.URLParam(r, "restaurant_id"), ""))
}

// GET /api/v1/carts/{restaurant_id}/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	rid := chi.URLParam(r, "restaurant_id")
	respondJSON(w, http.StatusOK, CountResponseDTO{
		RestaurantID: rid,
		ItemCount:    ws.Syncer.GetTotalItemCount(rid),
	})
}

// POST /api/v1/carts/{restaurant_id}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.MenuItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_menu_item_id", "menuItemId is required")
		return
	}

	h.sync(w, r, func(ctx context.Context, ws *workspace.Workspace, rid string) (cartsync.Outcome, error) {
		return ws.Syncer.AddItem(ctx, rid, req.MenuItemID, req.Quantity)
	})
}

// PUT /api/v1/carts/{restaurant_id}/items/{menu_item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	mid := chi.URLParam(r, "menu_item_id")
	h.sync(w, r, func(ctx context.Context, ws *workspace.Workspace, rid string) (cartsync.Outcome, error) {
		return ws.Syncer.UpdateQuantity(ctx, rid, mid, *req.Quantity)
	})
}

// DELETE /api/v1/carts/{restaurant_id}/items/{menu_item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mid := chi.URLParam(r, "menu_item_id")
	h.sync(w, r, func(ctx context.Context, ws *workspace.Workspace, rid string) (cartsync.Outcome, error) {
		return ws.Syncer.RemoveItem(ctx, rid, mid)
	})
}

// DELETE /api/v1/carts/{restaurant_id}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, func(ctx context.Context, ws *workspace.Workspace, rid string) (cartsync.Outcome, error) {
		return ws.Syncer.Clear(ctx, rid)
	})
}

// POST /api/v1/carts/load-all
func (h *CartHandler) LoadAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if _, err := ws.Syncer.LoadAll(ctx); err != nil {
		handleSyncError(w, err)
		return
	}

	rids := ws.Store.Restaurants()
	carts := make([]CartResponseDTO, 0, len(rids))
	for _, rid := range rids {
		carts = append(carts, cartResponse(ws, rid, ""))
	}
	respondJSON(w, http.StatusOK, carts)
}

// sync runs one syncer operation and answers with the resulting cart.
func (h *CartHandler) sync(w http.ResponseWriter, r *http.Request,
	op func(context.Context, *workspace.Workspace, string) (cartsync.Outcome, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	rid := chi.URLParam(r, "restaurant_id")
	outcome, err := op(ctx, ws, rid)
	if err != nil {
		handleSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(ws, rid, outcome.String()))
}

func cartResponse(ws *workspace.Workspace, rid, outcome string) CartResponseDTO {
	return CartResponseDTO{
		RestaurantID: rid,
		Cart:         ws.Syncer.GetCart(rid),
		ItemCount:    ws.Syncer.GetTotalItemCount(rid),
		Outcome:      outcome,
		InFlight:     ws.Syncer.InFlight(rid),
	}
}
