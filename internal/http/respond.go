package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/dinecart/internal/cartsync"
	"github.com/fjod/dinecart/internal/checkout"
	"github.com/fjod/dinecart/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CartResponseDTO is what every cart endpoint returns. Cart is null when
// the user has no cart at the restaurant.
type CartResponseDTO struct {
	RestaurantID string       `json:"restaurantId"`
	Cart         *domain.Cart `json:"cart"`
	ItemCount    int          `json:"itemCount"`
	Outcome      string       `json:"outcome,omitempty"`
	InFlight     []string     `json:"inFlight,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleSyncError converts cart and checkout errors to HTTP status codes.
func handleSyncError(w http.ResponseWriter, err error) {
	kind := cartsync.KindOf(err)
	if kind == 0 {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var httpStatus int
	var code string

	switch kind {
	case cartsync.KindUnauthenticated:
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case cartsync.KindValidation:
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
		if errors.Is(err, checkout.ErrCheckoutInProgress) {
			httpStatus = http.StatusConflict
			code = "checkout_in_progress"
		}
	case cartsync.KindStaleState:
		httpStatus = http.StatusNotFound
		code = "not_found"
	case cartsync.KindNetwork:
		httpStatus = http.StatusBadGateway
		code = "upstream_unavailable"
	default:
		httpStatus = http.StatusUnprocessableEntity
		code = "rejected"
	}

	respondError(w, httpStatus, code, cartsync.Wrap("", err).UserMessage())
}
