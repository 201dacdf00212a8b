package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/dinecart/internal/graphql"
	"github.com/fjod/dinecart/internal/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Client             *graphql.Client
	Registry           *workspace.Registry
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Logger             *slog.Logger
}

type HealthResponseDTO struct {
	Status     string `json:"status"`
	Workspaces int    `json:"workspaces"`
}

func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(cfg.RequestTimeout)
	sessionHandler := NewSessionHandler(cfg.Client, cfg.Registry, cfg.RequestTimeout, cfg.Logger)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponseDTO{Status: "ok", Workspaces: cfg.Registry.Len()})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/login", sessionHandler.Login)
		r.Post("/session/register", sessionHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.Registry))

			r.Get("/session/me", sessionHandler.Me)
			r.Post("/session/logout", sessionHandler.Logout)
			r.Get("/notifications", sessionHandler.Notifications)

			r.Route("/carts", func(r chi.Router) {
				r.Post("/load-all", cartHandler.LoadAll)
				r.Route("/{restaurant_id}", func(r chi.Router) {
					r.Get("/", cartHandler.GetCart)
					r.Delete("/", cartHandler.ClearCart)
					r.Get("/count", cartHandler.Count)
					r.Post("/load", cartHandler.Load)
					r.Post("/items", cartHandler.AddItem)
					r.Put("/items/{menu_item_id}", cartHandler.UpdateQuantity)
					r.Delete("/items/{menu_item_id}", cartHandler.RemoveItem)
				})
			})

			r.Post("/checkout/{restaurant_id}", ordersHandler.PlaceOrder)
			r.Get("/orders", ordersHandler.ListOrders)
			r.Get("/orders/{order_id}", ordersHandler.GetOrder)
			r.Post("/orders/{order_id}/cancel", ordersHandler.CancelOrder)
		})
	})

	return r
}
