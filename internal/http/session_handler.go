package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/dinecart/internal/cartsync"
	"github.com/fjod/dinecart/internal/domain"
	"github.com/fjod/dinecart/internal/graphql"
	"github.com/fjod/dinecart/internal/notify"
	"github.com/fjod/dinecart/internal/workspace"
)

type SessionHandler struct {
	client   *graphql.Client
	registry *workspace.Registry
	timeout  time.Duration
	log      *slog.Logger
}

func NewSessionHandler(client *graphql.Client, registry *workspace.Registry, timeout time.Duration, log *slog.Logger) *SessionHandler {
	return &SessionHandler{
		client:   client,
		registry: registry,
		timeout:  timeout,
		log:      log,
	}
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequestDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type NotificationsResponseDTO struct {
	Notifications []notify.Notice `json:"notifications"`
}

// POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}

	auth, err := graphql.Login(ctx, h.client, req.Email, req.Password)
	h.signedIn(ctx, w, http.StatusOK, "login", auth, err)
}

// POST /api/v1/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_registration", "name, email and password are required")
		return
	}

	auth, err := graphql.Register(ctx, h.client, domain.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil && !graphql.IsTransport(err) {
		// duplicate email and the like
		h.log.WarnContext(ctx, "register failed", "error", err)
		respondError(w, http.StatusBadRequest, "registration_rejected", err.Error())
		return
	}
	h.signedIn(ctx, w, http.StatusCreated, "register", auth, err)
}

// signedIn opens the workspace for a token the API just issued.
func (h *SessionHandler) signedIn(ctx context.Context, w http.ResponseWriter, status int, op string, auth *domain.AuthPayload, err error) {
	if err != nil {
		h.log.WarnContext(ctx, op+" failed", "error", err)
		if graphql.IsTransport(err) {
			respondError(w, http.StatusBadGateway, "upstream_unavailable", "Network error. Please check your connection.")
			return
		}
		respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}

	if _, err := h.registry.OpenIssued(auth.Token); err != nil {
		h.log.ErrorContext(ctx, op+" token unusable", "error", err)
		respondError(w, http.StatusBadGateway, "invalid_token", op+" returned an unusable token")
		return
	}

	respondJSON(w, status, auth)
}

// GET /api/v1/session/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if !ws.Session.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "Your session has expired. Please login again.")
		return
	}

	user, err := graphql.Me(ctx, h.client, ws.Session.Token())
	if err != nil {
		handleSyncError(w, cartsync.Wrap("me", err))
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	h.registry.Logout(r.Context(), ws.UserID())
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/notifications
func (h *SessionHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	if ws == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	notices := ws.Notices.Drain()
	if notices == nil {
		notices = []notify.Notice{}
	}
	respondJSON(w, http.StatusOK, NotificationsResponseDTO{Notifications: notices})
}
