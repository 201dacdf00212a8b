// Package workspace holds the per-user cart state of the service: one
// session, store, notice queue, syncer and checkout per signed-in user.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/dinecart/internal/cartsync"
	"github.com/fjod/dinecart/internal/checkout"
	"github.com/fjod/dinecart/internal/graphql"
	"github.com/fjod/dinecart/internal/notify"
	"github.com/fjod/dinecart/internal/querycache"
	"github.com/fjod/dinecart/internal/session"
	"github.com/fjod/dinecart/internal/store"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrTokenRejected  = errors.New("token rejected")
)

type Workspace struct {
	Session  *session.Session
	Store    *store.Store
	Notices  *notify.Queue
	Carts    *graphql.CartService
	Syncer   *cartsync.Syncer
	Checkout *checkout.Service
}

func (w *Workspace) UserID() string { return w.Session.UserID() }

type Options struct {
	RefetchAfterMutation bool
	RefetchTimeout       time.Duration
	NoticeLimit          int
	// TokenSecret verifies token signatures locally. When empty, every
	// token not seen before is confirmed with the API's me query.
	TokenSecret string
}

type Registry struct {
	client *graphql.Client
	cache  querycache.Cache
	opts   Options
	parser *session.Parser
	log    *slog.Logger

	mu     sync.Mutex
	byUser map[string]*Workspace
}

func NewRegistry(client *graphql.Client, cache querycache.Cache, opts Options, log *slog.Logger) *Registry {
	return &Registry{
		client: client,
		cache:  cache,
		opts:   opts,
		parser: session.NewParser(opts.TokenSecret),
		log:    log,
		byUser: make(map[string]*Workspace),
	}
}

// Open returns the workspace for the token's user, creating it on first use.
// A token the workspace does not hold yet must be genuine before it can
// open or refresh the workspace.
func (r *Registry) Open(ctx context.Context, token string) (*Workspace, error) {
	s, err := r.parser.Parse(token)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrSessionExpired
	}

	// a rejected token keeps its revoked session so notices stay readable
	if w, ok := r.Lookup(s.UserID()); ok && w.Session.Holds(s.Token()) {
		return w, nil
	}
	if !r.parser.Verifies() {
		if err := r.confirm(ctx, s); err != nil {
			return nil, err
		}
	}
	return r.admit(s)
}

// OpenIssued opens the workspace for a token the API has just issued.
func (r *Registry) OpenIssued(token string) (*Workspace, error) {
	s, err := r.parser.Parse(token)
	if err != nil {
		return nil, err
	}
	return r.admit(s)
}

func (r *Registry) admit(s *session.Session) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.byUser[s.UserID()]; ok {
		if !w.Session.Holds(s.Token()) {
			if err := w.Session.Refresh(s); err != nil {
				return nil, fmt.Errorf("open workspace: %w", err)
			}
		}
		return w, nil
	}

	w := r.build(s)
	r.byUser[s.UserID()] = w
	r.log.Info("workspace opened", "user_id", s.UserID())
	return w, nil
}

// confirm asks the API who the token belongs to.
func (r *Registry) confirm(ctx context.Context, s *session.Session) error {
	user, err := graphql.Me(ctx, r.client, s.Token())
	switch {
	case err == nil && user.ID == s.UserID():
		return nil
	case err == nil:
		r.log.WarnContext(ctx, "token user mismatch", "claimed", s.UserID(), "actual", user.ID)
		return ErrTokenRejected
	case graphql.IsUnauthenticated(err):
		return fmt.Errorf("%w: %v", ErrTokenRejected, err)
	default:
		return fmt.Errorf("confirm token: %w", err)
	}
}

func (r *Registry) Lookup(userID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byUser[userID]
	return w, ok
}

// Logout drops the user's workspace, empties its store and evicts the
// cached carts it knew about.
func (r *Registry) Logout(ctx context.Context, userID string) bool {
	r.mu.Lock()
	w, ok := r.byUser[userID]
	delete(r.byUser, userID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	w.Session.Revoke()
	for _, restaurantID := range w.Store.Restaurants() {
		w.Carts.EvictCachedCart(ctx, restaurantID)
	}
	w.Store.Reset()
	r.log.Info("workspace closed", "user_id", userID)
	return true
}

// ForgetCart drops a restaurant's cart from the user's open workspace.
func (r *Registry) ForgetCart(ctx context.Context, userID, restaurantID string) bool {
	w, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	w.Syncer.Forget(ctx, restaurantID)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Close waits for every workspace's background refetches.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Workspace, 0, len(r.byUser))
	for _, w := range r.byUser {
		all = append(all, w)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, w := range all {
			w.Syncer.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) build(s *session.Session) *Workspace {
	log := r.log.With("user_id", s.UserID())
	w := &Workspace{
		Session: s,
		Store:   store.New(),
		Notices: notify.NewQueue(r.opts.NoticeLimit, log),
	}

	expired := func() { r.expire(w) }
	w.Carts = graphql.NewCartService(r.client, r.cache, "user:"+s.UserID(), s, log)
	w.Syncer = cartsync.New(w.Carts, w.Store, s, w.Notices, log, cartsync.Options{
		RefetchAfterMutation: r.opts.RefetchAfterMutation,
		RefetchTimeout:       r.opts.RefetchTimeout,
		OnUnauthenticated:    expired,
	})
	w.Checkout = checkout.NewService(graphql.NewOrderService(r.client, s), w.Syncer, s, w.Notices, log, expired)
	return w
}

// expire handles a token the API rejected. The workspace stays registered
// so its notices can still be drained; the next Open with a fresh token
// revives it.
func (r *Registry) expire(w *Workspace) {
	w.Session.Revoke()
	w.Store.Reset()
	r.log.Warn("session rejected by api", "user_id", w.UserID())
}
