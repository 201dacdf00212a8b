// Package session tracks the bearer token of one signed-in user. A Parser
// with a signing secret verifies tokens itself; without one it only reads
// them and the caller must confirm them with the GraphQL API.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("missing bearer token")

// Claims matches the API's tokens: userId plus the registered claims.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Session struct {
	mu        sync.RWMutex
	token     string
	userID    string
	role      string
	expiresAt time.Time
	revoked   bool
	now       func() time.Time
}

type Parser struct {
	secret []byte
}

// NewParser returns a parser that checks HMAC signatures with secret. An
// empty secret disables the check.
func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

// Verifies reports whether parsed tokens have had their signature checked.
func (p *Parser) Verifies() bool { return len(p.secret) > 0 }

// Parse reads the user identity from a bearer token. Expiry is left to
// Session.Authenticated.
func (p *Parser) Parse(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}

	var claims Claims
	if p.Verifies() {
		_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return p.secret, nil
		}, jwt.WithoutClaimsValidation())
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
	} else if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("parse token: no userId or sub claim")
	}

	s := &Session{token: token, userID: userID, role: claims.Role, now: time.Now}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.revoked {
		return ""
	}
	return s.token
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) Role() string { return s.role }

// Authenticated is false once the token expired or the session was revoked.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.revoked || s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

// Revoke is called on logout and when the API rejects the token.
func (s *Session) Revoke() {
	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()
}

// Refresh swaps in a newer, already parsed token for the same user.
func (s *Session) Refresh(next *Session) error {
	if next.userID != s.userID {
		return fmt.Errorf("refresh token: user %q does not match session user %q", next.userID, s.userID)
	}

	token := next.Token()
	s.mu.Lock()
	s.token = token
	s.expiresAt = next.expiresAt
	s.revoked = false
	s.mu.Unlock()
	return nil
}

// Holds reports whether token is the session's token, revoked or not.
func (s *Session) Holds(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token == token
}
