// Package auth tracks who is signed in to the console and decides which
// routes they may open. The backend issues and validates sessions; this
// package only resolves and caches the resulting identity.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys.
const (
	// IdentityKey holds the identity resolved for the request.
	IdentityKey contextKey = "identity"
	// SessionKey holds the request's *Session.
	SessionKey contextKey = "session"
)

// ErrNoSession is returned when a request carries no usable session.
var ErrNoSession = errors.New("no session")

// Identity is the signed-in user together with the credential the backend
// issued for them.
type Identity struct {
	User       models.User
	Credential *backend.Credential
	// ExpiresAt is the credential expiry when known, zero otherwise.
	ExpiresAt time.Time
}

// IsAdmin reports whether the identity may open administrator views.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.User.IsAdmin()
}

// Claims represents the payload of a backend-issued access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int    `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// user returns the account described by the claims. The subject is used
// as the username when no username claim is present.
func (c *Claims) user() models.User {
	name := c.Username
	if name == "" {
		name = c.Subject
	}
	return models.User{ID: c.UserID, Username: name, Role: c.Role, IsActive: true}
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession retrieves the request's session.
func GetSession(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(SessionKey).(*Session)
	return s, ok && s != nil
}

// GetIdentity retrieves the identity from the request context. A session in
// the context takes precedence, so a sign-out earlier in the request is seen.
func GetIdentity(ctx context.Context) (*Identity, bool) {
	if s, ok := GetSession(ctx); ok {
		id := s.Current()
		return id, id != nil
	}
	id, ok := ctx.Value(IdentityKey).(*Identity)
	return id, ok && id != nil
}

// RequireIdentity is GetIdentity for callers that cannot proceed without one.
func RequireIdentity(ctx context.Context) (*Identity, error) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return id, nil
}
