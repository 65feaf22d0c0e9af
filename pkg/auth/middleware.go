package auth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// LoginPath is where signed-out users are redirected.
const LoginPath = "/login"

// Middleware provides HTTP session middleware.
// It is thin and delegates identity resolution to a Resolver.
type Middleware struct {
	store    *Store
	resolver Resolver
	logger   *zap.Logger

	// OnDeny renders the page shown when a signed-in user opens a route
	// they may not use. The 403 status is already written when it runs.
	// A JSON body is written when nil.
	OnDeny http.HandlerFunc
}

// NewMiddleware creates the session middleware.
func NewMiddleware(store *Store, resolver Resolver, logger *zap.Logger) *Middleware {
	return &Middleware{
		store:    store,
		resolver: resolver,
		logger:   logger.Named("auth"),
	}
}

// Resolve attaches a Session to every request. The stored credential is
// resolved into an identity; one that no longer resolves is removed from
// the cookie. Later Set and Clear calls on the session are written back to
// the cookie.
func (m *Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := NewSession()

		if cred := m.store.Credential(r); cred != nil {
			id, err := m.resolver.Resolve(r.Context(), cred)
			if err != nil {
				m.logger.Debug("Stored credential no longer resolves",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				if err := m.store.Clear(w, r); err != nil {
					m.logger.Error("Failed to clear session cookie", zap.Error(err))
				}
			} else {
				session.Set(id)
			}
		}

		session.Subscribe(func(id *Identity) {
			var err error
			if id == nil {
				err = m.store.Clear(w, r)
			} else {
				err = m.store.SaveCredential(w, r, id.Credential)
			}
			if err != nil {
				m.logger.Error("Failed to persist session", zap.Error(err))
			}
		})

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// Require guards a handler with the given access level.
func (m *Middleware) Require(access Access) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, _ := GetIdentity(r.Context())
			switch DecideFor(access, id) {
			case Allow:
				next(w, r)
			case RedirectLogin:
				m.redirectLogin(w, r)
			default:
				m.logger.Info("Access denied",
					zap.String("user", id.User.Username),
					zap.String("role", id.User.Role),
					zap.String("path", r.URL.Path))
				if m.OnDeny != nil {
					w.WriteHeader(http.StatusForbidden)
					m.OnDeny(w, r)
					return
				}
				writeError(w, http.StatusForbidden, "forbidden", "Administrator role required")
			}
		}
	}
}

// RequireSession admits any signed-in user.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return m.Require(Protected)(next)
}

// RequireAdmin admits administrators only.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.Require(AdminOnly)(next)
}

// redirectLogin sends pages to the login form, remembering where the user
// was going. API calls get a 401 instead.
func (m *Middleware) redirectLogin(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	target := LoginPath
	if r.Method == http.MethodGet {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SafeNext returns next when it is a local path other than the login page,
// fallback otherwise.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	if strings.HasPrefix(next, LoginPath) {
		return fallback
	}
	return next
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
