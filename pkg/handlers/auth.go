package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/audit"
	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/drafts"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

// loginPage is the data of login.html.
type loginPage struct {
	Next     string
	Username string
}

// defaultLanding is where users go after signing in.
const defaultLanding = "/sentences"

// AuthHandler handles sign-in and sign-out.
type AuthHandler struct {
	pages
	client   *backend.Client
	resolver auth.Resolver
	drafts   drafts.Store
	auditor  *audit.SecurityAuditor
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(client *backend.Client, resolver auth.Resolver, draftStore drafts.Store, auditor *audit.SecurityAuditor, store *auth.Store, render *Renderer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		pages:    pages{store: store, render: render, logger: logger.Named("auth-handler")},
		client:   client,
		resolver: resolver,
		drafts:   draftStore,
		auditor:  auditor,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
}

// LoginForm handles GET /login. Signed-in users are sent on immediately.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"), defaultLanding)
	if identity(r) != nil {
		h.redirect(w, r, next)
		return
	}
	h.render.Render(w, r, http.StatusOK, "login.html", loginPage{Next: next})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := auth.SafeNext(r.FormValue("next"), defaultLanding)
	form := loginPage{Next: next, Username: username}

	if username == "" || password == "" {
		h.render.Render(w, r, http.StatusUnprocessableEntity, "login.html", form,
			notify.Notice{Kind: notify.KindWarning, Title: "Check the form", Message: "Enter your username and password."})
		return
	}

	cred, err := h.client.Login(r.Context(), username, password)
	if err != nil {
		h.loginFailed(w, r, form, err)
		return
	}

	id, err := h.resolver.Resolve(r.Context(), cred)
	if err != nil {
		h.loginFailed(w, r, form, err)
		return
	}

	session, ok := auth.GetSession(r.Context())
	if !ok {
		h.logger.Error("Login reached without a session; is the auth middleware installed?")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	session.Set(id)
	h.auditor.LogLogin(r.Context(), id, r.RemoteAddr)

	h.logger.Info("User signed in",
		zap.String("username", id.User.Username),
		zap.String("role", id.User.Role))
	h.redirect(w, r, next)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, form loginPage, err error) {
	status := http.StatusBadGateway
	n := notify.FromError("sign in", err)
	if errors.Is(err, backend.ErrUnauthorized) {
		status = http.StatusUnauthorized
		n = notify.Notice{Kind: notify.KindError, Title: "Sign-in failed", Message: "Incorrect username or password."}
	}
	h.logger.Info("Sign-in failed", zap.String("username", form.Username), zap.Error(err))
	h.auditor.LogLoginFailure(r.Context(), form.Username, string(backend.CategoryOf(err)), r.RemoteAddr)
	h.render.Render(w, r, status, "login.html", form, n)
}

// Logout handles POST /logout. The backend session is ended best-effort;
// the console session and its drafts are always dropped.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cred := credential(r); cred != nil {
		if err := h.client.Logout(r.Context(), cred); err != nil {
			h.logger.Warn("Backend logout failed", zap.Error(err))
		}
	}
	if sid, err := h.store.ID(w, r); err == nil {
		if err := h.drafts.DeleteSession(r.Context(), sid); err != nil {
			h.logger.Warn("Failed to drop drafts on sign-out", zap.Error(err))
		}
	}
	h.auditor.LogLogout(r.Context(), r.RemoteAddr)
	if session, ok := auth.GetSession(r.Context()); ok {
		session.Clear()
	}
	h.notice(w, r, notify.Notice{Kind: notify.KindInfo, Title: "Signed out"})
	h.redirect(w, r, auth.LoginPath)
}
