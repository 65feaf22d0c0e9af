package handlers

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

// errorPage is the data of error.html.
type errorPage struct {
	Title   string
	Message string
	Back    string
}

// pages bundles what every HTML handler needs to report outcomes.
type pages struct {
	store  *auth.Store
	render *Renderer
	logger *zap.Logger
}

// identity returns the signed-in identity. Routes using it are wrapped in
// RequireSession, so it is never nil there.
func identity(r *http.Request) *auth.Identity {
	id, _ := auth.GetIdentity(r.Context())
	return id
}

// credential returns the backend credential of the signed-in user.
func credential(r *http.Request) *backend.Credential {
	if id := identity(r); id != nil {
		return id.Credential
	}
	return nil
}

// notice queues n for the next rendered page.
func (p *pages) notice(w http.ResponseWriter, r *http.Request, n notify.Notice) {
	if err := p.store.AddNotice(w, r, n); err != nil {
		p.logger.Error("Failed to queue notice", zap.Error(err))
	}
}

// redirect answers a form post with 303 See Other.
func (p *pages) redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail reports err for action and redirects to back. A credential the
// backend no longer accepts ends the session and sends the user to the
// login page instead.
func (p *pages) fail(w http.ResponseWriter, r *http.Request, action string, err error, back string) {
	if p.signOutIfExpired(w, r, action, err, back) {
		return
	}
	p.notice(w, r, notify.FromError(action, err))
	p.redirect(w, r, back)
}

// signOutIfExpired clears the session when err is an authentication
// failure and redirects to login, returning true. Other errors are left to
// the caller.
func (p *pages) signOutIfExpired(w http.ResponseWriter, r *http.Request, action string, err error, back string) bool {
	if backend.CategoryOf(err) != backend.CategoryUnauthorized {
		return false
	}
	p.logger.Info("Backend rejected credential; signing out",
		zap.String("action", action),
		zap.String("path", r.URL.Path))
	if s, ok := auth.GetSession(r.Context()); ok {
		s.Clear()
	}
	p.notice(w, r, notify.FromError(action, err))
	p.redirect(w, r, auth.LoginPath+"?next="+url.QueryEscape(back))
	return true
}

// renderError shows a full-page error with a retry link.
func (p *pages) renderError(w http.ResponseWriter, r *http.Request, status int, title string, err error, back string) {
	n := notify.FromError("load the page", err)
	p.render.Render(w, r, status, "error.html", errorPage{Title: title, Message: n.Message, Back: back})
}
