package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

// NavItem is one sidebar link.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// Page is the data every template receives.
type Page struct {
	User     *models.User
	Nav      []NavItem
	AdminNav []NavItem
	Notices  []notify.Notice
	Data     any
}

var (
	mainNav = []NavItem{
		{Label: "Sentences", Href: "/sentences"},
	}
	adminNav = []NavItem{
		{Label: "Create data", Href: "/create-data"},
		{Label: "Users", Href: "/users"},
	}
)

// Renderer executes page templates inside the shared layout.
type Renderer struct {
	pages  map[string]*template.Template
	store  *auth.Store
	logger *zap.Logger
}

// pageFiles lists the page templates under templates/.
var pageFiles = []string{
	"login.html",
	"sentences.html",
	"editor.html",
	"create_data.html",
	"users.html",
	"denied.html",
	"error.html",
}

var templateFuncs = template.FuncMap{
	"datetime": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}

// NewRenderer parses every page from fsys. Notices queued in store are shown
// on the next rendered page.
func NewRenderer(fsys fs.FS, store *auth.Store, logger *zap.Logger) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for _, name := range pageFiles {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages, store: store, logger: logger.Named("render")}, nil
}

// Render writes page with status. Pending notices are popped from the
// session and passed to the layout along with extra, which the handler
// uses for notices that belong to this response only.
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data any, extra ...notify.Notice) {
	t, ok := rr.pages[page]
	if !ok {
		rr.logger.Error("Unknown page template", zap.String("page", page))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	p := Page{Data: data}
	if id, ok := auth.GetIdentity(r.Context()); ok {
		u := id.User
		p.User = &u
		p.Nav = activeNav(mainNav, r.URL.Path)
		if id.IsAdmin() {
			p.AdminNav = activeNav(adminNav, r.URL.Path)
		}
	}
	// Notices are read before anything is written; popping them rewrites
	// the session cookie.
	p.Notices = append(rr.store.Notices(w, r), extra...)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		rr.logger.Error("Failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Denied renders the no-access page. The 403 status has already been written
// by the auth middleware.
func (rr *Renderer) Denied(w http.ResponseWriter, r *http.Request) {
	t := rr.pages["denied.html"]
	p := Page{}
	if id, ok := auth.GetIdentity(r.Context()); ok {
		u := id.User
		p.User = &u
		p.Nav = activeNav(mainNav, r.URL.Path)
	}
	if err := t.ExecuteTemplate(w, "layout", p); err != nil {
		rr.logger.Error("Failed to render denied page", zap.Error(err))
	}
}

func activeNav(items []NavItem, path string) []NavItem {
	out := make([]NavItem, len(items))
	for i, it := range items {
		it.Active = path == it.Href || strings.HasPrefix(path, it.Href+"/")
		out[i] = it
	}
	return out
}
