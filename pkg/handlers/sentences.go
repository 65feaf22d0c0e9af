package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/listing"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

type statusOption struct {
	Value    string
	Label    string
	Selected bool
}

type sentenceRow struct {
	ID        int
	Text      string
	Corrected bool
	Href      string
}

// sentencesPage is the data of sentences.html.
type sentencesPage struct {
	Page       int
	Search     string
	Committed  string
	Status     string
	Statuses   []statusOption
	State      listing.RenderState
	Err        string
	RetryURL   string
	Items      []sentenceRow
	TotalPages int
	TotalItems int
	CanPrev    bool
	CanNext    bool
	PrevURL    string
	NextURL    string
	// DebounceMS is the quiet period after the last keystroke before the
	// search box submits itself.
	DebounceMS int64
}

var statusOptions = []statusOption{
	{Value: string(models.StatusAny), Label: "All"},
	{Value: string(models.StatusCorrected), Label: "Corrected"},
	{Value: string(models.StatusNotCorrected), Label: "Not corrected"},
}

// SentencesHandler serves the paginated sentence list.
type SentencesHandler struct {
	pages
	client   *backend.Client
	pageSize int
	debounce time.Duration
}

// NewSentencesHandler creates a new sentence list handler. debounce is the
// search box quiet period applied in the browser.
func NewSentencesHandler(client *backend.Client, pageSize int, debounce time.Duration, store *auth.Store, render *Renderer, logger *zap.Logger) *SentencesHandler {
	if pageSize <= 0 {
		pageSize = listing.DefaultPageSize
	}
	if debounce <= 0 {
		debounce = listing.DefaultDebounce
	}
	return &SentencesHandler{
		pages:    pages{store: store, render: render, logger: logger.Named("sentences")},
		client:   client,
		pageSize: pageSize,
		debounce: debounce,
	}
}

// RegisterRoutes registers the sentence list routes on the given mux.
func (h *SentencesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /{$}", authMiddleware.RequireSession(h.Home))
	mux.HandleFunc("GET /sentences", authMiddleware.RequireSession(h.List))
}

// Home handles GET /.
func (h *SentencesHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/sentences", http.StatusFound)
}

// filterFromRequest rebuilds the list filter from the URL. The form
// carries the previously committed search and status; when the submitted
// values differ the change is committed, which resets to page 1. The
// browser debounces typing before it submits, so every search seen here
// is already settled.
func (h *SentencesHandler) filterFromRequest(r *http.Request) *listing.Filter {
	q := r.URL.Query()
	search := q.Get("search")
	status := models.ParseStatusFilter(q.Get("status"))

	prevSearch, prevStatus := search, status
	if q.Has("prev_search") {
		prevSearch = q.Get("prev_search")
	}
	if q.Has("prev_status") {
		prevStatus = models.ParseStatusFilter(q.Get("prev_status"))
	}

	f := listing.FromQuery(models.SentenceQuery{
		Page:     queryInt(r, "page", 1),
		PageSize: h.pageSize,
		Search:   prevSearch,
		Status:   prevStatus,
	})
	f.SubmitSearch(search)
	f.SetStatus(status)
	return f
}

// List handles GET /sentences.
func (h *SentencesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := h.filterFromRequest(r)
	defer filter.Close()

	ctrl := listing.NewController(filter, h.client.As(credential(r)), h.logger)
	view := ctrl.Refresh(r.Context())

	if view.State == listing.RenderError && h.signOutIfExpired(w, r, "load sentences", view.Err, r.URL.RequestURI()) {
		return
	}

	// A page past the end, e.g. from a stale link, falls back to the last one.
	if view.State == listing.RenderEmpty && view.Meta.TotalPages > 0 && view.Query.Page > view.Meta.TotalPages {
		q := view.Query
		q.Page = view.Meta.TotalPages
		http.Redirect(w, r, listURL(q), http.StatusFound)
		return
	}

	data := sentencesPage{
		Page:       view.Query.Page,
		Search:     view.Input,
		Committed:  view.Query.Search,
		Status:     string(view.Query.Status),
		State:      view.State,
		RetryURL:   listURL(view.Query),
		TotalPages: view.Meta.TotalPages,
		TotalItems: view.Meta.TotalItems,
		CanPrev:    view.CanPrev,
		CanNext:    view.CanNext,
		DebounceMS: h.debounce.Milliseconds(),
	}
	for _, opt := range statusOptions {
		opt.Selected = opt.Value == data.Status
		data.Statuses = append(data.Statuses, opt)
	}
	if view.Err != nil {
		data.Err = notify.FromError("load sentences", view.Err).Message
	}
	for _, it := range view.Items {
		data.Items = append(data.Items, sentenceRow{
			ID:        it.ID,
			Text:      it.Text,
			Corrected: it.IsCorrected.Bool(),
			Href:      fmt.Sprintf("/sentences/%d", it.ID),
		})
	}
	if data.CanPrev {
		q := view.Query
		q.Page--
		data.PrevURL = listURL(q)
	}
	if data.CanNext {
		q := view.Query
		q.Page++
		data.NextURL = listURL(q)
	}

	status := http.StatusOK
	if view.State == listing.RenderError {
		status = http.StatusBadGateway
	}
	h.render.Render(w, r, status, "sentences.html", data)
}

// listURL links to the list page q describes.
func listURL(q models.SentenceQuery) string {
	v := url.Values{}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != models.StatusAny {
		v.Set("status", string(q.Status))
	}
	if len(v) == 0 {
		return "/sentences"
	}
	return "/sentences?" + v.Encode()
}
