package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/ingest"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

const (
	ingestPath = "/create-data"
	// formIdleTTL is how long an untouched ingest form is kept.
	formIdleTTL = time.Hour
	// multipartOverhead is the allowance for form fields around the file.
	multipartOverhead = 1 << 20
)

// ingestPage is the data of create_data.html.
type ingestPage struct {
	Text       string
	FileName   string
	FileSize   int
	MaxBytes   int64
	Submitting bool
}

type formEntry struct {
	form     *ingest.Form
	lastUsed time.Time
}

// IngestHandler serves the administrator form that submits raw text for
// tagging. Forms are kept per browser session so an attached file survives
// a failed submission.
type IngestHandler struct {
	pages
	client   *backend.Client
	metrics  *metrics.Metrics
	maxBytes int64
	now      func() time.Time

	mu    sync.Mutex
	forms map[string]*formEntry
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(client *backend.Client, maxBytes int64, m *metrics.Metrics, store *auth.Store, render *Renderer, logger *zap.Logger) *IngestHandler {
	if maxBytes <= 0 {
		maxBytes = ingest.DefaultMaxBytes
	}
	return &IngestHandler{
		pages:    pages{store: store, render: render, logger: logger.Named("ingest")},
		client:   client,
		metrics:  m,
		maxBytes: maxBytes,
		now:      time.Now,
		forms:    make(map[string]*formEntry),
	}
}

// RegisterRoutes registers the ingest routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET "+ingestPath, authMiddleware.RequireAdmin(h.Show))
	mux.HandleFunc("POST "+ingestPath, authMiddleware.RequireAdmin(h.Submit))
}

// form returns the session's form, creating it on first use. Idle forms of
// other sessions are dropped on the way.
func (h *IngestHandler) form(w http.ResponseWriter, r *http.Request) (*ingest.Form, error) {
	sid, err := h.store.ID(w, r)
	if err != nil {
		return nil, err
	}
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for k, e := range h.forms {
		if k != sid && now.Sub(e.lastUsed) > formIdleTTL && !e.form.Submitting() {
			delete(h.forms, k)
		}
	}
	e, ok := h.forms[sid]
	if !ok {
		e = &formEntry{form: ingest.NewForm(h.maxBytes)}
		h.forms[sid] = e
	}
	e.lastUsed = now
	return e.form, nil
}

// Show handles GET /create-data.
func (h *IngestHandler) Show(w http.ResponseWriter, r *http.Request) {
	f, err := h.form(w, r)
	if err != nil {
		h.logger.Error("Failed to assign session ID", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data := ingestPage{
		Text:       f.Text(),
		MaxBytes:   f.MaxBytes(),
		Submitting: f.Submitting(),
	}
	if file := f.File(); file != nil {
		data.FileName = file.Name
		data.FileSize = len(file.Data)
	}
	h.render.Render(w, r, http.StatusOK, "create_data.html", data)
}

// Submit handles POST /create-data. The "action" field selects between
// removing the attached file and running the tagging pipeline.
func (h *IngestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	f, err := h.form(w, r)
	if err != nil {
		h.logger.Error("Failed to assign session ID", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: uploads are limited to %d bytes", ingest.ErrTooLarge, h.maxBytes)
		}
		h.fail(w, r, "read the upload", err, ingestPath)
		return
	}

	// A running submission clears the form when it succeeds; nothing from
	// this request may touch the form before that.
	if f.Submitting() {
		h.inFlight(w, r)
		return
	}
	if err := f.SetText(r.FormValue("text_form")); err != nil {
		h.inFlight(w, r)
		return
	}
	if err := h.attach(r, f); err != nil {
		if errors.Is(err, ingest.ErrSubmitInFlight) {
			h.inFlight(w, r)
			return
		}
		h.fail(w, r, "attach the file", err, ingestPath)
		return
	}

	switch r.FormValue("action") {
	case "remove-file":
		if err := f.RemoveFile(); err != nil {
			h.inFlight(w, r)
			return
		}
		h.redirect(w, r, ingestPath)
		return
	case "", "submit":
	default:
		h.redirect(w, r, ingestPath)
		return
	}

	kind := "text"
	file := f.File()
	fields := []zap.Field{}
	if file != nil {
		kind = "file"
		fields = append(fields, zap.String("file", file.Name), zap.Stringer("source", file.Source))
	}
	res, err := f.Submit(r.Context(), h.client.As(credential(r)))
	switch {
	case errors.Is(err, ingest.ErrSubmitInFlight):
		h.inFlight(w, r)
		return
	case errors.Is(err, ingest.ErrEmptySubmission):
		h.fail(w, r, "run tagging", err, ingestPath)
		return
	}
	h.metrics.ObserveIngest(kind, err)
	if err != nil {
		h.logger.Warn("Tagging run failed", append(fields, zap.String("kind", kind), zap.Error(err))...)
		h.fail(w, r, "run tagging", err, ingestPath)
		return
	}

	h.logger.Info("Tagging run finished", append(fields,
		zap.String("kind", kind),
		zap.Int("sentences", res.SentencesCreated),
		zap.Int("tokens", res.TokensCreated))...)
	msg := ingest.Summary(res)
	if file != nil {
		msg += " from " + sourceLabel(file.Source) + " " + file.Name
	}
	h.notice(w, r, notify.Success("Tagging finished", msg+"."))
	h.redirect(w, r, ingestPath)
}

func (h *IngestHandler) inFlight(w http.ResponseWriter, r *http.Request) {
	h.notice(w, r, notify.Notice{Kind: notify.KindInfo, Title: "Processing", Message: "The previous submission is still running."})
	h.redirect(w, r, ingestPath)
}

func sourceLabel(src ingest.Source) string {
	if src == ingest.SourceDrop {
		return "dropped file"
	}
	return "attached file"
}

// uploadSource reads the "source" field set by the drop zone script. Both
// sources share one validation path.
func uploadSource(r *http.Request) ingest.Source {
	if r.FormValue("source") == ingest.SourceDrop.String() {
		return ingest.SourceDrop
	}
	return ingest.SourcePicker
}

// attach reads the uploaded file, if any, into the form.
func (h *IngestHandler) attach(r *http.Request, f *ingest.Form) error {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()
	if header.Size == 0 && header.Filename == "" {
		return nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	return f.AttachFile(uploadSource(r), header.Filename, header.Header.Get("Content-Type"), data)
}
