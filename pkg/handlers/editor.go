package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/apperrors"
	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/drafts"
	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
	"github.com/kgcorpus/tagging-console/pkg/notify"
	"github.com/kgcorpus/tagging-console/pkg/selector"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

type posRow struct {
	ID        int
	Label     string
	Leaf      bool
	Open      bool
	Indent    int
	Token     int
	ToggleURL string
}

type posPicker struct {
	Rows     []posRow
	CloseURL string
}

type featValue struct {
	Token    int
	Key      string
	Code     string
	Label    string
	Selected bool
}

type featRow struct {
	Label        string
	Current      string
	CurrentLabel string
	Open         bool
	ToggleURL    string
	Values       []featValue
}

type featPicker struct {
	Features []featRow
	CloseURL string
}

type chipView struct {
	Token int
	selector.Chip
}

type tokenView struct {
	Anchor            string
	Position          int
	Action            string
	Form              string
	Lemma             string
	POS               string
	XPOS              string
	POSLabel          string
	POSURL            string
	FeaturesAvailable bool
	FeatsURL          string
	Chips             []chipView
	POSPicker         *posPicker
	FeatPicker        *featPicker
}

// editorPage is the data of editor.html.
type editorPage struct {
	ID          int
	LoadFailed  bool
	Err         string
	Base        string
	DisplayText string
	Corrected   bool
	Saving      bool
	Dirty       bool
	SaveFailed  bool
	Tokens      []tokenView
}

// EditorHandler serves the sentence editor. Each request restores the
// editor from the session's draft, applies one action and stores the
// result, so unsaved edits survive between requests.
type EditorHandler struct {
	pages
	client  *backend.Client
	tax     *taxonomy.Taxonomy
	drafts  drafts.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEditorHandler creates a new sentence editor handler.
func NewEditorHandler(client *backend.Client, tax *taxonomy.Taxonomy, draftStore drafts.Store, m *metrics.Metrics, store *auth.Store, render *Renderer, logger *zap.Logger) *EditorHandler {
	return &EditorHandler{
		pages:   pages{store: store, render: render, logger: logger.Named("editor-handler")},
		client:  client,
		tax:     tax,
		drafts:  draftStore,
		metrics: m,
		now:     time.Now,
	}
}

// RegisterRoutes registers the editor routes on the given mux.
func (h *EditorHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/sentences/{id}"
	mux.HandleFunc("GET "+base, authMiddleware.RequireSession(h.View))
	mux.HandleFunc("POST "+base+"/tokens/{idx}/form", authMiddleware.RequireSession(h.SetForm))
	mux.HandleFunc("POST "+base+"/tokens/{idx}/lemma", authMiddleware.RequireSession(h.SetLemma))
	mux.HandleFunc("POST "+base+"/tokens/{idx}/pos", authMiddleware.RequireSession(h.ChoosePOS))
	mux.HandleFunc("POST "+base+"/tokens/{idx}/feats", authMiddleware.RequireSession(h.SelectFeature))
	mux.HandleFunc("POST "+base+"/tokens/{idx}/feats/remove", authMiddleware.RequireSession(h.RemoveFeature))
	mux.HandleFunc("POST "+base+"/corrected", authMiddleware.RequireSession(h.SetCorrected))
	mux.HandleFunc("POST "+base+"/save", authMiddleware.RequireSession(h.Save))
	mux.HandleFunc("POST "+base+"/discard", authMiddleware.RequireSession(h.Discard))
	mux.HandleFunc("POST "+base+"/reload", authMiddleware.RequireSession(h.Reload))
}

func sentenceBase(id int) string { return fmt.Sprintf("/sentences/%d", id) }

func tokenAnchor(i int) string { return fmt.Sprintf("tok-%d", i) }

// draftSession is one request's view of a draft.
type draftSession struct {
	sid    string
	id     int
	base   string
	ed     *editor.Editor
	unlock func()
}

// open restores the editor for the sentence in the path and holds the
// draft lock until the returned session's unlock is called. Drafts without
// local changes are dropped in favour of a fresh editor, so views always
// show the server copy unless the user has edits pending.
func (h *EditorHandler) open(w http.ResponseWriter, r *http.Request) (*draftSession, bool) {
	id, ok := ParseSentenceID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Sentence not found",
			fmt.Errorf("%w: invalid sentence id", apperrors.ErrValidation), "/sentences")
		return nil, false
	}
	sid, err := h.store.ID(w, r)
	if err != nil {
		h.logger.Error("Failed to assign session ID", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	s := &draftSession{sid: sid, id: id, base: sentenceBase(id)}
	s.unlock, err = h.drafts.Lock(r.Context(), sid, id)
	if err != nil {
		h.logger.Warn("Failed to lock draft", zap.Int("sentence_id", id), zap.Error(err))
		h.renderError(w, r, http.StatusServiceUnavailable, "Sentence busy", err, s.base)
		return nil, false
	}

	bound := h.client.As(credential(r))
	d, err := h.drafts.Get(r.Context(), sid, id)
	switch {
	case err == nil:
		snap := d.Current(h.now())
		if snap.Dirty || snap.State == editor.StateSaving || snap.State == editor.StateSaveError {
			s.ed = editor.Restore(h.tax, bound, snap, h.logger)
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		h.logger.Warn("Failed to read draft; starting from the server copy",
			zap.Int("sentence_id", id),
			zap.Error(err))
	}
	if s.ed == nil {
		s.ed = editor.New(h.tax, bound, id, h.logger)
	}
	s.ed.OnChange(h.persister(r.Context(), sid))
	return s, true
}

// persister stores every settled snapshot. Writes outlive the request so a
// client that disconnects mid-save still leaves a consistent draft.
func (h *EditorHandler) persister(ctx context.Context, sid string) func(editor.Snapshot) {
	ctx = context.WithoutCancel(ctx)
	return func(snap editor.Snapshot) {
		if snap.State == editor.StateLoading {
			return
		}
		if err := h.drafts.Put(ctx, sid, snap); err != nil {
			h.logger.Error("Failed to store draft",
				zap.Int("sentence_id", snap.SentenceID),
				zap.Error(err))
		}
	}
}

// ensureLoaded fetches the sentence when the editor has none yet.
func (h *EditorHandler) ensureLoaded(ctx context.Context, s *draftSession) error {
	if s.ed.Sentence() != nil {
		return nil
	}
	return s.ed.Load(ctx)
}

// View handles GET /sentences/{id}.
func (h *EditorHandler) View(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	err := h.ensureLoaded(r.Context(), s)
	s.unlock()

	if err != nil {
		if h.signOutIfExpired(w, r, "load the sentence", err, s.base) {
			return
		}
		status := http.StatusBadGateway
		if errors.Is(err, apperrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.render.Render(w, r, status, "editor.html", editorPage{
			ID:         s.id,
			Base:       s.base,
			LoadFailed: true,
			Err:        notify.FromError("load the sentence", err).Message,
		})
		return
	}

	h.render.Render(w, r, http.StatusOK, "editor.html", h.buildPage(r, s.ed))
}

// buildPage assembles the editor view. Picker state travels in the query
// string: pos and feats name the token whose picker is shown, open holds the
// expanded POS branches and feat the expanded feature.
func (h *EditorHandler) buildPage(r *http.Request, ed *editor.Editor) editorPage {
	snap := ed.Snapshot()
	base := sentenceBase(snap.SentenceID)
	q := r.URL.Query()
	posToken := queryIndex(q, "pos")
	featToken := queryIndex(q, "feats")

	page := editorPage{
		ID:          snap.SentenceID,
		Base:        base,
		DisplayText: ed.DisplayText(),
		Corrected:   snap.Sentence.IsCorrected.Bool(),
		Saving:      snap.State == editor.StateSaving,
		Dirty:       snap.Dirty,
		SaveFailed:  snap.State == editor.StateSaveError,
	}
	if page.SaveFailed {
		page.Err = snap.Error
	}

	for i, tok := range snap.Sentence.Tokens {
		anchor := tokenAnchor(i)
		here := base + "#" + anchor
		fs := selector.NewFeatureSelector(h.tax, tok)

		tv := tokenView{
			Anchor:            anchor,
			Position:          i + 1,
			Action:            fmt.Sprintf("%s/tokens/%d", base, i),
			Form:              tok.Form,
			Lemma:             tok.Lemma,
			POS:               tok.POS,
			XPOS:              tok.XPOS,
			POSLabel:          editor.DisplayPOS(h.tax, tok),
			POSURL:            pickerURL(base, anchor, url.Values{"pos": {strconv.Itoa(i)}}),
			FeaturesAvailable: fs.Available(),
			FeatsURL:          pickerURL(base, anchor, url.Values{"feats": {strconv.Itoa(i)}}),
		}
		for _, c := range fs.Chips() {
			tv.Chips = append(tv.Chips, chipView{Token: i, Chip: c})
		}

		if i == posToken {
			tv.POSURL = here
			tv.POSPicker = h.posPicker(base, anchor, i, q.Get("open"))
		}
		if i == featToken && fs.Available() {
			tv.FeatsURL = here
			tv.FeatPicker = featurePicker(base, anchor, i, fs, q.Get("feat"))
		}
		page.Tokens = append(page.Tokens, tv)
	}
	return page
}

func (h *EditorHandler) posPicker(base, anchor string, token int, open string) *posPicker {
	sel := selector.NewPOSSelector(h.tax)
	sel.Restore(open)
	sel.Show()

	p := &posPicker{CloseURL: base + "#" + anchor}
	for _, row := range sel.Rows() {
		id := row.Node.NodeID()
		pr := posRow{
			ID:     id,
			Label:  row.Node.NodeLabel(),
			Leaf:   row.IsLeaf(),
			Open:   row.Open,
			Indent: row.Indent,
			Token:  token,
		}
		if !pr.Leaf {
			pr.ToggleURL = pickerURL(base, anchor, url.Values{
				"pos":  {strconv.Itoa(token)},
				"open": {sel.ToggledEncoding(id)},
			})
		}
		p.Rows = append(p.Rows, pr)
	}
	return p
}

func featurePicker(base, anchor string, token int, fs *selector.FeatureSelector, openKey string) *featPicker {
	if openKey != "" {
		fs.Toggle(openKey)
	}
	current := fs.Features()

	p := &featPicker{CloseURL: base + "#" + anchor}
	for _, def := range fs.Definitions() {
		fr := featRow{
			Label:   def.Label,
			Current: current[def.Key],
			Open:    fs.OpenKey() == def.Key,
		}
		if fr.Current != "" {
			fr.CurrentLabel = def.ValueLabel(fr.Current)
		}
		next := def.Key
		if fr.Open {
			next = ""
		}
		params := url.Values{"feats": {strconv.Itoa(token)}}
		if next != "" {
			params.Set("feat", next)
		}
		fr.ToggleURL = pickerURL(base, anchor, params)
		if fr.Open {
			for _, v := range def.Values {
				fr.Values = append(fr.Values, featValue{
					Token:    token,
					Key:      def.Key,
					Code:     v.Code,
					Label:    v.Label,
					Selected: v.Code == fr.Current,
				})
			}
		}
		p.Features = append(p.Features, fr)
	}
	return p
}

func pickerURL(base, anchor string, params url.Values) string {
	return base + "?" + params.Encode() + "#" + anchor
}

func queryIndex(q url.Values, name string) int {
	i, err := strconv.Atoi(q.Get(name))
	if err != nil || i < 0 {
		return -1
	}
	return i
}

// edit runs one token or sentence edit and redirects back to the token.
func (h *EditorHandler) edit(w http.ResponseWriter, r *http.Request, action string, fn func(ed *editor.Editor, idx int) (string, error)) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	defer s.unlock()

	idx, hasIdx := ParseTokenIndex(r)
	back := s.base
	if hasIdx {
		back += "#" + tokenAnchor(idx)
	}

	if err := h.ensureLoaded(r.Context(), s); err != nil {
		h.fail(w, r, "load the sentence", err, s.base)
		return
	}
	if r.PathValue("idx") != "" && !hasIdx {
		h.fail(w, r, action, editor.ErrTokenIndex, s.base)
		return
	}

	target, err := fn(s.ed, idx)
	if err != nil {
		h.fail(w, r, action, err, back)
		return
	}
	if target == "" {
		target = back
	}
	h.redirect(w, r, target)
}

// SetForm handles POST /sentences/{id}/tokens/{idx}/form.
func (h *EditorHandler) SetForm(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "update the form", func(ed *editor.Editor, idx int) (string, error) {
		return "", ed.SetForm(idx, r.FormValue("value"))
	})
}

// SetLemma handles POST /sentences/{id}/tokens/{idx}/lemma.
func (h *EditorHandler) SetLemma(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "update the lemma", func(ed *editor.Editor, idx int) (string, error) {
		return "", ed.SetLemma(idx, r.FormValue("value"))
	})
}

// ChoosePOS handles POST /sentences/{id}/tokens/{idx}/pos with the chosen
// taxonomy leaf. Features are cleared by the change.
func (h *EditorHandler) ChoosePOS(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "change the part of speech", func(ed *editor.Editor, idx int) (string, error) {
		leaf, err := strconv.Atoi(r.FormValue("leaf"))
		if err != nil {
			return "", selector.ErrNotSelectable
		}
		sel := selector.NewPOSSelector(h.tax)
		sel.Show()
		return "", ed.ChoosePOS(idx, sel, leaf)
	})
}

// SelectFeature handles POST /sentences/{id}/tokens/{idx}/feats. The
// feature picker stays open with the chosen value list collapsed.
func (h *EditorHandler) SelectFeature(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "set the feature", func(ed *editor.Editor, idx int) (string, error) {
		if err := ed.SelectFeature(idx, r.FormValue("key"), r.FormValue("value")); err != nil {
			return "", err
		}
		return pickerURL(sentenceBase(ed.Snapshot().SentenceID), tokenAnchor(idx),
			url.Values{"feats": {strconv.Itoa(idx)}}), nil
	})
}

// RemoveFeature handles POST /sentences/{id}/tokens/{idx}/feats/remove.
func (h *EditorHandler) RemoveFeature(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "remove the feature", func(ed *editor.Editor, idx int) (string, error) {
		return "", ed.RemoveFeature(idx, r.FormValue("key"))
	})
}

// SetCorrected handles POST /sentences/{id}/corrected.
func (h *EditorHandler) SetCorrected(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "change the review status", func(ed *editor.Editor, _ int) (string, error) {
		v := r.FormValue("value")
		return "", ed.SetCorrected(v == "1" || v == "true")
	})
}

// Save handles POST /sentences/{id}/save. The draft lock is released once
// the saving state is stored so edits made while the request is in flight
// are accepted; they are kept as a newer draft afterwards.
func (h *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	defer s.unlock()

	if err := h.ensureLoaded(r.Context(), s); err != nil {
		h.fail(w, r, "load the sentence", err, s.base)
		return
	}
	if s.ed.State() == editor.StateSaving {
		h.notice(w, r, notify.Notice{Kind: notify.KindInfo, Title: "Saving", Message: "A save of this sentence is already in progress."})
		h.redirect(w, r, s.base)
		return
	}

	persist := h.persister(r.Context(), s.sid)
	var saved editor.Snapshot
	s.ed.OnChange(func(snap editor.Snapshot) {
		if snap.State == editor.StateSaving {
			saved = snap
			persist(snap)
			s.unlock()
		}
	})

	err := s.ed.Save(r.Context())
	s.unlock()
	if errors.Is(err, editor.ErrSaveInFlight) {
		h.redirect(w, r, s.base)
		return
	}
	h.metrics.ObserveSave(err)
	h.settle(r.Context(), s, saved.Revision, err)

	if err != nil {
		h.fail(w, r, "save the sentence", err, s.base)
		return
	}
	h.notice(w, r, notify.Success("Saved", fmt.Sprintf("Sentence %d was saved.", s.id)))
	h.redirect(w, r, s.base)
}

// settle records the outcome of a save. Without newer edits a successful
// save drops the draft so the next view shows the server copy; otherwise
// the newer draft is kept and only its state is updated.
func (h *EditorHandler) settle(ctx context.Context, s *draftSession, savedRev uint64, saveErr error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := h.drafts.Lock(ctx, s.sid, s.id)
	if err != nil {
		// The outcome still has to be recorded, or the draft would claim a
		// save in flight until it goes stale.
		h.logger.Warn("Settling save without the draft lock", zap.Int("sentence_id", s.id), zap.Error(err))
	} else {
		defer unlock()
	}

	final := s.ed.Snapshot()
	if d, err := h.drafts.Get(ctx, s.sid, s.id); err == nil && d.Snapshot.Revision > savedRev {
		final = d.Snapshot
		final.Dirty = true
		final.State = editor.StateReady
		final.Error = ""
		if saveErr != nil {
			final.State = editor.StateSaveError
			final.Error = saveErr.Error()
		}
	} else if saveErr == nil {
		if err := h.drafts.Delete(ctx, s.sid, s.id); err != nil {
			h.logger.Error("Failed to drop saved draft", zap.Int("sentence_id", s.id), zap.Error(err))
		}
		return
	}

	if err := h.drafts.Put(ctx, s.sid, final); err != nil {
		h.logger.Error("Failed to store draft", zap.Int("sentence_id", s.id), zap.Error(err))
	}
}

// Discard handles POST /sentences/{id}/discard.
func (h *EditorHandler) Discard(w http.ResponseWriter, r *http.Request) {
	h.drop(w, r, notify.Notice{Kind: notify.KindInfo, Title: "Changes discarded"})
}

// Reload handles POST /sentences/{id}/reload, the retry after a failed load.
func (h *EditorHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.drop(w, r, notify.Notice{})
}

func (h *EditorHandler) drop(w http.ResponseWriter, r *http.Request, n notify.Notice) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	defer s.unlock()

	s.ed.OnChange(nil)
	s.ed.Discard()
	if err := h.drafts.Delete(r.Context(), s.sid, s.id); err != nil {
		h.logger.Error("Failed to drop draft", zap.Int("sentence_id", s.id), zap.Error(err))
	}
	if n.Title != "" {
		h.notice(w, r, n)
	}
	h.redirect(w, r, s.base)
}
