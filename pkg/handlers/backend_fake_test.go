package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kgcorpus/tagging-console/pkg/audit"
	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/drafts"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
	"github.com/kgcorpus/tagging-console/ui"
)

type fakeAccount struct {
	password string
	user     models.User
}

// fakeBackend is an in-memory tagging backend. Sessions are a cookie
// holding the username.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	accounts  map[string]*fakeAccount
	revoked   map[string]bool
	sentences map[int]*models.Sentence
	saves     []models.SaveSentenceRequest
	saveFail  int
	saveEmpty bool
	listQuery url.Values
	runs      []url.Values
	deleted   []int
	logouts   int

	// runGate, when set, holds each tagging run until it is closed;
	// runStarted is signalled as a run begins waiting.
	runGate    chan struct{}
	runStarted chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:        t,
		accounts: make(map[string]*fakeAccount),
		revoked:  make(map[string]bool),
		sentences: map[int]*models.Sentence{
			1: {
				ID:   1,
				Text: "Мен китеп окуйм",
				Tokens: []models.Token{
					{ID: 10, TokenIndex: "1", Form: "Мен", Lemma: "мен", POS: "PRON", Feats: models.Features{}},
					{ID: 11, TokenIndex: "2", Form: "китеп", Lemma: "китеп", POS: "NOUN", Feats: models.Features{"Number": "Sing"}},
					{ID: 12, TokenIndex: "3", Form: "окуйм", Lemma: "оку", POS: "VERB", Feats: models.Features{}},
				},
			},
			2: {
				ID:          2,
				Text:        "Ал келди",
				IsCorrected: models.Corrected,
				Tokens: []models.Token{
					{ID: 20, TokenIndex: "1", Form: "Ал", Lemma: "ал", POS: "PRON", Feats: models.Features{}},
					{ID: 21, TokenIndex: "2", Form: "келди", Lemma: "кел", POS: "VERB", Feats: models.Features{}},
				},
			},
		},
	}
	fb.addAccount(1, "aigul", "secret-pass", models.RoleAdmin)
	fb.addAccount(2, "bakyt", "secret-pass", models.RoleEditor)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", fb.login)
	mux.HandleFunc("GET /auth/me", fb.authed(fb.me))
	mux.HandleFunc("POST /auth/logout", fb.authed(fb.logout))
	mux.HandleFunc("GET /tagging/sentences", fb.authed(fb.listSentences))
	mux.HandleFunc("GET /tagging/sentences/{id}", fb.authed(fb.getSentence))
	mux.HandleFunc("PATCH /tagging/sentences/{id}", fb.authed(fb.saveSentence))
	mux.HandleFunc("POST /tagging/run", fb.authed(fb.run))
	mux.HandleFunc("GET /admin/users", fb.authed(fb.listUsers))
	mux.HandleFunc("POST /admin/users", fb.authed(fb.createUser))
	mux.HandleFunc("DELETE /admin/users/{id}", fb.authed(fb.deleteUser))
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) addAccount(id int, username, password, role string) {
	fb.accounts[username] = &fakeAccount{
		password: password,
		user:     models.User{ID: id, Username: username, Role: role, IsActive: true},
	}
}

// revoke ends every backend session of username.
func (fb *fakeBackend) revoke(username string) {
	fb.mu.Lock()
	fb.revoked[username] = true
	fb.mu.Unlock()
}

func (fb *fakeBackend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fb.t.Errorf("fake backend: encode: %v", err)
	}
}

func (fb *fakeBackend) authed(next func(http.ResponseWriter, *http.Request, *fakeAccount)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		fb.mu.Lock()
		var acct *fakeAccount
		if err == nil && !fb.revoked[c.Value] {
			acct = fb.accounts[c.Value]
		}
		fb.mu.Unlock()
		if acct == nil {
			fb.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next(w, r, acct)
	}
}

func (fb *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fb.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	fb.mu.Lock()
	acct, ok := fb.accounts[req.Username]
	if ok {
		delete(fb.revoked, req.Username)
	}
	fb.mu.Unlock()
	if !ok || acct.password != req.Password {
		fb.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: req.Username, Path: "/", HttpOnly: true})
	fb.writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (fb *fakeBackend) me(w http.ResponseWriter, _ *http.Request, acct *fakeAccount) {
	fb.writeJSON(w, http.StatusOK, acct.user)
}

func (fb *fakeBackend) logout(w http.ResponseWriter, _ *http.Request, _ *fakeAccount) {
	fb.mu.Lock()
	fb.logouts++
	fb.mu.Unlock()
	fb.writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (fb *fakeBackend) listSentences(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	q := r.URL.Query()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.listQuery = q

	var items []models.SentenceSummary
	for id := 1; id <= len(fb.sentences); id++ {
		s := fb.sentences[id]
		if search := q.Get("search"); search != "" && !strings.Contains(s.Text, search) {
			continue
		}
		if status := q.Get("status"); status != "" && status != strconv.Itoa(int(s.IsCorrected)) {
			continue
		}
		items = append(items, models.SentenceSummary{ID: s.ID, Text: s.Text, IsCorrected: s.IsCorrected})
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	pages := (len(items) + size - 1) / size
	total := len(items)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	fb.writeJSON(w, http.StatusOK, models.SentencePage{
		Meta:  models.PageMeta{CurrentPage: page, PageSize: size, TotalPages: pages, TotalItems: total},
		Items: items[start:end],
	})
}

// addSentences adds n single-token sentences after the existing ones.
func (fb *fakeBackend) addSentences(n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := 0; i < n; i++ {
		id := len(fb.sentences) + 1
		fb.sentences[id] = &models.Sentence{
			ID:     id,
			Text:   "Сүйлөм " + strconv.Itoa(id),
			Tokens: []models.Token{{ID: id * 10, TokenIndex: "1", Form: "Сүйлөм", Lemma: "сүйлөм", POS: "NOUN", Feats: models.Features{}}},
		}
	}
}

func (fb *fakeBackend) sentence(r *http.Request) *models.Sentence {
	id, _ := strconv.Atoi(r.PathValue("id"))
	return fb.sentences[id]
}

func (fb *fakeBackend) getSentence(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	fb.mu.Lock()
	s := fb.sentence(r)
	fb.mu.Unlock()
	if s == nil {
		fb.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Sentence not found"})
		return
	}
	fb.writeJSON(w, http.StatusOK, s)
}

func (fb *fakeBackend) saveSentence(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	var req models.SaveSentenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fb.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.saves = append(fb.saves, req)
	if fb.saveFail != 0 {
		fb.writeJSON(w, fb.saveFail, map[string]string{"detail": "Database unavailable"})
		return
	}
	s := fb.sentence(r)
	s.Text = req.SentenceText
	s.IsCorrected = req.IsCorrected
	s.Tokens = req.Tokens
	if fb.saveEmpty {
		w.WriteHeader(http.StatusOK)
		return
	}
	fb.writeJSON(w, http.StatusOK, s)
}

func (fb *fakeBackend) run(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		fb.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	got := url.Values{}
	for k, v := range r.MultipartForm.Value {
		got[k] = v
	}
	if fh, ok := r.MultipartForm.File["file"]; ok {
		f, err := fh[0].Open()
		if err == nil {
			data, _ := io.ReadAll(f)
			f.Close()
			got.Set("file", string(data))
			got.Set("file_name", fh[0].Filename)
		}
	}
	fb.mu.Lock()
	fb.runs = append(fb.runs, got)
	gate, started := fb.runGate, fb.runStarted
	fb.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	fb.writeJSON(w, http.StatusOK, models.TaggingResult{Message: "Text processed", SentencesCreated: 2, TokensCreated: 5})
}

func (fb *fakeBackend) listUsers(w http.ResponseWriter, _ *http.Request, acct *fakeAccount) {
	if acct.user.Role != models.RoleAdmin {
		fb.writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Admin only"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	page := models.UserPage{Meta: &models.PageMeta{CurrentPage: 1, TotalPages: 1}}
	for _, name := range []string{"aigul", "bakyt"} {
		if a, ok := fb.accounts[name]; ok {
			page.Items = append(page.Items, a.user)
		}
	}
	fb.writeJSON(w, http.StatusOK, page)
}

func (fb *fakeBackend) createUser(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fb.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, exists := fb.accounts[req.Username]; exists {
		fb.writeJSON(w, http.StatusConflict, map[string]string{"detail": "Username already taken"})
		return
	}
	fb.addAccount(len(fb.accounts)+1, req.Username, req.Password, req.Role)
	fb.writeJSON(w, http.StatusCreated, fb.accounts[req.Username].user)
}

func (fb *fakeBackend) deleteUser(w http.ResponseWriter, r *http.Request, _ *fakeAccount) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	fb.mu.Lock()
	fb.deleted = append(fb.deleted, id)
	fb.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// lockSpy counts draft locks and can report every draft as held by another
// replica.
type lockSpy struct {
	drafts.Store

	mu    sync.Mutex
	taken int
	busy  bool
}

func (l *lockSpy) Lock(ctx context.Context, sid string, sentenceID int) (func(), error) {
	l.mu.Lock()
	busy := l.busy
	if !busy {
		l.taken++
	}
	l.mu.Unlock()
	if busy {
		return nil, drafts.ErrLockBusy
	}
	return l.Store.Lock(ctx, sid, sentenceID)
}

func (l *lockSpy) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taken
}

func (l *lockSpy) setBusy(busy bool) {
	l.mu.Lock()
	l.busy = busy
	l.mu.Unlock()
}

// testApp is the console wired against a fake backend, driven through a
// cookie-keeping client that does not follow redirects.
type testApp struct {
	backend *fakeBackend
	drafts  *drafts.MemoryStore
	locks   *lockSpy
	metrics *metrics.Metrics
	tax     *taxonomy.Taxonomy
	srv     *httptest.Server
	client  *http.Client
	// audit records security events.
	audit *observer.ObservedLogs
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()
	fb := newFakeBackend(t)
	m := metrics.New()
	tax := taxonomy.MustDefault()

	client := backend.NewClient(fb.srv.URL, logger, backend.WithRetry(nil), backend.WithMetrics(m))
	store := auth.NewStore("test-secret", auth.CookieSettings{}, 3600)
	draftStore := drafts.NewMemoryStore(drafts.DefaultTTL, m)
	locks := &lockSpy{Store: draftStore}

	renderer, err := NewRenderer(ui.FS(), store, logger)
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	auditCore, auditLogs := observer.New(zapcore.InfoLevel)
	auditor := audit.NewSecurityAuditor(zap.New(auditCore))

	authMiddleware := auth.NewMiddleware(store, auth.NewWhoAmIResolver(client, logger), logger)
	authMiddleware.OnDeny = func(w http.ResponseWriter, r *http.Request) {
		auditor.LogAccessDenied(r.Context(), r.URL.Path, r.RemoteAddr)
		renderer.Denied(w, r)
	}

	mux := http.NewServeMux()
	NewAuthHandler(client, auth.NewWhoAmIResolver(client, logger), locks, auditor, store, renderer, logger).RegisterRoutes(mux)
	NewSentencesHandler(client, 20, 500*time.Millisecond, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	NewEditorHandler(client, tax, locks, m, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	NewIngestHandler(client, 1024, m, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	NewUsersHandler(client, auditor, store, renderer, logger).RegisterRoutes(mux, authMiddleware)
	NewAPIHandler(tax, logger).RegisterRoutes(mux, authMiddleware)

	srv := httptest.NewServer(authMiddleware.Resolve(mux))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &testApp{
		backend: fb,
		drafts:  draftStore,
		locks:   locks,
		metrics: m,
		tax:     tax,
		srv:     srv,
		audit:   auditLogs,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type testResponse struct {
	Status   int
	Location string
	Body     string
	Header   http.Header
}

func (a *testApp) do(t *testing.T, req *http.Request) testResponse {
	t.Helper()
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return testResponse{
		Status:   resp.StatusCode,
		Location: resp.Header.Get("Location"),
		Body:     string(body),
		Header:   resp.Header,
	}
}

func (a *testApp) get(t *testing.T, path string) testResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return a.do(t, req)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) testResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req)
}

// follow GETs the redirect target of resp.
func (a *testApp) follow(t *testing.T, resp testResponse) testResponse {
	t.Helper()
	if resp.Location == "" {
		t.Fatalf("expected a redirect, got status %d", resp.Status)
	}
	return a.get(t, resp.Location)
}

func (a *testApp) login(t *testing.T, username string) {
	t.Helper()
	resp := a.post(t, "/login", url.Values{"username": {username}, "password": {"secret-pass"}})
	if resp.Status != http.StatusSeeOther {
		t.Fatalf("login as %s: expected 303, got %d: %s", username, resp.Status, resp.Body)
	}
}
