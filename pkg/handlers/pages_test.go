package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

func TestLogin_RedirectsSignedOutUsers(t *testing.T) {
	app := newTestApp(t)

	resp := app.get(t, "/sentences?page=2")

	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/login?next=%2Fsentences%3Fpage%3D2", resp.Location)

	form := app.follow(t, resp)
	assert.Equal(t, http.StatusOK, form.Status)
	assert.Contains(t, form.Body, `name="next" value="/sentences?page=2"`)
}

func TestLogin_WrongPassword(t *testing.T) {
	app := newTestApp(t)

	resp := app.post(t, "/login", url.Values{"username": {"bakyt"}, "password": {"nope-nope"}})

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Contains(t, resp.Body, "Incorrect username or password.")
	assert.Contains(t, resp.Body, `value="bakyt"`, "username is kept in the form")
}

func TestLogin_EmptyFields(t *testing.T) {
	app := newTestApp(t)

	resp := app.post(t, "/login", url.Values{"username": {"  "}, "password": {""}})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Contains(t, resp.Body, "Enter your username and password.")
}

func TestLogin_GoesToNext(t *testing.T) {
	app := newTestApp(t)

	resp := app.post(t, "/login", url.Values{
		"username": {"bakyt"},
		"password": {"secret-pass"},
		"next":     {"/sentences/2"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/sentences/2", resp.Location)

	// The login page itself now forwards to the landing page.
	again := app.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, again.Status)
	assert.Equal(t, "/sentences", again.Location)
}

func TestLogin_RejectsOffsiteNext(t *testing.T) {
	app := newTestApp(t)

	resp := app.post(t, "/login", url.Values{
		"username": {"bakyt"},
		"password": {"secret-pass"},
		"next":     {"//evil.example/"},
	})
	assert.Equal(t, "/sentences", resp.Location)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.post(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/login", resp.Location)
	assert.Equal(t, 1, app.backend.logouts)

	page := app.follow(t, resp)
	assert.Contains(t, page.Body, "Signed out")

	assert.Equal(t, http.StatusSeeOther, app.get(t, "/sentences").Status)
}

func TestSession_EndsWhenBackendRevokesIt(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")
	require.Equal(t, http.StatusOK, app.get(t, "/sentences").Status)

	app.backend.revoke("bakyt")

	resp := app.get(t, "/sentences")
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Location, "/login?next="), "got %q", resp.Location)
}

func TestSentences_List(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Body, `<a href="/sentences/1">Мен китеп окуйм</a>`)
	assert.Contains(t, resp.Body, `<a href="/sentences/2">Ал келди</a>`)
	assert.Contains(t, resp.Body, "Page 1 of 1")
	assert.Equal(t, "1", app.backend.listQuery.Get("page"))
	assert.Equal(t, "20", app.backend.listQuery.Get("page_size"))
}

func TestSentences_SearchAndStatus(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences?page=3&prev_search=&prev_status=&search=%D0%BA%D0%B8%D1%82%D0%B5%D0%BF&status=not-corrected")

	// A changed search resets to the first page.
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "1", app.backend.listQuery.Get("page"))
	assert.Equal(t, "китеп", app.backend.listQuery.Get("search"))
	assert.Equal(t, "0", app.backend.listQuery.Get("status"))
	assert.Contains(t, resp.Body, "Мен китеп окуйм")
	assert.NotContains(t, resp.Body, "Ал келди")
}

func TestSentences_UnchangedSearchKeepsPage(t *testing.T) {
	app := newTestApp(t)
	app.backend.addSentences(43)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences?page=2&prev_search=&prev_status=&search=&status=")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "2", app.backend.listQuery.Get("page"))
	assert.Contains(t, resp.Body, "Page 2 of 3")

	resp = app.get(t, "/sentences?page=2&prev_search=%D0%A1%D2%AF%D0%B9&prev_status=&search=%D0%A1%D2%AF%D0%B9&status=")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "2", app.backend.listQuery.Get("page"))
	assert.Equal(t, "Сүй", app.backend.listQuery.Get("search"))

	resp = app.get(t, "/sentences?page=2&prev_search=%D0%A1%D2%AF%D0%B9&prev_status=&search=%D0%A1%D2%AF%D0%B9%D0%BB&status=")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "1", app.backend.listQuery.Get("page"))
}

func TestSentences_RendersLiveSearch(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Body, `data-debounce-ms="500"`)
	assert.Contains(t, resp.Body, `<script src="/static/search.js" defer></script>`)
}

func TestSentences_Empty(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences?search=zzz")

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Body, "No sentences match.")
}

func TestHome_RedirectsToSentences(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/")
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/sentences", resp.Location)
}

func TestEditor_EditAndSave(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	view := app.get(t, "/sentences/1")
	require.Equal(t, http.StatusOK, view.Status)
	assert.Contains(t, view.Body, "Мен китеп окуйм")
	assert.NotContains(t, view.Body, "Unsaved changes")

	resp := app.post(t, "/sentences/1/tokens/2/lemma", url.Values{"value": {"окуу"}})
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/sentences/1#tok-2", resp.Location)

	resp = app.post(t, "/sentences/1/corrected", url.Values{"value": {"1"}})
	assert.Equal(t, http.StatusSeeOther, resp.Status)

	view = app.get(t, "/sentences/1")
	assert.Contains(t, view.Body, "Unsaved changes")
	assert.Contains(t, view.Body, `value="окуу"`)
	assert.Equal(t, 1, app.drafts.Len())

	resp = app.post(t, "/sentences/1/save", nil)
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/sentences/1", resp.Location)

	require.Len(t, app.backend.saves, 1)
	saved := app.backend.saves[0]
	assert.Equal(t, 1, saved.ID)
	assert.Equal(t, "Мен китеп окуйм", saved.SentenceText)
	assert.Equal(t, models.Corrected, saved.IsCorrected)
	require.Len(t, saved.Tokens, 3, "the whole sentence is sent")
	assert.Equal(t, "окуу", saved.Tokens[2].Lemma)
	assert.Equal(t, models.Features{"Number": "Sing"}, saved.Tokens[1].Feats)

	assert.Equal(t, 0, app.drafts.Len(), "a saved draft is dropped")
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.SentenceSaves.WithLabelValues("ok")))

	after := app.follow(t, resp)
	assert.Contains(t, after.Body, "Sentence 1 was saved.")
	assert.NotContains(t, after.Body, "Unsaved changes")
}

func TestEditor_FormChangesDisplayText(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	app.post(t, "/sentences/1/tokens/0/form", url.Values{"value": {"Биз"}})

	view := app.get(t, "/sentences/1")
	assert.Contains(t, view.Body, "Биз китеп окуйм")
}

func TestEditor_ChangingPOSClearsFeatures(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	adj, ok := app.tax.Leaf("ADJ")
	require.True(t, ok)

	resp := app.post(t, "/sentences/1/tokens/1/pos", url.Values{"leaf": {itoa(adj.ID)}})
	assert.Equal(t, http.StatusSeeOther, resp.Status)

	app.post(t, "/sentences/1/save", nil)
	require.Len(t, app.backend.saves, 1)
	tok := app.backend.saves[0].Tokens[1]
	assert.Equal(t, "ADJ", tok.POS)
	assert.Empty(t, tok.Feats)
}

func TestEditor_BranchIsNotSelectable(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.post(t, "/sentences/1/tokens/1/pos", url.Values{"leaf": {"11"}})
	require.Equal(t, http.StatusSeeOther, resp.Status)

	page := app.follow(t, resp)
	assert.Contains(t, page.Body, "Check the form")
	assert.NotContains(t, page.Body, "Unsaved changes")
}

func TestEditor_FeatureSelection(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.post(t, "/sentences/1/tokens/1/feats", url.Values{"key": {"Number"}, "value": {"Plur"}})
	assert.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, "/sentences/1?feats=1#tok-1", resp.Location)

	picker := app.follow(t, resp)
	assert.Contains(t, picker.Body, `class="picker"`)

	resp = app.post(t, "/sentences/1/tokens/1/feats", url.Values{"key": {"Number"}, "value": {"Dual"}})
	assert.Contains(t, app.follow(t, resp).Body, "Check the form", "unknown values are rejected")

	app.post(t, "/sentences/1/tokens/0/feats/remove", url.Values{"key": {"Case"}})

	app.post(t, "/sentences/1/save", nil)
	require.Len(t, app.backend.saves, 1)
	assert.Equal(t, models.Features{"Number": "Plur"}, app.backend.saves[0].Tokens[1].Feats)
}

func TestEditor_POSPickerAccordion(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	closed := app.get(t, "/sentences/1?pos=1")
	require.Equal(t, http.StatusOK, closed.Status)
	assert.Contains(t, closed.Body, "Маани берүүчү")
	assert.NotContains(t, closed.Body, "Зат атооч", "children of a closed branch are hidden")

	open := app.get(t, "/sentences/1?pos=1&open=1")
	assert.Contains(t, open.Body, "Зат атооч")
}

func TestEditor_SaveFailureKeepsEdits(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")
	app.backend.saveFail = http.StatusInternalServerError

	app.post(t, "/sentences/1/tokens/0/lemma", url.Values{"value": {"биз"}})
	resp := app.post(t, "/sentences/1/save", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)

	view := app.follow(t, resp)
	assert.Contains(t, view.Body, "Database unavailable")
	assert.Contains(t, view.Body, "Save failed")
	assert.Contains(t, view.Body, `value="биз"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.SentenceSaves.WithLabelValues("error")))

	// Retrying sends the same edits.
	app.backend.saveFail = 0
	app.post(t, "/sentences/1/save", nil)
	require.Len(t, app.backend.saves, 2)
	assert.Equal(t, "биз", app.backend.saves[1].Tokens[0].Lemma)
}

func TestEditor_TakesTheDraftLock(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	require.Equal(t, http.StatusOK, app.get(t, "/sentences/1").Status)
	assert.Equal(t, 1, app.locks.count())

	app.post(t, "/sentences/1/tokens/2/lemma", url.Values{"value": {"окуу"}})
	before := app.locks.count()
	resp := app.post(t, "/sentences/1/save", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)

	// One lock for the request and one to settle the outcome.
	assert.Equal(t, before+2, app.locks.count())
	require.Len(t, app.backend.saves, 1)
}

func TestEditor_BusyDraft(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")
	app.locks.setBusy(true)

	resp := app.get(t, "/sentences/1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Contains(t, resp.Body, "the draft is busy; try again")

	resp = app.post(t, "/sentences/1/tokens/2/lemma", url.Values{"value": {"окуу"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, 0, app.drafts.Len(), "no draft is written without the lock")

	app.locks.setBusy(false)
	assert.Equal(t, http.StatusOK, app.get(t, "/sentences/1").Status)
}

func TestEditor_SaveWithEmptyResponseReloads(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")
	app.backend.mu.Lock()
	app.backend.saveEmpty = true
	app.backend.mu.Unlock()

	app.post(t, "/sentences/1/tokens/2/lemma", url.Values{"value": {"окуу"}})
	resp := app.post(t, "/sentences/1/save", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)

	after := app.follow(t, resp)
	assert.Contains(t, after.Body, "Sentence 1 was saved.")
	assert.NotContains(t, after.Body, "Unsaved changes")
	assert.Contains(t, after.Body, `value="окуу"`, "the view reloads the stored sentence")
	assert.Equal(t, 0, app.drafts.Len())
}

func TestEditor_Discard(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	app.post(t, "/sentences/1/tokens/0/lemma", url.Values{"value": {"биз"}})
	resp := app.post(t, "/sentences/1/discard", nil)
	assert.Equal(t, "/sentences/1", resp.Location)

	view := app.follow(t, resp)
	assert.Contains(t, view.Body, "Changes discarded")
	assert.NotContains(t, view.Body, `value="биз"`)
	assert.Empty(t, app.backend.saves)
}

func TestEditor_BadTokenIndex(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.post(t, "/sentences/1/tokens/9/lemma", url.Values{"value": {"x"}})
	require.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Contains(t, app.follow(t, resp).Body, "token index out of range")
}

func TestEditor_MissingSentence(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	resp := app.get(t, "/sentences/99")

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Sentence not found")
	assert.Contains(t, resp.Body, "/sentences/99/reload")
}

func TestEditor_DraftsAreScopedToTheSignIn(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")
	app.post(t, "/sentences/1/tokens/0/lemma", url.Values{"value": {"биз"}})

	app.post(t, "/logout", nil)
	assert.Equal(t, 0, app.drafts.Len(), "drafts are dropped on sign-out")

	app.login(t, "bakyt")
	view := app.get(t, "/sentences/1")
	assert.NotContains(t, view.Body, `value="биз"`)
}

func TestAdminPages_DeniedToEditors(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "bakyt")

	for _, path := range []string{"/create-data", "/users"} {
		resp := app.get(t, path)
		assert.Equal(t, http.StatusForbidden, resp.Status, path)
		assert.Contains(t, resp.Body, "No access", path)
	}

	sentences := app.get(t, "/sentences")
	assert.NotContains(t, sentences.Body, "Administration", "editors do not see admin navigation")
}

func TestIngest_Text(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	page := app.get(t, "/create-data")
	require.Equal(t, http.StatusOK, page.Status)
	assert.Contains(t, page.Body, "Administration")

	resp := app.postMultipart(t, "/create-data", map[string]string{"text_form": "Мен келдим. Ал кетти.", "action": "submit"}, "", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)

	require.Len(t, app.backend.runs, 1)
	assert.Equal(t, "Мен келдим. Ал кетти.", app.backend.runs[0].Get("text_form"))
	assert.Contains(t, app.backend.runs[0], "payload")

	done := app.follow(t, resp)
	assert.Contains(t, done.Body, "Created 2 sentences and 5 tokens.")
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.Ingestions.WithLabelValues("text", "ok")))
}

func TestIngest_FileWinsOverText(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	resp := app.postMultipart(t, "/create-data",
		map[string]string{"text_form": "ignored", "action": "submit"},
		"corpus.txt", []byte("Бул файлдан."))
	require.Equal(t, http.StatusSeeOther, resp.Status)

	require.Len(t, app.backend.runs, 1)
	assert.Equal(t, "Бул файлдан.", app.backend.runs[0].Get("file"))
	assert.Equal(t, "corpus.txt", app.backend.runs[0].Get("file_name"))
	assert.Empty(t, app.backend.runs[0].Get("text_form"))
}

func TestIngest_RejectsEmptyAndNonText(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	resp := app.postMultipart(t, "/create-data", map[string]string{"text_form": "   ", "action": "submit"}, "", nil)
	assert.Contains(t, app.follow(t, resp).Body, "enter text or attach a .txt file")

	resp = app.postMultipart(t, "/create-data", map[string]string{"action": "submit"}, "photo.png", []byte("\x89PNG\r\n\x1a\n"))
	assert.Contains(t, app.follow(t, resp).Body, "only plain-text .txt files are accepted")

	assert.Empty(t, app.backend.runs)
}

func TestIngest_DroppedFileSharesTheUploadPath(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	page := app.get(t, "/create-data")
	assert.Contains(t, page.Body, "data-dropzone")
	assert.Contains(t, page.Body, `<input type="hidden" name="source" value="picker">`)

	// A rejected drop fails exactly like a rejected pick.
	var rejections []string
	for _, src := range []string{"drop", "picker"} {
		resp := app.postMultipart(t, "/create-data", map[string]string{"source": src, "action": "attach"}, "scan.png", []byte("\x89PNG\r\n\x1a\n"))
		rejections = append(rejections, app.follow(t, resp).Body)
	}
	assert.Contains(t, rejections[0], "only plain-text .txt files are accepted")
	assert.Contains(t, rejections[1], "only plain-text .txt files are accepted")

	resp := app.postMultipart(t, "/create-data", map[string]string{"source": "drop", "action": "attach"}, "corpus.txt", []byte("Бул таштадым."))
	require.Equal(t, http.StatusSeeOther, resp.Status)
	attached := app.follow(t, resp)
	assert.Contains(t, attached.Body, "corpus.txt")
	assert.Empty(t, app.backend.runs, "dropping only attaches")

	resp = app.postMultipart(t, "/create-data", map[string]string{"action": "submit"}, "", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)
	require.Len(t, app.backend.runs, 1)
	assert.Equal(t, "Бул таштадым.", app.backend.runs[0].Get("file"))

	done := app.follow(t, resp)
	assert.Contains(t, done.Body, "Created 2 sentences and 5 tokens from dropped file corpus.txt.")
}

func TestIngest_OverlappingSubmitKeepsInput(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")
	app.backend.mu.Lock()
	app.backend.runGate = make(chan struct{})
	app.backend.runStarted = make(chan struct{}, 1)
	app.backend.mu.Unlock()
	require.Equal(t, http.StatusOK, app.get(t, "/create-data").Status)

	first := make(chan testResponse, 1)
	go func() {
		first <- app.postMultipart(t, "/create-data", map[string]string{"text_form": "биринчи", "action": "submit"}, "", nil)
	}()
	<-app.backend.runStarted

	second := app.postMultipart(t, "/create-data", map[string]string{"text_form": "экинчи", "action": "submit"}, "", nil)
	require.Equal(t, http.StatusSeeOther, second.Status)
	busy := app.follow(t, second)
	assert.Contains(t, busy.Body, "The previous submission is still running.")
	assert.Contains(t, busy.Body, "биринчи")
	assert.NotContains(t, busy.Body, "экинчи")

	close(app.backend.runGate)
	require.Equal(t, http.StatusSeeOther, (<-first).Status)

	require.Len(t, app.backend.runs, 1)
	assert.Equal(t, "биринчи", app.backend.runs[0].Get("text_form"))
	after := app.get(t, "/create-data")
	assert.NotContains(t, after.Body, "биринчи")
	assert.NotContains(t, after.Body, "экинчи")
}

func TestIngest_RemoveFileKeepsText(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	resp := app.postMultipart(t, "/create-data", map[string]string{"text_form": "сакта", "action": "remove-file"}, "a.txt", []byte("файл"))
	require.Equal(t, http.StatusSeeOther, resp.Status)

	page := app.follow(t, resp)
	assert.Contains(t, page.Body, "сакта")
	assert.NotContains(t, page.Body, "Attached:")
	assert.Empty(t, app.backend.runs)
}

func TestUsers_ListCreateDelete(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	list := app.get(t, "/users")
	require.Equal(t, http.StatusOK, list.Status)
	assert.Contains(t, list.Body, "bakyt")
	assert.NotContains(t, list.Body, `action="/users/1/delete"`, "admins cannot delete themselves")
	assert.Contains(t, list.Body, `action="/users/2/delete"`)

	resp := app.post(t, "/users", url.Values{"username": {"cholpon"}, "password": {"long-enough"}, "role": {"viewer"}})
	require.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Contains(t, app.follow(t, resp).Body, "cholpon can now sign in as viewer.")

	resp = app.post(t, "/users/2/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, []int{2}, app.backend.deleted)
}

func TestUsers_Validation(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "aigul")

	resp := app.post(t, "/users", url.Values{"username": {"x"}, "password": {"short"}, "role": {"viewer"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Contains(t, resp.Body, "password must be at least 8 characters")

	resp = app.post(t, "/users", url.Values{"username": {"bakyt"}, "password": {"long-enough"}, "role": {"editor"}})
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Contains(t, resp.Body, "Username already taken")

	resp = app.post(t, "/users/1/delete", nil)
	assert.Contains(t, app.follow(t, resp).Body, "cannot delete the signed-in account")
	assert.Empty(t, app.backend.deleted)
}

func TestAPI_TaxonomyAndMe(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusUnauthorized, app.get(t, "/api/me").Status)

	app.login(t, "bakyt")

	me := app.get(t, "/api/me")
	require.Equal(t, http.StatusOK, me.Status)
	var who MeResponse
	require.NoError(t, json.Unmarshal([]byte(me.Body), &who))
	assert.Equal(t, "bakyt", who.User.Username)
	assert.False(t, who.IsAdmin)

	tax := app.get(t, "/api/taxonomy")
	require.Equal(t, http.StatusOK, tax.Status)
	var body TaxonomyResponse
	require.NoError(t, json.Unmarshal([]byte(tax.Body), &body))
	require.NotEmpty(t, body.Categories)
	assert.Equal(t, "Маани берүүчү", body.Categories[0].Label)
	assert.NotEmpty(t, body.Features["NOUN"])
}

func (a *testApp) postMultipart(t *testing.T, path string, fields map[string]string, fileName string, data []byte) testResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(t, req)
}

func itoa(i int) string {
	return strings.TrimSpace(strconvItoa(i))
}
