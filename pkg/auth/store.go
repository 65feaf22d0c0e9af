package auth

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

// SessionName is the name of the console session cookie.
const SessionName = "tagging-console"

// Session value keys.
const (
	sessionKeyID         = "sid"
	sessionKeyCredential = "cred"
)

// Store keeps the browser's console session in an encrypted cookie: a
// random session ID keying server-side drafts, the backend credential and
// pending notices.
type Store struct {
	cookies *sessions.CookieStore
}

// NewStore creates the cookie store.
//
// The secret can be any passphrase; it is SHA-256 hashed to derive the
// signing key and, separately, the encryption key. It must be consistent
// across restarts and across replicas.
func NewStore(secret string, settings CookieSettings, maxAge int) *Store {
	hashKey := sha256.Sum256([]byte(secret))
	blockKey := sha256.Sum256([]byte("encrypt:" + secret))

	cs := sessions.NewCookieStore(hashKey[:], blockKey[:])
	cs.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{cookies: cs}
}

// get returns the session, starting a fresh one when the cookie is missing
// or cannot be decoded (e.g. after a secret rotation).
func (s *Store) get(r *http.Request) *sessions.Session {
	sess, err := s.cookies.Get(r, SessionName)
	if err != nil || sess == nil {
		sess, _ = s.cookies.New(r, SessionName)
	}
	return sess
}

// ID returns the browser session ID, assigning one if needed.
func (s *Store) ID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess := s.get(r)
	if id, ok := sess.Values[sessionKeyID].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	sess.Values[sessionKeyID] = id
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

// Credential returns the stored backend credential, or nil.
func (s *Store) Credential(r *http.Request) *backend.Credential {
	raw, ok := s.get(r).Values[sessionKeyCredential].(string)
	if !ok || raw == "" {
		return nil
	}
	var cred backend.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil
	}
	return &cred
}

// SaveCredential stores cred and rotates the session ID so drafts from a
// previous sign-in are not carried over.
func (s *Store) SaveCredential(w http.ResponseWriter, r *http.Request, cred *backend.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	sess := s.get(r)
	sess.Values[sessionKeyCredential] = string(raw)
	sess.Values[sessionKeyID] = uuid.NewString()
	return sess.Save(r, w)
}

// Clear removes the credential and session ID. Pending notices survive so
// the login page can show why the user was signed out.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	delete(sess.Values, sessionKeyCredential)
	delete(sess.Values, sessionKeyID)
	return sess.Save(r, w)
}

// AddNotice queues a notice for the next rendered page.
func (s *Store) AddNotice(w http.ResponseWriter, r *http.Request, n notify.Notice) error {
	sess := s.get(r)
	sess.AddFlash(n)
	return sess.Save(r, w)
}

// Notices pops the queued notices.
func (s *Store) Notices(w http.ResponseWriter, r *http.Request) []notify.Notice {
	sess := s.get(r)
	flashes := sess.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	out := make([]notify.Notice, 0, len(flashes))
	for _, f := range flashes {
		if n, ok := f.(notify.Notice); ok {
			out = append(out, n)
		}
	}
	_ = sess.Save(r, w)
	return out
}
