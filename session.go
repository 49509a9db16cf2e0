package cas

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// SessionStore keeps the authenticated principal between requests so
// that each one does not have to spend a fresh ticket.
type SessionStore interface {
	// Get retrieves the principal for the request's session.
	Get(r *http.Request) (*Principal, error)
	// Set stores the principal in a new or existing session.
	Set(w http.ResponseWriter, r *http.Request, p *Principal) error
	// Delete terminates the request's session.
	Delete(w http.ResponseWriter, r *http.Request) error
}

// MemorySessionStore is a simple in-memory session store.
// Note: this is for development/testing only. Use a shared store in
// production.
type MemorySessionStore struct {
	sessions   map[string]*sessionData
	mu         sync.RWMutex
	cookieName string
	maxAge     int // seconds
}

type sessionData struct {
	Principal *Principal
	ExpiresAt time.Time
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore(cookieName string, maxAge int) *MemorySessionStore {
	store := &MemorySessionStore{
		sessions:   make(map[string]*sessionData),
		cookieName: cookieName,
		maxAge:     maxAge,
	}
	go store.cleanup()
	return store
}

// Get retrieves the principal for the request's session.
func (s *MemorySessionStore) Get(r *http.Request) (*Principal, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.sessions[cookie.Value]
	if !ok {
		return nil, errors.New("session not found")
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, errors.New("session expired")
	}
	return data.Principal, nil
}

// Set stores the principal under a fresh session ID.
func (s *MemorySessionStore) Set(w http.ResponseWriter, r *http.Request, p *Principal) error {
	sessionID := generateSessionID()

	s.mu.Lock()
	s.sessions[sessionID] = &sessionData{
		Principal: p,
		ExpiresAt: time.Now().Add(time.Duration(s.maxAge) * time.Second),
	}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   s.maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Delete removes the request's session.
func (s *MemorySessionStore) Delete(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(s.cookieName)
	if err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return nil
}

// cleanup periodically removes expired sessions.
func (s *MemorySessionStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for id, data := range s.sessions {
			if now.After(data.ExpiresAt) {
				delete(s.sessions, id)
			}
		}
		s.mu.Unlock()
	}
}

func generateSessionID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

// CookieSessionStore keeps the principal in a signed and encrypted
// cookie, so no server-side state is needed.
type CookieSessionStore struct {
	cookieName string
	maxAge     int
	codec      *securecookie.SecureCookie
}

// NewCookieSessionStore creates a cookie-backed session store. hashKey
// signs the cookie and should be at least 32 bytes; blockKey, when
// non-nil, additionally encrypts it and must be 16, 24 or 32 bytes.
func NewCookieSessionStore(cookieName string, maxAge int, hashKey, blockKey []byte) *CookieSessionStore {
	return &CookieSessionStore{
		cookieName: cookieName,
		maxAge:     maxAge,
		codec:      securecookie.New(hashKey, blockKey),
	}
}

// Get retrieves and verifies the principal from the cookie.
func (s *CookieSessionStore) Get(r *http.Request) (*Principal, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := s.codec.Decode(s.cookieName, cookie.Value, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set stores the principal in the cookie.
func (s *CookieSessionStore) Set(w http.ResponseWriter, r *http.Request, p *Principal) error {
	encoded, err := s.codec.Encode(s.cookieName, p)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   s.maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Delete removes the session cookie.
func (s *CookieSessionStore) Delete(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return nil
}

// GorillaSessionStore keeps the principal in a gorilla/sessions cookie
// session, for applications that already share a gorilla session setup.
type GorillaSessionStore struct {
	store *sessions.CookieStore
	name  string
}

const gorillaPrincipalKey = "principal"

// NewGorillaSessionStore creates a gorilla-backed session store with the
// given session name and cookie signing key.
func NewGorillaSessionStore(name string, maxAge int, keyPairs ...[]byte) *GorillaSessionStore {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &GorillaSessionStore{store: store, name: name}
}

// Get retrieves the principal from the gorilla session.
func (s *GorillaSessionStore) Get(r *http.Request) (*Principal, error) {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return nil, err
	}

	raw, ok := session.Values[gorillaPrincipalKey].([]byte)
	if !ok {
		return nil, errors.New("no principal in session")
	}

	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set stores the principal, JSON-encoded, in the gorilla session.
func (s *GorillaSessionStore) Set(w http.ResponseWriter, r *http.Request, p *Principal) error {
	// a stale or tampered cookie still yields a fresh session
	session, _ := s.store.Get(r, s.name)

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	session.Values[gorillaPrincipalKey] = data
	return session.Save(r, w)
}

// Delete expires the gorilla session.
func (s *GorillaSessionStore) Delete(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, s.name)
	session.Values = make(map[any]any)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
