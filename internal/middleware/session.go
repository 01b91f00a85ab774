package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultSessionCookie = "SHELL_SESSION"
	sessionLifetime      = 24 * time.Hour
)

// SessionData is the per-visitor state carried in the signed session cookie.
// It implements session.Store so the shell can read and clear the redirect.
type SessionData struct {
	mu        sync.Mutex
	ID        string            `json:"id"`
	Values    map[string]string `json:"values,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	// internal dirty flag; not serialized
	dirty bool
}

// Get implements session.Store.
func (s *SessionData) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// Set implements session.Store.
func (s *SessionData) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	s.Values[key] = value
	s.markDirty()
}

// Delete implements session.Store.
func (s *SessionData) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Values[key]; !ok {
		return
	}
	delete(s.Values, key)
	s.markDirty()
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirty()
}

func (s *SessionData) markDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

func (s *SessionData) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Sessions signs and verifies session cookies.
type Sessions struct {
	key    []byte
	cookie string
	secure bool
}

// NewSessions builds a cookie codec. An empty key gets a process-ephemeral
// one, so sessions do not survive restarts.
func NewSessions(signingKey, cookieName string, secure bool) *Sessions {
	key := []byte(signingKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("insecure-dev-key-please-set-SHELL_SESSION_SIGNING_KEY")
		}
	}
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	return &Sessions{key: key, cookie: cookieName, secure: secure}
}

// Middleware loads or initializes a session and stores it in request context.
// The cookie is written just before the response starts when the session
// changed.
func (m *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sd, fromCookie := m.read(r)
		if sd.ID == "" {
			sd.ID = randID()
			sd.CreatedAt = time.Now().UTC()
			sd.UpdatedAt = sd.CreatedAt
			sd.dirty = true
		}
		ctx := context.WithValue(r.Context(), ctxKeySession, sd)
		rw := NewResponseRecorder(w)
		rw.SetBeforeWrite(func(w http.ResponseWriter) {
			if sd.isDirty() || !fromCookie {
				m.write(w, sd)
			}
		})
		next.ServeHTTP(rw, r.WithContext(ctx))
		// If nothing was written yet (e.g., HEAD), persist cookie now
		if !rw.Wrote() && (sd.isDirty() || !fromCookie) {
			m.write(w, sd)
		}
	})
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if v := r.Context().Value(ctxKeySession); v != nil {
		if sd, ok := v.(*SessionData); ok {
			return sd
		}
	}
	return &SessionData{}
}

// read parses and verifies the session cookie
func (m *Sessions) read(r *http.Request) (*SessionData, bool) {
	c, err := r.Cookie(m.cookie)
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	payload, sig, ok := strings.Cut(c.Value, ".")
	if !ok {
		return &SessionData{}, false
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return &SessionData{}, false
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return &SessionData{}, false
	}
	if !hmac.Equal(sigB, m.sign(payloadB)) {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := json.Unmarshal(payloadB, &sd); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

func (m *Sessions) write(w http.ResponseWriter, sd *SessionData) {
	sd.mu.Lock()
	b, _ := json.Marshal(sd)
	sd.dirty = false
	sd.mu.Unlock()
	val := base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(m.sign(b))
	// httpOnly to prevent JS access
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionLifetime),
	})
}

func (m *Sessions) sign(b []byte) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write(b)
	return mac.Sum(nil)
}

func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
