package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

type contextKey int

const userIDKey contextKey = 0

// tokenStore issues opaque bearer tokens at login. Tokens live in memory
// for the process lifetime; a restart just forces re-login.
type tokenStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	userID  string
	expires time.Time
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{
		ttl:    ttl,
		tokens: make(map[string]tokenEntry),
	}
}

func (ts *tokenStore) issue(userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	ts.mu.Lock()
	ts.tokens[token] = tokenEntry{userID: userID, expires: time.Now().Add(ts.ttl)}
	ts.mu.Unlock()

	return token, nil
}

func (ts *tokenStore) lookup(token string) (string, bool) {
	ts.mu.RLock()
	entry, ok := ts.tokens[token]
	ts.mu.RUnlock()

	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		ts.mu.Lock()
		delete(ts.tokens, token)
		ts.mu.Unlock()
		return "", false
	}
	return entry.userID, true
}

// requireAuth resolves the bearer token and stashes the user id in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, ok := s.tokens.lookup(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
