package transport

import (
	"strings"
	"sync"
	"time"

	"github.com/propmanage/propsync/internal/model"
)

// Session holds the credentials attached to outgoing requests. It lives only
// in memory; persisting tokens is left to the caller.
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	now          func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// SetTokens installs the tokens returned by login, register or refresh.
func (s *Session) SetTokens(tokens model.AuthTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = strings.TrimSpace(tokens.AccessToken)
	if refresh := strings.TrimSpace(tokens.RefreshToken); refresh != "" {
		s.refreshToken = refresh
	}
	s.expiresAt = time.Time{}
	if tokens.ExpiresIn > 0 {
		s.expiresAt = s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
}

// SetToken installs a bare access token with no known expiry.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = strings.TrimSpace(token)
	s.expiresAt = time.Time{}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// ExpiresAt is zero when the expiry is unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Expired reports whether the access token is known to have expired.
func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
}

// clearIfToken drops the credentials only if token is still the active one,
// so a 401 for a superseded token does not log out a fresh session.
func (s *Session) clearIfToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || s.accessToken != token {
		return false
	}
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	return true
}
