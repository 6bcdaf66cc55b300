// Package auth provides the identity/session provider consumed by the sync core.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
)

// User is the signed-in identity.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// SessionProvider exposes the current user and auth-state transitions.
type SessionProvider interface {
	// CurrentUser returns the signed-in user or nil.
	CurrentUser() *User
	// OnAuthStateChanged registers cb for sign-in/sign-out transitions.
	// The returned func unsubscribes.
	OnAuthStateChanged(cb func(*User)) func()
}

// Claims are the JWT claims carried by a session token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Leeway tolerated on exp/nbf/iat checks.
const Leeway = 30 * time.Second

// Session is an HS256 JWT-backed SessionProvider.
type Session struct {
	signKey []byte
	now     func() time.Time

	mu        sync.RWMutex
	user      *User
	expiresAt time.Time
	listeners map[int]func(*User)
	nextID    int
}

// NewSession creates a signed-out session verifying tokens with signKey.
func NewSession(signKey []byte) *Session {
	return &Session{
		signKey:   signKey,
		now:       time.Now,
		listeners: make(map[int]func(*User)),
	}
}

// IssueToken signs a token for uid valid for ttl.
func (s *Session) IssueToken(uid, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
}

// SignInWithToken verifies tok and makes its subject the current user.
func (s *Session) SignInWithToken(tok string) (*User, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithLeeway(Leeway))
	if err != nil || !parsed.Valid {
		return nil, apperrors.Wrap(apperrors.ErrSyncAuthFailed, "invalid token", err)
	}
	if claims.Subject == "" {
		return nil, apperrors.New(apperrors.ErrSyncAuthFailed, "token has no subject")
	}

	user := &User{UID: claims.Subject, Email: claims.Email}

	s.mu.Lock()
	s.user = user
	s.expiresAt = time.Time{}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	s.mu.Unlock()

	logging.Info("User signed in", map[string]interface{}{"uid": user.UID})
	s.emit(user)
	return user, nil
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.mu.Lock()
	was := s.user
	s.user = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if was != nil {
		logging.Info("User signed out", map[string]interface{}{"uid": was.UID})
		s.emit(nil)
	}
}

// CurrentUser implements SessionProvider. Expired sessions report nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	if !s.expiresAt.IsZero() && s.now().After(s.expiresAt.Add(Leeway)) {
		return nil
	}
	u := *s.user
	return &u
}

// OnAuthStateChanged implements SessionProvider.
func (s *Session) OnAuthStateChanged(cb func(*User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) emit(u *User) {
	s.mu.RLock()
	cbs := make([]func(*User), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(u)
	}
}
