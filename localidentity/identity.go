// Package localidentity is an in-process [adminauth.IdentityService] for
// local development and tests. It stands in for the hosted identity
// backend: Argon2id password hashes, HS256 session tokens, and synchronous
// auth-state-change fan-out.
//
// It is deliberately single-session: like a browser client of the hosted
// service, at most one signed-in session exists at a time.
package localidentity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/techvik/adminauth"
	"github.com/techvik/adminauth/password"
)

const defaultTokenTTL = time.Hour

type account struct {
	id           string
	email        string
	passwordHash string
}

type session struct {
	userID    string
	email     string
	token     string
	expiresAt time.Time
}

type resetRequest struct {
	email      string
	redirectTo string
}

// Service defines a public type used by adminauth APIs.
//
// Service instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Service struct {
	hasher     *password.Hasher
	signingKey []byte
	tokenTTL   time.Duration

	mu        sync.Mutex
	users     map[string]*account
	session   *session
	subs      map[int]func(adminauth.AuthChangeEvent)
	nextSub   int
	lastReset *resetRequest
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(signingKey []byte) (*Service, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes")
	}
	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, err
	}
	return &Service{
		hasher:     hasher,
		signingKey: signingKey,
		tokenTTL:   defaultTokenTTL,
		users:      make(map[string]*account),
		subs:       make(map[int]func(adminauth.AuthChangeEvent)),
	}, nil
}

// Register provisions a user and returns its id.
func (s *Service) Register(email, plaintext string) (string, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := canonicalEmail(email)
	if _, exists := s.users[key]; exists {
		return "", fmt.Errorf("user already registered: %s", email)
	}
	id := uuid.NewString()
	s.users[key] = &account{id: id, email: email, passwordHash: hash}
	return id, nil
}

// SignInWithPassword implements [adminauth.IdentityService]. A rejected
// pair returns an error wrapping [adminauth.ErrInvalidCredentials] with the
// service's own message.
func (s *Service) SignInWithPassword(ctx context.Context, email, plaintext string) (*adminauth.IdentityUser, error) {
	_ = ctx

	s.mu.Lock()
	user, exists := s.users[canonicalEmail(email)]
	s.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: Invalid login credentials", adminauth.ErrInvalidCredentials)
	}
	ok, err := s.hasher.Verify(plaintext, user.passwordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: Invalid login credentials", adminauth.ErrInvalidCredentials)
	}

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = &session{userID: user.id, email: user.email, token: token, expiresAt: expiresAt}
	s.mu.Unlock()

	s.fanOut(adminauth.AuthChangeEvent{Type: adminauth.AuthSignedIn, UserID: user.id})
	return &adminauth.IdentityUser{ID: user.id, Email: user.email}, nil
}

// SignOut implements [adminauth.IdentityService]. Signing out with no
// session is not an error.
func (s *Service) SignOut(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	current := s.session
	s.session = nil
	s.mu.Unlock()

	if current != nil {
		s.fanOut(adminauth.AuthChangeEvent{Type: adminauth.AuthSignedOut, UserID: current.userID})
	}
	return nil
}

// ResetPasswordForEmail implements [adminauth.IdentityService]. The request
// is recorded; a hosted deployment would send the email.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReset = &resetRequest{email: email, redirectTo: redirectTo}
	return nil
}

// OnAuthStateChange implements [adminauth.IdentityService].
func (s *Service) OnAuthStateChange(fn func(adminauth.AuthChangeEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// RevokeSession simulates the hosted service invalidating the session out
// from under the client (admin console revocation, token expiry, etc.).
func (s *Service) RevokeSession() {
	s.mu.Lock()
	current := s.session
	s.session = nil
	s.mu.Unlock()

	if current != nil {
		s.fanOut(adminauth.AuthChangeEvent{Type: adminauth.AuthSignedOut, UserID: current.userID})
	}
}

// SessionToken returns the current session's JWT, or "" when signed out.
func (s *Service) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.token
}

// ParseToken validates a session token and returns the subject and email
// claims.
func (s *Service) ParseToken(token string) (userID, email string, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	em, _ := claims["email"].(string)
	return sub, em, nil
}

// LastResetRequest returns the most recent password-reset delegation, for
// assertions and local debugging.
func (s *Service) LastResetRequest() (email, redirectTo string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReset == nil {
		return "", "", false
	}
	return s.lastReset.email, s.lastReset.redirectTo, true
}

func (s *Service) issueToken(user *account) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.id,
		"email": user.email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   uuid.NewString(),
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// fanOut delivers events synchronously outside the service lock, matching
// the single-threaded callback semantics of the hosted client SDK.
func (s *Service) fanOut(event adminauth.AuthChangeEvent) {
	s.mu.Lock()
	handlers := make([]func(adminauth.AuthChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
