// Package session owns the dashboard session: the backend bearer token and
// the user profile fetched with it. Sessions are created on login, dropped on
// logout, and silently dropped the first time their token is found expired.
// There is no refresh flow; logging in again is the only recovery.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"golang.org/x/oauth2"
)

type Session struct {
	ID    string
	Token oauth2.Token
	User  *models.User
}

// SetToken stores the raw token and copies its exp claim into Token.Expiry.
func (s *Session) SetToken(accessToken, tokenType string) {
	if tokenType == "" {
		tokenType = "bearer"
	}
	s.Token = oauth2.Token{AccessToken: accessToken, TokenType: tokenType}
	if exp, err := TokenExpiry(accessToken); err == nil {
		s.Token.Expiry = exp
	}
}

func (s *Session) AccessToken() string { return s.Token.AccessToken }

// TokenValid reports whether the token decodes and is not expired at now.
func (s *Session) TokenValid(now time.Time) bool {
	return s != nil && IsTokenValid(s.Token.AccessToken, now)
}

// IsAuthenticated holds iff a non-expired token and a fetched user both exist.
func (s *Session) IsAuthenticated(now time.Time) bool {
	return s.TokenValid(now) && s.User != nil
}

// Role prefers the fetched profile and falls back to the token claim.
func (s *Session) Role() (models.Role, bool) {
	if s == nil {
		return "", false
	}
	if s.User != nil && s.User.Role != "" {
		return s.User.Role, true
	}
	return RoleFromToken(s.Token.AccessToken)
}

func (s Session) clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}

// Authenticator is the slice of the API client the manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.TokenResponse, error)
	Me(ctx context.Context) (models.User, error)
	Logout(ctx context.Context) error
}

// Backend binds an Authenticator to a token.
type Backend interface {
	Anonymous() Authenticator
	WithToken(token *oauth2.Token) Authenticator
}

type clientBackend struct {
	client *apiclient.Client
}

// NewClientBackend adapts the API client for the manager.
func NewClientBackend(client *apiclient.Client) Backend {
	return clientBackend{client: client}
}

func (b clientBackend) Anonymous() Authenticator { return b.client }

func (b clientBackend) WithToken(token *oauth2.Token) Authenticator {
	return b.client.WithToken(token)
}

type Manager struct {
	store       Store
	backend     Backend
	fallbackTTL time.Duration
	nowFunc     func() time.Time
}

type ManagerOption func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowFunc = now }
}

func NewManager(store Store, backend Backend, fallbackTTL time.Duration, opts ...ManagerOption) *Manager {
	if fallbackTTL <= 0 {
		fallbackTTL = 8 * time.Hour
	}
	m := &Manager{store: store, backend: backend, fallbackTTL: fallbackTTL, nowFunc: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Now() time.Time { return m.nowFunc() }

// Login authenticates against the backend, fetches the profile and persists
// the combined session. Failures come back as AuthError with the backend's
// message intact.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.NewValidationError("credentials", "email and password are required")
	}

	tokenResp, err := m.backend.Anonymous().Login(ctx, email, password)
	if err != nil {
		return nil, asAuthError(err)
	}
	if tokenResp.AccessToken == "" {
		return nil, &apperr.AuthError{Message: "login response did not include an access token"}
	}

	s := &Session{ID: uuid.NewString()}
	s.SetToken(tokenResp.AccessToken, tokenResp.TokenType)

	user, err := m.backend.WithToken(&s.Token).Me(ctx)
	if err != nil {
		return nil, asAuthError(err)
	}
	s.User = &user

	if err := m.store.Put(ctx, s, m.ttlFor(s)); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("session created")
	return s, nil
}

// Logout tries to invalidate the token server side and always clears the
// local session, whatever the server answers.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err == nil && s.AccessToken() != "" {
		if logoutErr := m.backend.WithToken(&s.Token).Logout(ctx); logoutErr != nil {
			logger.Log.WithError(logoutErr).Warn("server-side logout failed; clearing local session anyway")
		}
	}
	if delErr := m.store.Delete(ctx, sessionID); delErr != nil {
		return fmt.Errorf("clearing session: %w", delErr)
	}
	return nil
}

// Load returns the stored session. An expired or undecodable token clears the
// session and yields ErrNoSession.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.TokenValid(m.nowFunc()) {
		if delErr := m.store.Delete(ctx, sessionID); delErr != nil {
			logger.Log.WithError(delErr).Warn("failed to clear expired session")
		}
		return nil, ErrNoSession
	}
	return s, nil
}

// EnsureUser fetches the profile for a session that only has a token.
func (m *Manager) EnsureUser(ctx context.Context, s *Session) (*Session, error) {
	if s.User != nil {
		return s, nil
	}
	user, err := m.backend.WithToken(&s.Token).Me(ctx)
	if err != nil {
		return s, err
	}
	s.User = &user
	if err := m.store.Put(ctx, s, m.ttlFor(s)); err != nil {
		logger.Log.WithError(err).Warn("failed to persist fetched profile")
	}
	return s, nil
}

// Clear drops a session without contacting the backend. Used when the backend
// has already refused the token.
func (m *Manager) Clear(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		logger.Log.WithError(err).Warn("failed to clear session")
	}
}

func (m *Manager) ttlFor(s *Session) time.Duration {
	if s.Token.Expiry.IsZero() {
		return m.fallbackTTL
	}
	if ttl := s.Token.Expiry.Sub(m.nowFunc()); ttl > 0 {
		return ttl
	}
	return time.Second
}

func asAuthError(err error) error {
	var authErr *apperr.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &apperr.AuthError{Message: err.Error(), Err: err}
}
