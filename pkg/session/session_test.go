package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"golang.org/x/oauth2"
)

func init() {
	logger.Discard()
}

func signedToken(t *testing.T, role models.Role, exp time.Time) string {
	t.Helper()
	claims := Claims{Role: role, Email: "user@example.org"}
	claims.Subject = "42"
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return tok
}

func TestIsTokenValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsTokenValid(signedToken(t, models.RoleAdmin, now.Add(time.Hour)), now))
	assert.False(t, IsTokenValid(signedToken(t, models.RoleAdmin, now.Add(-time.Second)), now))
	assert.False(t, IsTokenValid(signedToken(t, models.RoleAdmin, time.Time{}), now), "no exp claim")
	assert.False(t, IsTokenValid("not-a-jwt", now))
	assert.False(t, IsTokenValid("", now))
	assert.False(t, IsTokenValid("a.b.c", now))
}

func TestRoleFromTokenNeedsNoNetwork(t *testing.T) {
	tok := signedToken(t, models.RoleDocUploader, time.Now().Add(time.Hour))
	role, ok := RoleFromToken(tok)
	require.True(t, ok)
	assert.Equal(t, models.RoleDocUploader, role)

	_, ok = RoleFromToken("garbage")
	assert.False(t, ok)
}

type fakeAuth struct {
	token     models.TokenResponse
	loginErr  error
	user      models.User
	meErr     error
	logoutErr error
	logouts   int
}

func (f *fakeAuth) Login(context.Context, string, string) (models.TokenResponse, error) {
	return f.token, f.loginErr
}

func (f *fakeAuth) Me(context.Context) (models.User, error) { return f.user, f.meErr }

func (f *fakeAuth) Logout(context.Context) error {
	f.logouts++
	return f.logoutErr
}

type fakeBackend struct{ auth *fakeAuth }

func (b fakeBackend) Anonymous() Authenticator { return b.auth }
func (b fakeBackend) WithToken(_ *oauth2.Token) Authenticator { return b.auth }

func TestLoginStoresTokenAndUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auth := &fakeAuth{
		token: models.TokenResponse{AccessToken: signedToken(t, models.RoleMedicalDirector, now.Add(2*time.Hour)), TokenType: "bearer"},
		user:  models.User{ID: "9", Email: "md@example.org", Role: models.RoleMedicalDirector, IsActive: true},
	}
	store := NewMemoryStore()
	mgr := NewManager(store, fakeBackend{auth}, time.Hour, WithClock(func() time.Time { return now }))

	s, err := mgr.Login(context.Background(), " md@example.org ", "pw")
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated(now))
	assert.Equal(t, now.Add(2*time.Hour), s.Token.Expiry.UTC())

	loaded, err := mgr.Load(context.Background(), s.ID)
	require.NoError(t, err)
	role, ok := loaded.Role()
	require.True(t, ok)
	assert.Equal(t, models.RoleMedicalDirector, role)
}

func TestLoginFailureIsAuthErrorWithServerMessage(t *testing.T) {
	auth := &fakeAuth{loginErr: &apperr.AuthError{Message: "Incorrect email or password"}}
	mgr := NewManager(NewMemoryStore(), fakeBackend{auth}, time.Hour)

	_, err := mgr.Login(context.Background(), "a@b.c", "bad")
	require.True(t, apperr.IsAuth(err))
	assert.Equal(t, "Incorrect email or password", err.Error())

	auth.loginErr = &apperr.NetworkError{Op: "POST /auth/login", Err: errors.New("connection refused")}
	_, err = mgr.Login(context.Background(), "a@b.c", "pw")
	assert.True(t, apperr.IsAuth(err))
	assert.True(t, apperr.IsNetwork(err))
}

func TestLoginRequiresCredentials(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), fakeBackend{&fakeAuth{}}, time.Hour)
	_, err := mgr.Login(context.Background(), "  ", "pw")
	assert.True(t, apperr.IsValidation(err))
}

func TestLogoutClearsSessionEvenWhenServerFails(t *testing.T) {
	now := time.Now()
	auth := &fakeAuth{
		token:     models.TokenResponse{AccessToken: signedToken(t, models.RoleAdmin, now.Add(time.Hour))},
		user:      models.User{ID: "1", Role: models.RoleAdmin},
		logoutErr: &apperr.APIError{StatusCode: 500, Message: "boom"},
	}
	store := NewMemoryStore()
	mgr := NewManager(store, fakeBackend{auth}, time.Hour)

	s, err := mgr.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	require.NoError(t, mgr.Logout(context.Background(), s.ID))
	assert.Equal(t, 1, auth.logouts)
	assert.Zero(t, store.Len())
}

func TestLoadExpiredTokenClearsSilently(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	auth := &fakeAuth{
		token: models.TokenResponse{AccessToken: signedToken(t, models.RoleAdmin, now.Add(time.Minute))},
		user:  models.User{ID: "1", Role: models.RoleAdmin},
	}
	store := NewMemoryStore()
	mgr := NewManager(store, fakeBackend{auth}, time.Hour, WithClock(func() time.Time { return clock }))

	s, err := mgr.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = mgr.Load(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, store.Len())
}

func TestLoadMalformedStoredTokenIsNoSession(t *testing.T) {
	store := NewMemoryStore()
	s := &Session{ID: "abc"}
	s.SetToken("definitely.not.jwt", "")
	require.NoError(t, store.Put(context.Background(), s, 0))

	mgr := NewManager(store, fakeBackend{&fakeAuth{}}, time.Hour)
	_, err := mgr.Load(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	s := &Session{ID: "x", User: &models.User{FullName: "Dr. A"}}
	require.NoError(t, store.Put(context.Background(), s, time.Hour))
	s.User.FullName = "changed"

	got, err := store.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Dr. A", got.User.FullName)
}

// Login through the real API client against a fake backend, then an expired
// token: the session is authenticated, then silently gone.
func TestLoginAgainstBackendThenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, models.RoleMedicalDirector, now.Add(30*time.Minute))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var req models.LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "md@example.org", req.Email)
			_ = json.NewEncoder(w).Encode(models.TokenResponse{AccessToken: token, TokenType: "bearer"})
		case "/api/v1/auth/me":
			assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(models.User{ID: "5", Email: "md@example.org", Role: models.RoleMedicalDirector})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL+"/api/v1", 5*time.Second)
	require.NoError(t, err)

	clock := now
	mgr := NewManager(NewMemoryStore(), NewClientBackend(client), time.Hour, WithClock(func() time.Time { return clock }))
	s, err := mgr.Login(context.Background(), "md@example.org", "pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.AccessToken(), "ey"))
	assert.True(t, s.IsAuthenticated(clock))

	clock = now.Add(time.Hour)
	_, err = mgr.Load(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}
