package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
	"github.com/synaptica-ai/casereview/pkg/session"
)

// SessionLoader is the part of session.Manager the middleware needs.
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) (*session.Session, error)
	EnsureUser(ctx context.Context, s *session.Session) (*session.Session, error)
	Clear(ctx context.Context, sessionID string)
}

// Sessions resolves the session cookie into a session and an auth state for
// every request. Public handlers read them; Guard enforces them.
func Sessions(loader SessionLoader, cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := access.Unauthenticated
			var current *session.Session

			if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
				s, loadErr := loader.Load(r.Context(), cookie.Value)
				switch {
				case loadErr == nil:
					current, state = resolveProfile(r.Context(), loader, s)
					if current == nil {
						ClearSessionCookie(w, cookieName, secure)
					}
				case errors.Is(loadErr, session.ErrNoSession):
					metrics.ObserveSessionExpired()
					ClearSessionCookie(w, cookieName, secure)
				default:
					logger.Log.WithError(loadErr).Error("session lookup failed")
				}
			}

			ctx := context.WithValue(r.Context(), AuthStateContextKey, state)
			if current != nil {
				ctx = context.WithValue(ctx, SessionContextKey, current)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveProfile fetches the profile of a token-only session. A network
// failure leaves the session Loading; a refused token ends it.
func resolveProfile(ctx context.Context, loader SessionLoader, s *session.Session) (*session.Session, access.AuthState) {
	if s.User != nil {
		return s, access.Authenticated
	}
	id := s.ID
	s, err := loader.EnsureUser(ctx, s)
	if err == nil {
		return s, access.Authenticated
	}
	if apperr.IsAuth(err) {
		loader.Clear(ctx, id)
		metrics.ObserveSessionExpired()
		return nil, access.Unauthenticated
	}
	logger.Log.WithError(err).Warn("profile not available yet")
	return s, access.Loading
}

// Guard applies the route's allow-list. Children never run unless the
// decision is Render.
func Guard(route access.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := AuthStateFrom(r.Context())
			role := RoleFrom(r.Context())

			d := access.Decide(state, role, route.Allowed)
			switch d.Outcome {
			case access.Render:
				next.ServeHTTP(w, r)
			case access.Placeholder:
				w.Header().Set("Retry-After", "2")
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
					"state":   "loading",
					"message": "Loading your profile",
				})
			case access.RedirectLogin:
				http.Redirect(w, r, access.LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
			case access.Denied:
				metrics.ObserveAccessDenied()
				logger.Log.WithFields(map[string]interface{}{
					"route": route.Name,
					"role":  role,
				}).Info("access denied")
				writeJSON(w, http.StatusForbidden, map[string]interface{}{
					"error":   "Access Denied",
					"message": "Your role does not have access to this page.",
					"back":    d.Back,
				})
			}
		})
	}
}

// SessionFrom returns the request's session, if any.
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*session.Session)
	return s, ok && s != nil
}

func AuthStateFrom(ctx context.Context) access.AuthState {
	if state, ok := ctx.Value(AuthStateContextKey).(access.AuthState); ok {
		return state
	}
	return access.Unauthenticated
}

// RoleFrom prefers the fetched profile and falls back to the token claim.
func RoleFrom(ctx context.Context) models.Role {
	s, ok := SessionFrom(ctx)
	if !ok {
		return ""
	}
	role, _ := s.Role()
	return role
}

// ClearOnInvalidCredentials is the API client hook that drops the session the
// backend just refused.
func ClearOnInvalidCredentials(loader SessionLoader) func(ctx context.Context) {
	return func(ctx context.Context) {
		if s, ok := SessionFrom(ctx); ok {
			loader.Clear(ctx, s.ID)
			metrics.ObserveSessionExpired()
		}
	}
}

func SetSessionCookie(w http.ResponseWriter, name, id string, expires time.Time, secure bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
}

func ClearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
