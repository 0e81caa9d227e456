package routes

import (
	"net/http"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/gateway/middleware"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type loginResponse struct {
	User     *models.User `json:"user"`
	Redirect string       `json:"redirect"`
}

func (d *Dashboard) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.SessionFrom(r.Context()); ok && s.User != nil {
		http.Redirect(w, r, access.Landing(s.User.Role), http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (d *Dashboard) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	next, _ := access.SafeNext(r.URL.Query().Get("next"))
	if s, ok := middleware.SessionFrom(r.Context()); ok && s.User != nil {
		if next == "" {
			next = access.Landing(s.User.Role)
		}
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": false,
		"next":          next,
		"fields":        []string{"email", "password"},
	})
}

// handleLogin accepts JSON or a urlencoded form. Backend messages are passed
// through verbatim.
func (d *Dashboard) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			d.respondError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
			return
		}
		req = loginRequest{
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
			Next:     r.PostForm.Get("next"),
		}
	}
	if req.Next == "" {
		req.Next = r.URL.Query().Get("next")
	}

	s, err := d.sessions.Login(r.Context(), req.Email, req.Password)
	metrics.ObserveLogin(err == nil)
	if err != nil {
		d.respondError(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, d.opts.CookieName, s.ID, s.Token.Expiry, d.opts.CookieSecure)
	d.activity.Record(r.Context(), models.ActivityEvent{
		Type:  models.ActivityLogin,
		Actor: s.User.Email,
		Role:  s.User.Role,
	})

	redirect, ok := access.SafeNext(req.Next)
	if !ok || redirect == "" {
		redirect = access.Landing(s.User.Role)
	}
	respondJSON(w, http.StatusOK, loginResponse{User: s.User, Redirect: redirect})
}

// handleLogout always ends the local session, even when the backend call
// fails.
func (d *Dashboard) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.SessionFrom(r.Context()); ok {
		d.record(r, models.ActivityEvent{Type: models.ActivityLogout})
		if err := d.sessions.Logout(r.Context(), s.ID); err != nil {
			middleware.ClearSessionCookie(w, d.opts.CookieName, d.opts.CookieSecure)
			d.respondError(w, r, err)
			return
		}
	}
	middleware.ClearSessionCookie(w, d.opts.CookieName, d.opts.CookieSecure)
	respondJSON(w, http.StatusOK, map[string]string{"redirect": "/login"})
}
