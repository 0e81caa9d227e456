// Package routes serves the dashboard pages as JSON view models. Every page
// handler runs behind middleware.Guard and talks to the case-file backend
// through an API client bound to the caller's session token.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/activity"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/checklist"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/gateway/middleware"
	"github.com/synaptica-ai/casereview/pkg/session"
	"github.com/synaptica-ai/casereview/pkg/summary"
	"github.com/synaptica-ai/casereview/pkg/upload"
)

// Sessions is the part of session.Manager the handlers call directly.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*session.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Now() time.Time
}

type Options struct {
	CookieName        string
	CookieSecure      bool
	UploadConcurrency int
	FileMaxBytes      int64
	FeedbackLogOnly   bool
}

type Dashboard struct {
	sessions  Sessions
	api       *apiclient.Client
	checklist checklist.Definitions
	validator *upload.Validator
	pdf       *summary.PDFResolver
	activity  activity.Recorder
	opts      Options
}

func NewDashboard(
	sessions Sessions,
	api *apiclient.Client,
	defs checklist.Definitions,
	validator *upload.Validator,
	pdf *summary.PDFResolver,
	recorder activity.Recorder,
	opts Options,
) *Dashboard {
	if opts.CookieName == "" {
		opts.CookieName = "casereview_session"
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 4
	}
	if recorder == nil {
		recorder = activity.NewRecorder(nil)
	}
	return &Dashboard{
		sessions:  sessions,
		api:       api,
		checklist: defs,
		validator: validator,
		pdf:       pdf,
		activity:  recorder,
		opts:      opts,
	}
}

// Register mounts the public routes and every guarded page.
func (d *Dashboard) Register(r *mux.Router) {
	r.HandleFunc("/", d.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/login", d.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", d.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", d.handleLogout).Methods(http.MethodPost)

	guarded := func(route access.Route) *mux.Router {
		sub := r.NewRoute().Subrouter()
		sub.Use(middleware.Guard(route))
		return sub
	}

	guarded(access.RouteDashboard).HandleFunc("/dashboard", d.handleDashboard).Methods(http.MethodGet)
	guarded(access.RouteDonors).HandleFunc("/donors", d.handleDonors).Methods(http.MethodGet)
	guarded(access.RouteQueue).HandleFunc("/queue", d.handleQueue).Methods(http.MethodGet)
	guarded(access.RouteIntelligence).HandleFunc("/intelligence", d.handleIntelligence).Methods(http.MethodGet)

	docs := guarded(access.RouteDocuments)
	docs.HandleFunc("/documents/{donorId}", d.handleDocuments).Methods(http.MethodGet)
	docs.HandleFunc("/documents/{donorId}/{documentId}", d.handleDeleteDocument).Methods(http.MethodDelete)
	docs.HandleFunc("/documents/{donorId}/{documentId}/pdf", d.handlePDF).Methods(http.MethodGet)

	sum := guarded(access.RouteSummary)
	sum.HandleFunc("/summary/{id}", d.handleSummary).Methods(http.MethodGet)
	sum.HandleFunc("/summary/{id}/approvals", d.handleApprovalHistory).Methods(http.MethodGet)
	sum.HandleFunc("/summary/{id}/approvals", d.handleSubmitApproval).Methods(http.MethodPost)

	up := guarded(access.RouteUpload)
	up.Use(middleware.BodyLimit(d.uploadBodyLimit()))
	up.HandleFunc("/upload", d.handleUploadPage).Methods(http.MethodGet)
	up.HandleFunc("/upload/{donorId}", d.handleUploadPage).Methods(http.MethodGet)
	up.HandleFunc("/upload", d.handleUpload).Methods(http.MethodPost)
	up.HandleFunc("/upload/{donorId}", d.handleUpload).Methods(http.MethodPost)

	guarded(access.RouteProfile).HandleFunc("/profile", d.handleProfile).Methods(http.MethodGet)
	guarded(access.RouteSettings).HandleFunc("/settings", d.handleSettings).Methods(http.MethodGet)
	fb := guarded(access.RouteFeedback)
	fb.HandleFunc("/feedback", d.handleFeedbackPage).Methods(http.MethodGet)
	fb.HandleFunc("/feedback", d.handleFeedback).Methods(http.MethodPost)
}

// client binds the API client to the caller's token.
func (d *Dashboard) client(r *http.Request) *apiclient.Client {
	if s, ok := middleware.SessionFrom(r.Context()); ok {
		return d.api.WithToken(&s.Token)
	}
	return d.api
}

func (d *Dashboard) record(r *http.Request, event models.ActivityEvent) {
	if s, ok := middleware.SessionFrom(r.Context()); ok && s.User != nil {
		if event.Actor == "" {
			event.Actor = s.User.Email
		}
		if event.Role == "" {
			event.Role = s.User.Role
		}
	}
	d.activity.Record(r.Context(), event)
}

// respondError converts a workflow error into the page-level JSON answer.
func (d *Dashboard) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := d.errorBody(w, r, err)
	respondJSON(w, status, body)
}

func (d *Dashboard) errorBody(w http.ResponseWriter, r *http.Request, err error) (int, map[string]interface{}) {
	status := apperr.HTTPStatus(err)
	body := map[string]interface{}{"error": err.Error()}

	var authErr *apperr.AuthError
	var valErr *apperr.ValidationError
	switch {
	case errors.As(err, &authErr):
		middleware.ClearSessionCookie(w, d.opts.CookieName, d.opts.CookieSecure)
		redirect := authErr.Redirect
		if redirect == "" {
			redirect = "/login"
		}
		body["redirect"] = redirect
	case errors.As(err, &valErr):
		body["field"] = valErr.Field
	case apperr.IsNotFound(err):
		body["back"] = access.Landing(middleware.RoleFrom(r.Context()))
	case apperr.IsNetwork(err):
		body["error"] = "The case-file service could not be reached: " + err.Error()
	}

	entry := logger.Log.WithError(err).WithFields(map[string]interface{}{
		"path":       r.URL.Path,
		"request_id": middleware.RequestIDFrom(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	return status, body
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.NewValidationError("body", "invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) models.ID {
	return models.ID(mux.Vars(r)[name])
}
