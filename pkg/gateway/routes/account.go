package routes

import (
	"net/http"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/gateway/middleware"
)

const maxFeedbackLength = 4000

type feedbackRequest struct {
	Message string `json:"message"`
	Page    string `json:"page,omitempty"`
}

func (d *Dashboard) handleProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		d.respondError(w, r, &apperr.AuthError{Message: "not signed in", Redirect: "/login"})
		return
	}
	role := middleware.RoleFrom(r.Context())
	var reachable []string
	for _, route := range access.Routes {
		if access.Allowed(role, route.Allowed) {
			reachable = append(reachable, "/"+route.Name)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":          s.User,
		"role":          role,
		"landing":       access.Landing(role),
		"routes":        reachable,
		"token_expires": s.Token.Expiry,
		"can_approve":   access.CanApprove(role),
	})
}

func (d *Dashboard) handleSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"api_base_url":       d.api.BaseURL(),
		"upload_max_bytes":   d.validator.MaxBytes(),
		"file_max_bytes":     d.opts.FileMaxBytes,
		"upload_concurrency": d.opts.UploadConcurrency,
		"feedback_log_only":  d.opts.FeedbackLogOnly,
		"checklist":          d.checklist,
	})
}

func (d *Dashboard) handleFeedbackPage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fields":     []string{"message", "page"},
		"max_length": maxFeedbackLength,
	})
}

func (d *Dashboard) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		d.respondError(w, r, err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.Message == "":
		d.respondError(w, r, apperr.NewValidationError("message", "feedback cannot be empty"))
		return
	case len(req.Message) > maxFeedbackLength:
		d.respondError(w, r, apperr.NewValidationError("message", "feedback is limited to %d characters", maxFeedbackLength))
		return
	}

	logger.Log.WithFields(map[string]interface{}{
		"role": middleware.RoleFrom(r.Context()),
		"page": req.Page,
	}).Info("Feedback received")
	if !d.opts.FeedbackLogOnly {
		d.record(r, models.ActivityEvent{
			Type:    models.ActivityFeedback,
			Payload: map[string]interface{}{"message": req.Message, "page": req.Page},
		})
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}
