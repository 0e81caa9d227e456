package routes

import (
	"bytes"
	"net/http"

	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/approval"
	"github.com/synaptica-ai/casereview/pkg/checklist"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
	"github.com/synaptica-ai/casereview/pkg/gateway/middleware"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
	"github.com/synaptica-ai/casereview/pkg/summary"
)

type summaryResponse struct {
	*summary.Page
	Checklist  checklist.Checklist `json:"checklist"`
	CanApprove bool                `json:"can_approve"`
}

type historyEntry struct {
	models.ApprovalDecision
	Changes []checklist.DiffLine `json:"checklist_changes,omitempty"`
	Changed bool                 `json:"checklist_changed"`
}

type approvalForm struct {
	approval.Input
	DocumentID models.ID `json:"document_id,omitempty"`
}

// loadCase fetches the donor and evaluates its checklist.
func (d *Dashboard) loadCase(r *http.Request, donorID models.ID) (summary.Case, checklist.Checklist, error) {
	cs, err := summary.Fetch(r.Context(), d.client(r), donorID)
	if err != nil {
		return summary.Case{}, checklist.Checklist{}, err
	}
	payload, err := cs.Payload()
	if err != nil {
		return summary.Case{}, checklist.Checklist{}, err
	}
	return cs, checklist.Evaluate(d.checklist, cs.Documents, extraction.ConditionalEntries(payload)), nil
}

func (d *Dashboard) handleSummary(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "id")
	v := summary.FromQuery(donorID, r.URL.Query())
	cs, list, err := d.loadCase(r, donorID)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	page, err := summary.Render(v, cs.Donor, cs.Documents)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		Page:       page,
		Checklist:  list,
		CanApprove: access.CanApprove(middleware.RoleFrom(r.Context())),
	})
}

// handleApprovalHistory opens the approval modal: the history is reloaded on
// every call and each decision is compared with the current checklist.
func (d *Dashboard) handleApprovalHistory(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "id")
	wf := approval.New(d.client(r), approval.Target{
		DonorID:    donorID,
		DocumentID: models.ID(r.URL.Query().Get("document_id")),
	}, middleware.RoleFrom(r.Context()))
	if err := wf.Open(r.Context()); err != nil {
		d.respondError(w, r, err)
		return
	}
	_, list, err := d.loadCase(r, donorID)
	if err != nil {
		d.respondError(w, r, err)
		return
	}

	history := wf.History()
	entries := make([]historyEntry, 0, len(history))
	for _, decision := range history {
		entry := historyEntry{ApprovalDecision: decision}
		if len(bytes.TrimSpace(decision.ChecklistDataSnapshot)) > 0 {
			changes, err := checklist.DiffSnapshot(decision.ChecklistDataSnapshot, list)
			if err != nil {
				logger.Log.WithError(err).WithField("decision_id", decision.ID).Warn("Unreadable checklist snapshot")
			} else {
				entry.Changes = changes
				entry.Changed = checklist.Changed(changes)
			}
		}
		entries = append(entries, entry)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":       wf.State().String(),
		"history":     entries,
		"can_approve": access.CanApprove(middleware.RoleFrom(r.Context())),
	})
}

// handleSubmitApproval reloads the history, then records the decision with
// the checklist as evaluated now. A rejected form is answered with the typed
// input so nothing is lost.
func (d *Dashboard) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "id")
	var form approvalForm
	if err := decodeJSON(r, &form); err != nil {
		d.respondError(w, r, err)
		return
	}

	wf := approval.New(d.client(r), approval.Target{DonorID: donorID, DocumentID: form.DocumentID}, middleware.RoleFrom(r.Context()))
	if err := wf.Open(r.Context()); err != nil {
		d.respondError(w, r, err)
		return
	}
	_, list, err := d.loadCase(r, donorID)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	snapshot, err := list.Snapshot()
	if err != nil {
		d.respondError(w, r, err)
		return
	}

	decision, err := wf.Submit(r.Context(), form.Input, snapshot)
	if err != nil {
		if !apperr.IsValidation(err) {
			metrics.ObserveApproval(false)
		}
		status, body := d.errorBody(w, r, err)
		body["draft"] = wf.Draft()
		body["history"] = wf.History()
		respondJSON(w, status, body)
		return
	}
	metrics.ObserveApproval(true)
	d.record(r, models.ActivityEvent{
		Type:       models.ActivityApproval,
		DonorID:    donorID.String(),
		DocumentID: form.DocumentID.String(),
		Payload: map[string]interface{}{
			"status":        string(decision.Status),
			"approval_type": string(decision.ApprovalType),
		},
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"decision": decision,
		"history":  wf.History(),
	})
}
