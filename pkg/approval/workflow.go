// Package approval implements the approve/reject modal of a donor case: the
// decision history is always reloaded before a new decision may be recorded,
// and decisions are append-only.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/synaptica-ai/casereview/pkg/access"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

type State int

const (
	Closed State = iota
	LoadingHistory
	HistoryLoaded
	Submitting
)

func (s State) String() string {
	switch s {
	case LoadingHistory:
		return "loading_history"
	case HistoryLoaded:
		return "history_loaded"
	case Submitting:
		return "submitting"
	}
	return "closed"
}

var (
	// ErrNotOpen is returned when submitting before the history was loaded.
	ErrNotOpen = errors.New("approval history must be loaded before submitting")
	// ErrBusy is returned while a load or submission is in flight.
	ErrBusy = errors.New("approval workflow busy")
)

// Backend is the slice of the API client the workflow needs.
type Backend interface {
	ApprovalHistory(ctx context.Context, donorID models.ID) ([]models.ApprovalDecision, error)
	CreateApproval(ctx context.Context, req models.ApprovalRequest) (models.ApprovalDecision, error)
}

// Target is what the decision is about: the donor summary or one document.
type Target struct {
	DonorID    models.ID
	DocumentID models.ID
}

func (t Target) Type() models.ApprovalType {
	if t.DocumentID.IsZero() {
		return models.ApprovalTypeDonorSummary
	}
	return models.ApprovalTypeDocument
}

// Input is the modal form.
type Input struct {
	Status  models.ApprovalStatus `json:"status"`
	Comment string                `json:"comment"`
}

// Validate checks the form before any network call.
func (in Input) Validate() error {
	if in.Status != models.ApprovalApproved && in.Status != models.ApprovalRejected {
		return apperr.NewValidationError("status", "select approve or reject")
	}
	if strings.TrimSpace(in.Comment) == "" {
		return apperr.NewValidationError("comment", "a comment is required")
	}
	return nil
}

type Workflow struct {
	mu      sync.Mutex
	backend Backend
	target  Target
	role    models.Role
	state   State
	history []models.ApprovalDecision
	draft   Input
	lastErr error
}

func New(backend Backend, target Target, role models.Role) *Workflow {
	return &Workflow{backend: backend, target: target, role: role}
}

// Open (re)loads the full decision history. A failed load leaves the modal
// closed so no decision can be recorded without prior context.
func (w *Workflow) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.state == LoadingHistory || w.state == Submitting {
		w.mu.Unlock()
		return ErrBusy
	}
	w.state = LoadingHistory
	w.lastErr = nil
	w.mu.Unlock()

	history, err := w.backend.ApprovalHistory(ctx, w.target.DonorID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = Closed
		w.lastErr = err
		return fmt.Errorf("loading approval history: %w", err)
	}
	w.history = SortNewestFirst(history)
	w.state = HistoryLoaded
	return nil
}

// Submit records a decision with the checklist snapshot current at submit
// time. Validation failures issue no request. A failed request keeps the
// typed input and returns to HistoryLoaded.
func (w *Workflow) Submit(ctx context.Context, in Input, snapshot json.RawMessage) (models.ApprovalDecision, error) {
	w.mu.Lock()
	if !access.CanApprove(w.role) {
		w.mu.Unlock()
		return models.ApprovalDecision{}, &apperr.APIError{
			StatusCode: http.StatusForbidden,
			Message:    fmt.Sprintf("role %q may not record approval decisions", w.role),
		}
	}
	switch w.state {
	case HistoryLoaded:
	case LoadingHistory, Submitting:
		w.mu.Unlock()
		return models.ApprovalDecision{}, ErrBusy
	default:
		w.mu.Unlock()
		return models.ApprovalDecision{}, ErrNotOpen
	}
	w.draft = in
	if err := in.Validate(); err != nil {
		w.lastErr = err
		w.mu.Unlock()
		return models.ApprovalDecision{}, err
	}
	w.state = Submitting
	w.lastErr = nil
	w.mu.Unlock()

	req := models.ApprovalRequest{
		DonorID:       w.target.DonorID,
		DocumentID:    w.target.DocumentID,
		ApprovalType:  w.target.Type(),
		Status:        in.Status,
		Comment:       strings.TrimSpace(in.Comment),
		ChecklistData: snapshot,
	}
	decision, err := w.backend.CreateApproval(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = HistoryLoaded
		w.lastErr = err
		logger.Log.WithError(err).WithField("donor_id", w.target.DonorID).Warn("Approval submission failed")
		return models.ApprovalDecision{}, err
	}
	if decision.ChecklistDataSnapshot == nil {
		decision.ChecklistDataSnapshot = snapshot
	}
	w.history = SortNewestFirst(append([]models.ApprovalDecision{decision}, w.history...))
	w.draft = Input{}
	w.state = Closed
	return decision, nil
}

// Close discards the modal without recording anything.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Closed
	w.draft = Input{}
	w.lastErr = nil
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// History returns a copy, newest first.
func (w *Workflow) History() []models.ApprovalDecision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.ApprovalDecision(nil), w.history...)
}

// Draft is the input kept after a failed submission.
func (w *Workflow) Draft() Input {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Err is the error shown inline in the modal.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// SortNewestFirst orders decisions by created_at descending. Equal
// timestamps keep their server order. The input is not modified.
func SortNewestFirst(in []models.ApprovalDecision) []models.ApprovalDecision {
	out := append([]models.ApprovalDecision(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
