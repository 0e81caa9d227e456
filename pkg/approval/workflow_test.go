package approval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

func init() {
	logger.Discard()
}

type fakeBackend struct {
	history    []models.ApprovalDecision
	historyErr error
	createErr  error
	historyN   int
	posts      []models.ApprovalRequest
}

func (f *fakeBackend) ApprovalHistory(context.Context, models.ID) ([]models.ApprovalDecision, error) {
	f.historyN++
	return f.history, f.historyErr
}

func (f *fakeBackend) CreateApproval(_ context.Context, req models.ApprovalRequest) (models.ApprovalDecision, error) {
	f.posts = append(f.posts, req)
	if f.createErr != nil {
		return models.ApprovalDecision{}, f.createErr
	}
	return models.ApprovalDecision{
		ID:           "100",
		DonorID:      req.DonorID,
		ApprovalType: req.ApprovalType,
		Status:       req.Status,
		Comment:      req.Comment,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestEmptyCommentBlockedWithoutPost(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, Target{DonorID: "7"}, models.RoleMedicalDirector)
	require.NoError(t, w.Open(context.Background()))

	_, err := w.Submit(context.Background(), Input{Status: models.ApprovalApproved, Comment: "   "}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "comment", ve.Field)
	assert.Empty(t, backend.posts)
	assert.Equal(t, HistoryLoaded, w.State())
	assert.Equal(t, "   ", w.Draft().Comment)
}

func TestMissingStatusBlocked(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, Target{DonorID: "7"}, models.RoleAdmin)
	require.NoError(t, w.Open(context.Background()))

	for _, status := range []models.ApprovalStatus{"", models.ApprovalPending} {
		_, err := w.Submit(context.Background(), Input{Status: status, Comment: "looks fine"}, nil)
		assert.True(t, apperr.IsValidation(err))
	}
	assert.Empty(t, backend.posts)
}

func TestSubmitRequiresLoadedHistory(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, Target{DonorID: "7"}, models.RoleAdmin)

	_, err := w.Submit(context.Background(), Input{Status: models.ApprovalApproved, Comment: "ok"}, nil)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Empty(t, backend.posts)

	backend.historyErr = &apperr.NetworkError{Op: "GET history", Err: errors.New("offline")}
	err = w.Open(context.Background())
	assert.True(t, apperr.IsNetwork(err))
	assert.Equal(t, Closed, w.State())
}

func TestOpenAlwaysReloadsHistory(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, Target{DonorID: "7"}, models.RoleAdmin)
	require.NoError(t, w.Open(context.Background()))
	w.Close()
	require.NoError(t, w.Open(context.Background()))
	assert.Equal(t, 2, backend.historyN)
}

func TestSubmitCarriesSnapshotAndCloses(t *testing.T) {
	backend := &fakeBackend{history: []models.ApprovalDecision{{ID: "1", CreatedAt: base}}}
	w := New(backend, Target{DonorID: "7", DocumentID: "40"}, models.RoleMedicalDirector)
	require.NoError(t, w.Open(context.Background()))

	snapshot := json.RawMessage(`{"fixed":[{"name":"DRAI","is_present":true}]}`)
	decision, err := w.Submit(context.Background(), Input{Status: models.ApprovalRejected, Comment: " missing serology "}, snapshot)
	require.NoError(t, err)

	require.Len(t, backend.posts, 1)
	post := backend.posts[0]
	assert.Equal(t, models.ApprovalTypeDocument, post.ApprovalType)
	assert.Equal(t, models.ID("40"), post.DocumentID)
	assert.Equal(t, "missing serology", post.Comment)
	assert.JSONEq(t, string(snapshot), string(post.ChecklistData))

	assert.Equal(t, Closed, w.State())
	assert.Equal(t, Input{}, w.Draft())
	assert.JSONEq(t, string(snapshot), string(decision.ChecklistDataSnapshot))
	history := w.History()
	require.Len(t, history, 2)
	assert.Equal(t, models.ID("100"), history[0].ID)
}

func TestFailedSubmitKeepsComment(t *testing.T) {
	backend := &fakeBackend{createErr: &apperr.APIError{StatusCode: http.StatusInternalServerError, Message: "database unavailable"}}
	w := New(backend, Target{DonorID: "7"}, models.RoleAdmin)
	require.NoError(t, w.Open(context.Background()))

	in := Input{Status: models.ApprovalApproved, Comment: "all criteria acceptable"}
	_, err := w.Submit(context.Background(), in, nil)
	require.Error(t, err)
	assert.Equal(t, HistoryLoaded, w.State())
	assert.Equal(t, in, w.Draft())
	assert.EqualError(t, w.Err(), "database unavailable")

	backend.createErr = nil
	_, err = w.Submit(context.Background(), w.Draft(), nil)
	require.NoError(t, err)
	assert.Len(t, backend.posts, 2)
}

func TestUploaderMayNotApprove(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, Target{DonorID: "7"}, models.RoleDocUploader)
	require.NoError(t, w.Open(context.Background()))
	_, err := w.Submit(context.Background(), Input{Status: models.ApprovalApproved, Comment: "ok"}, nil)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
	assert.Empty(t, backend.posts)
}

func TestSortNewestFirstIsStable(t *testing.T) {
	in := []models.ApprovalDecision{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Hour)},
		{ID: "c", CreatedAt: base},
		{ID: "d", CreatedAt: base.Add(2 * time.Hour)},
	}
	out := SortNewestFirst(in)

	ids := make([]models.ID, len(out))
	for i, d := range out {
		ids[i] = d.ID
	}
	assert.Equal(t, []models.ID{"d", "b", "a", "c"}, ids)
	assert.Equal(t, models.ID("a"), in[0].ID, "input untouched")
}

func TestTargetType(t *testing.T) {
	assert.Equal(t, models.ApprovalTypeDonorSummary, Target{DonorID: "1"}.Type())
	assert.Equal(t, models.ApprovalTypeDocument, Target{DonorID: "1", DocumentID: "2"}.Type())
}
