package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

func (c *Client) Login(ctx context.Context, email, password string) (models.TokenResponse, error) {
	return Request[models.TokenResponse](ctx, c, http.MethodPost, "/auth/login", models.LoginRequest{
		Email:    email,
		Password: password,
	})
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	return Request[models.User](ctx, c, http.MethodGet, "/auth/me", nil)
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := Request[NoContent](ctx, c, http.MethodPost, "/auth/logout", nil)
	return err
}

func (c *Client) ListDonors(ctx context.Context, skip, limit int) ([]models.DonorListItem, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	return Request[[]models.DonorListItem](ctx, c, http.MethodGet, "/donors/?"+q.Encode(), nil)
}

func (c *Client) GetDonor(ctx context.Context, donorID models.ID) (models.DonorDetail, error) {
	return Request[models.DonorDetail](ctx, c, http.MethodGet, "/donors/"+url.PathEscape(donorID.String()), nil)
}

func (c *Client) QueueDetails(ctx context.Context) ([]models.QueueDonor, error) {
	return Request[[]models.QueueDonor](ctx, c, http.MethodGet, "/donors/queue/details", nil)
}

func (c *Client) DonorDocuments(ctx context.Context, donorID models.ID) ([]models.Document, error) {
	return Request[[]models.Document](ctx, c, http.MethodGet, "/documents/donor/"+url.PathEscape(donorID.String()), nil)
}

func (c *Client) DeleteDocument(ctx context.Context, documentID models.ID) error {
	_, err := Request[NoContent](ctx, c, http.MethodDelete, "/documents/"+url.PathEscape(documentID.String()), nil)
	return err
}

// Upload posts one file. Without a donor id the backend derives the donor from
// the filename and returns the id it created.
func (c *Client) Upload(ctx context.Context, donorID models.ID, file FilePart) (models.UploadResponse, error) {
	body := &Multipart{Files: []FilePart{file}}
	if !donorID.IsZero() {
		body.Fields = map[string]string{"donor_id": donorID.String()}
	}
	return Request[models.UploadResponse](ctx, c, http.MethodPost, "/upload", body)
}

// DocumentPDF streams a backend-hosted PDF. The caller closes the body.
func (c *Client) DocumentPDF(ctx context.Context, documentID models.ID) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID.String())+"/pdf", nil,
		WithHeader("Accept", "application/pdf"))
}

func (c *Client) CreateApproval(ctx context.Context, req models.ApprovalRequest) (models.ApprovalDecision, error) {
	return Request[models.ApprovalDecision](ctx, c, http.MethodPost, "/donor-approvals", req)
}

// ApprovalHistory returns the recorded decisions for a donor. The backend has
// answered both with a bare array and with an envelope object.
func (c *Client) ApprovalHistory(ctx context.Context, donorID models.ID) ([]models.ApprovalDecision, error) {
	raw, err := Request[json.RawMessage](ctx, c, http.MethodGet, "/donors/"+url.PathEscape(donorID.String())+"/past-data", nil)
	if err != nil {
		return nil, err
	}
	return decodeHistory(raw)
}

func decodeHistory(raw json.RawMessage) ([]models.ApprovalDecision, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []models.ApprovalDecision
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decoding approval history: %w", err)
		}
		return out, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding approval history: %w", err)
	}
	for _, key := range []string{"approvals", "approval_history", "items", "data"} {
		if inner, ok := envelope[key]; ok {
			return decodeHistory(inner)
		}
	}
	return nil, nil
}
