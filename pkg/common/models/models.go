package models

import (
	"encoding/json"
	"time"
)

// Role is the dashboard role carried in the backend token and user profile.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleDocUploader     Role = "doc_uploader"
	RoleMedicalDirector Role = "medical_director"
)

// AllRoles lists every role the dashboard knows about.
var AllRoles = []Role{RoleAdmin, RoleDocUploader, RoleMedicalDirector}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDocUploader, RoleMedicalDirector:
		return true
	}
	return false
}

// Auth
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type User struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Donors
type DonorListItem struct {
	ID                ID         `json:"id"`
	ExternalID        string     `json:"external_id"`
	Name              string     `json:"name,omitempty"`
	Age               *int       `json:"age,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	EligibilityStatus string     `json:"eligibility_status,omitempty"`
	Status            string     `json:"status,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

type DonorDetail struct {
	ID                ID                     `json:"id"`
	ExternalID        string                 `json:"external_id"`
	MergedData        json.RawMessage        `json:"merged_data"`
	EligibilityStatus string                 `json:"eligibility_status"`
	Flags             map[string]interface{} `json:"flags,omitempty"`
}

type QueueDonor struct {
	ID                ID                     `json:"id"`
	ExternalID        string                 `json:"external_id"`
	Name              string                 `json:"name,omitempty"`
	EligibilityStatus string                 `json:"eligibility_status,omitempty"`
	CriticalFindings  []string               `json:"critical_findings,omitempty"`
	RequiredDocuments map[string]interface{} `json:"required_documents,omitempty"`
	DocumentCount     int                    `json:"document_count,omitempty"`
	ProcessingStatus  string                 `json:"processing_status,omitempty"`
	CreatedAt         *time.Time             `json:"created_at,omitempty"`
}

// Documents
type DocumentStatus string

const (
	DocumentUploading  DocumentStatus = "uploading"
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentAnalyzing  DocumentStatus = "analyzing"
	DocumentReviewing  DocumentStatus = "reviewing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
	DocumentRejected   DocumentStatus = "rejected"
)

// Terminal reports whether the server will not move the document further.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocumentCompleted, DocumentFailed, DocumentRejected:
		return true
	}
	return false
}

type Document struct {
	ID               ID             `json:"id"`
	DonorID          ID             `json:"donor_id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	DocumentType     string         `json:"document_type"`
	Status           DocumentStatus `json:"status"`
	Progress         int            `json:"progress,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	FilePath         string         `json:"file_path,omitempty"`
	FileSize         int64          `json:"file_size,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
}

type UploadResponse struct {
	DocumentID ID             `json:"document_id"`
	DonorID    ID             `json:"donor_id"`
	Status     DocumentStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
}

// Approvals
type ApprovalType string

const (
	ApprovalTypeDocument     ApprovalType = "document"
	ApprovalTypeDonorSummary ApprovalType = "donor_summary"
)

type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalPending  ApprovalStatus = "pending"
)

type ApprovalDecision struct {
	ID                    ID              `json:"id"`
	DonorID               ID              `json:"donor_id"`
	DocumentID            ID              `json:"document_id,omitempty"`
	ApprovalType          ApprovalType    `json:"approval_type"`
	Status                ApprovalStatus  `json:"status"`
	Comment               string          `json:"comment"`
	ChecklistDataSnapshot json.RawMessage `json:"checklist_data,omitempty"`
	ApproverID            ID              `json:"approved_by,omitempty"`
	ApproverName          string          `json:"approver_name,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

type ApprovalRequest struct {
	DonorID       ID              `json:"donor_id"`
	DocumentID    ID              `json:"document_id,omitempty"`
	ApprovalType  ApprovalType    `json:"approval_type"`
	Status        ApprovalStatus  `json:"status"`
	Comment       string          `json:"comment"`
	ChecklistData json.RawMessage `json:"checklist_data,omitempty"`
}

// Activity
type ActivityEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Actor      string                 `json:"actor"`
	Role       Role                   `json:"role,omitempty"`
	DonorID    string                 `json:"donor_id,omitempty"`
	DocumentID string                 `json:"document_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

const (
	ActivityLogin            = "session.login"
	ActivityLogout           = "session.logout"
	ActivityDocumentUploaded = "document.uploaded"
	ActivityUploadFailed     = "document.upload_failed"
	ActivityDocumentDeleted  = "document.deleted"
	ActivityApproval         = "approval.submitted"
	ActivityFeedback         = "feedback.submitted"
)
