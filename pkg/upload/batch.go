// Package upload runs the document upload workflow: local validation, one
// independent upload per file, per-file status, manual refresh and removal.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"golang.org/x/sync/errgroup"
)

// StatusPending marks a validated file that has not been sent yet.
const StatusPending models.DocumentStatus = "pending"

// ErrClosed is returned by operations on a batch the caller has closed.
var ErrClosed = errors.New("upload batch closed")

// Backend is the slice of the API client the workflow uses.
type Backend interface {
	Upload(ctx context.Context, donorID models.ID, file apiclient.FilePart) (models.UploadResponse, error)
	DeleteDocument(ctx context.Context, documentID models.ID) error
	DonorDocuments(ctx context.Context, donorID models.ID) ([]models.Document, error)
}

// Item is the display state of one file.
type Item struct {
	LocalID      string                `json:"local_id"`
	Filename     string                `json:"filename"`
	Size         int64                 `json:"size"`
	Status       models.DocumentStatus `json:"status"`
	DocumentID   models.ID             `json:"document_id,omitempty"`
	DonorID      models.ID             `json:"donor_id,omitempty"`
	DocumentType string                `json:"document_type,omitempty"`
	Progress     int                   `json:"progress"`
	Error        string                `json:"error,omitempty"`
}

type entry struct {
	item Item
	file File
}

// Summary counts the outcome of one UploadAll call.
type Summary struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
	Rejected int `json:"rejected"`
}

type Batch struct {
	backend     Backend
	validator   *Validator
	concurrency int

	mu       sync.Mutex
	donorID  models.ID
	entries  []*entry
	rejected int
	closed   bool
}

// NewBatch starts a batch for donorID. A zero donor id lets the backend
// derive the donor from each filename.
func NewBatch(backend Backend, validator *Validator, donorID models.ID, concurrency int) *Batch {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Batch{backend: backend, validator: validator, donorID: donorID, concurrency: concurrency}
}

// DonorID is the batch donor, adopted from the first upload response when the
// batch started without one.
func (b *Batch) DonorID() models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.donorID
}

// Add validates and registers files. Rejected files are listed as failed with
// the validation message and will never be sent.
func (b *Batch) Add(files ...File) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := make([]Item, 0, len(files))
	for _, f := range files {
		e := &entry{
			file: f,
			item: Item{LocalID: uuid.NewString(), Filename: f.Name, Size: f.Size, Status: StatusPending},
		}
		if err := b.validator.Validate(f); err != nil {
			e.item.Status = models.DocumentFailed
			e.item.Error = err.Error()
			b.rejected++
		}
		b.entries = append(b.entries, e)
		added = append(added, e.item)
	}
	return added
}

// UploadAll sends every pending file concurrently. A failure is recorded on
// its own item and never cancels or alters the others.
func (b *Batch) UploadAll(ctx context.Context) (Summary, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Summary{}, ErrClosed
	}
	donorID := b.donorID
	var pending []*entry
	for _, e := range b.entries {
		if e.item.Status == StatusPending {
			e.item.Status = models.DocumentUploading
			pending = append(pending, e)
		}
	}
	summary := Summary{Rejected: b.rejected}
	b.rejected = 0
	b.mu.Unlock()

	var (
		g       errgroup.Group
		countMu sync.Mutex
	)
	g.SetLimit(b.concurrency)
	for _, e := range pending {
		g.Go(func() error {
			resp, err := b.send(ctx, donorID, e.file)

			countMu.Lock()
			if err != nil {
				summary.Failed++
			} else {
				summary.Accepted++
			}
			countMu.Unlock()

			b.apply(e, resp, err)
			return nil
		})
	}
	_ = g.Wait()
	return summary, nil
}

func (b *Batch) send(ctx context.Context, donorID models.ID, f File) (models.UploadResponse, error) {
	if f.Open == nil {
		return models.UploadResponse{}, fmt.Errorf("%s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return models.UploadResponse{}, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	return b.backend.Upload(ctx, donorID, apiclient.FilePart{
		Filename:    f.Name,
		ContentType: PDFContentType,
		Reader:      rc,
	})
}

// apply records one upload result unless the batch was closed meanwhile.
func (b *Batch) apply(e *entry, resp models.UploadResponse, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		logger.Log.WithField("file", e.item.Filename).Debug("dropping upload result for closed batch")
		return
	}
	if err != nil {
		e.item.Status = models.DocumentFailed
		e.item.Error = err.Error()
		logger.Log.WithError(err).WithField("file", e.item.Filename).Warn("document upload failed")
		return
	}
	e.item.DocumentID = resp.DocumentID
	e.item.DonorID = resp.DonorID
	e.item.Status = resp.Status
	if e.item.Status == "" {
		e.item.Status = models.DocumentUploaded
	}
	e.item.Error = ""
	if b.donorID.IsZero() && !resp.DonorID.IsZero() {
		b.donorID = resp.DonorID
	}
}

// Refresh re-reads server statuses for every donor the batch touched. Server
// state always wins over local state, and documents the batch did not upload
// are listed as well.
func (b *Batch) Refresh(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	donors := b.donorsLocked()
	b.mu.Unlock()

	for _, donorID := range donors {
		docs, err := b.backend.DonorDocuments(ctx, donorID)
		if err != nil {
			return err
		}
		b.applyServerDocs(docs)
	}
	return nil
}

func (b *Batch) donorsLocked() []models.ID {
	seen := map[models.ID]struct{}{}
	var out []models.ID
	add := func(id models.ID) {
		if id.IsZero() {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(b.donorID)
	for _, e := range b.entries {
		add(e.item.DonorID)
	}
	return out
}

func (b *Batch) applyServerDocs(docs []models.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	known := make(map[models.ID]*entry, len(b.entries))
	for _, e := range b.entries {
		if !e.item.DocumentID.IsZero() {
			known[e.item.DocumentID] = e
		}
	}
	for _, d := range docs {
		e, ok := known[d.ID]
		if !ok {
			e = &entry{item: Item{
				LocalID:    uuid.NewString(),
				Filename:   d.Filename,
				DocumentID: d.ID,
				DonorID:    d.DonorID,
			}}
			b.entries = append(b.entries, e)
			known[d.ID] = e
		}
		e.item.Status = d.Status
		e.item.Progress = d.Progress
		e.item.Error = d.ErrorMessage
		e.item.DocumentType = d.DocumentType
	}
}

// Remove deletes the document on the server when it has an id, then drops the
// item. Items that never got an id are dropped with no network call. A file
// still being sent cannot be removed until its upload settles.
func (b *Batch) Remove(ctx context.Context, localID string) error {
	b.mu.Lock()
	idx := b.indexLocked(localID)
	if idx < 0 {
		b.mu.Unlock()
		return &apperr.NotFoundError{Resource: "upload", Message: "file is not part of this upload"}
	}
	it := b.entries[idx].item
	if it.Status == models.DocumentUploading {
		b.mu.Unlock()
		return apperr.NewValidationError("file", "%s is still uploading", it.Filename)
	}
	if it.DocumentID.IsZero() {
		b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.backend.DeleteDocument(ctx, it.DocumentID); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexLocked(localID); idx >= 0 {
		b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	}
	return nil
}

// RemoveDocument removes the item tracking a server document id. The id must
// belong to one of the batch's donors, so call Refresh first.
func (b *Batch) RemoveDocument(ctx context.Context, documentID models.ID) error {
	b.mu.Lock()
	localID := ""
	for _, e := range b.entries {
		if e.item.DocumentID == documentID {
			localID = e.item.LocalID
			break
		}
	}
	b.mu.Unlock()
	if localID == "" {
		return &apperr.NotFoundError{Resource: "document", Message: fmt.Sprintf("document %s not found for this donor", documentID)}
	}
	return b.Remove(ctx, localID)
}

func (b *Batch) indexLocked(localID string) int {
	for i, e := range b.entries {
		if e.item.LocalID == localID {
			return i
		}
	}
	return -1
}

// Items returns a snapshot in the order files were added.
func (b *Batch) Items() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Item, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.item
	}
	return out
}

// Close marks the batch as no longer displayed. Results arriving afterwards
// are dropped.
func (b *Batch) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
