package routes

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
	"github.com/synaptica-ai/casereview/pkg/upload"
)

const (
	maxFilesPerUpload = 20
	multipartMemory   = 32 << 20
)

type uploadPage struct {
	DonorID      models.ID         `json:"donor_id,omitempty"`
	MaxFileBytes int64             `json:"max_file_bytes"`
	MaxFiles     int               `json:"max_files"`
	Accept       string            `json:"accept"`
	Documents    []models.Document `json:"documents"`
}

type uploadResult struct {
	DonorID models.ID      `json:"donor_id,omitempty"`
	Summary upload.Summary `json:"summary"`
	Items   []upload.Item  `json:"items"`
}

// uploadBodyLimit bounds a whole multipart request: every file at the
// per-file ceiling plus form overhead.
func (d *Dashboard) uploadBodyLimit() int64 {
	return d.validator.MaxBytes()*maxFilesPerUpload + multipartMemory
}

func (d *Dashboard) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "donorId")
	page := uploadPage{
		DonorID:      donorID,
		MaxFileBytes: d.validator.MaxBytes(),
		MaxFiles:     maxFilesPerUpload,
		Accept:       upload.PDFContentType,
		Documents:    []models.Document{},
	}
	if !donorID.IsZero() {
		docs, err := d.client(r).DonorDocuments(r.Context(), donorID)
		if err != nil {
			d.respondError(w, r, err)
			return
		}
		if docs != nil {
			page.Documents = docs
		}
	}
	respondJSON(w, http.StatusOK, page)
}

// handleUpload validates every file locally, sends the accepted ones
// concurrently and reports each file's outcome. One failed file never fails
// the request.
func (d *Dashboard) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			d.respondError(w, r, &apperr.APIError{StatusCode: http.StatusRequestEntityTooLarge, Message: "upload exceeds the request size limit"})
			return
		}
		d.respondError(w, r, apperr.NewValidationError("files", "expected a multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		d.respondError(w, r, apperr.NewValidationError("files", "select at least one PDF"))
		return
	}
	if len(headers) > maxFilesPerUpload {
		d.respondError(w, r, apperr.NewValidationError("files", "at most %d files per upload", maxFilesPerUpload))
		return
	}

	donorID := pathID(r, "donorId")
	if ids := r.MultipartForm.Value["donor_id"]; donorID.IsZero() && len(ids) > 0 {
		donorID = models.ID(ids[0])
	}

	batch := upload.NewBatch(d.client(r), d.validator, donorID, d.opts.UploadConcurrency)
	defer batch.Close()
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, fileFromHeader(fh))
	}
	batch.Add(files...)

	sum, err := batch.UploadAll(r.Context())
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	metrics.ObserveUploads(sum.Accepted, sum.Failed, sum.Rejected)

	items := batch.Items()
	for _, it := range items {
		event := models.ActivityEvent{
			Type:       models.ActivityDocumentUploaded,
			DonorID:    it.DonorID.String(),
			DocumentID: it.DocumentID.String(),
			Payload:    map[string]interface{}{"filename": it.Filename, "size": it.Size},
		}
		if it.Status == models.DocumentFailed {
			event.Type = models.ActivityUploadFailed
			event.DonorID = donorID.String()
			event.Payload["error"] = it.Error
		}
		d.record(r, event)
	}
	respondJSON(w, http.StatusOK, uploadResult{DonorID: batch.DonorID(), Summary: sum, Items: items})
}

func fileFromHeader(fh *multipart.FileHeader) upload.File {
	return upload.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}
