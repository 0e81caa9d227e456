package routes

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/synaptica-ai/casereview/pkg/checklist"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
	"github.com/synaptica-ai/casereview/pkg/summary"
	"github.com/synaptica-ai/casereview/pkg/upload"
)

type documentsPage struct {
	DonorID   models.ID           `json:"donor_id"`
	Documents []models.Document   `json:"documents"`
	Checklist checklist.Checklist `json:"checklist"`
	Complete  bool                `json:"complete"`
}

// handleDocuments lists a donor's documents with the required-document
// checklist evaluated against them.
func (d *Dashboard) handleDocuments(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "donorId")
	cs, err := summary.Fetch(r.Context(), d.client(r), donorID)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	payload, err := cs.Payload()
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	docs := cs.Documents
	if docs == nil {
		docs = []models.Document{}
	}
	list := checklist.Evaluate(d.checklist, docs, extraction.ConditionalEntries(payload))
	respondJSON(w, http.StatusOK, documentsPage{
		DonorID:   donorID,
		Documents: docs,
		Checklist: list,
		Complete:  list.Complete(),
	})
}

// handleDeleteDocument removes one of the donor's documents. A document id
// that is not listed for the donor is a 404 and never reaches the backend.
func (d *Dashboard) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	donorID := pathID(r, "donorId")
	documentID := pathID(r, "documentId")

	batch := upload.NewBatch(d.client(r), d.validator, donorID, 1)
	defer batch.Close()
	if err := batch.Refresh(r.Context()); err != nil {
		d.respondError(w, r, err)
		return
	}
	if err := batch.RemoveDocument(r.Context(), documentID); err != nil {
		d.respondError(w, r, err)
		return
	}
	metrics.ObserveDocumentDeleted()
	d.record(r, models.ActivityEvent{
		Type:       models.ActivityDocumentDeleted,
		DonorID:    donorID.String(),
		DocumentID: documentID.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handlePDF serves the document behind a citation: a redirect for files the
// browser can load directly, a streamed body otherwise.
func (d *Dashboard) handlePDF(w http.ResponseWriter, r *http.Request) {
	src, err := d.pdf.ResolveDocument(r.Context(), d.client(r), pathID(r, "donorId"), pathID(r, "documentId"))
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	if src.RedirectURL != "" {
		http.Redirect(w, r, src.RedirectURL, http.StatusFound)
		return
	}
	defer src.Body.Close()

	contentType := src.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", src.Filename))
	if src.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(src.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, src.Body); err != nil {
		logger.Log.WithError(err).WithField("path", r.URL.Path).Warn("PDF stream interrupted")
	}
}
