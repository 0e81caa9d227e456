package upload

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/config"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

func init() {
	logger.Discard()
}

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type fakeBackend struct {
	mu        sync.Mutex
	uploads   int32
	deletes   []models.ID
	fail      map[string]error
	donorDocs map[models.ID][]models.Document
	gate      chan struct{}
	nextID    int
}

func (f *fakeBackend) Upload(ctx context.Context, donorID models.ID, file apiclient.FilePart) (models.UploadResponse, error) {
	atomic.AddInt32(&f.uploads, 1)
	if f.gate != nil {
		<-f.gate
	}
	if _, err := io.ReadAll(file.Reader); err != nil {
		return models.UploadResponse{}, err
	}
	if err := f.fail[file.Filename]; err != nil {
		return models.UploadResponse{}, err
	}
	f.mu.Lock()
	f.nextID++
	id := models.ID(strconv.Itoa(300 + f.nextID))
	f.mu.Unlock()
	if donorID.IsZero() {
		donorID = "77"
	}
	return models.UploadResponse{DocumentID: id, DonorID: donorID, Status: models.DocumentProcessing}, nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, id models.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeBackend) DonorDocuments(_ context.Context, donorID models.ID) ([]models.Document, error) {
	return f.donorDocs[donorID], nil
}

func pdf(name string, size int64) File {
	return File{
		Name:        name,
		Size:        size,
		ContentType: PDFContentType,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("%PDF-1.7")), nil },
	}
}

func newValidator() *Validator {
	return NewValidator(config.DefaultUploadMaxBytes)
}

func TestValidatorRejectsOversizeAndNonPDF(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Validate(pdf("a.pdf", 10)))

	err := v.Validate(pdf("big.pdf", config.DefaultUploadMaxBytes+1))
	require.True(t, apperr.IsValidation(err))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "500 MB")

	doc := pdf("notes.docx", 10)
	doc.ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	assert.ErrorIs(t, v.Validate(doc), ErrNotPDF)

	withParams := pdf("a.pdf", 10)
	withParams.ContentType = "application/pdf; charset=binary"
	assert.NoError(t, v.Validate(withParams))

	assert.ErrorIs(t, v.Validate(pdf("empty.pdf", 0)), ErrEmptyFile)
}

var nonPDFTypes = []string{"image/png", "text/plain", "", "application/x-pdf", "application/octet-stream"}

func TestRejectedFilesNeverReachTheNetwork(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("oversize or non-PDF files are never uploaded", prop.ForAll(
		func(extra int64, typeIdx int) bool {
			backend := &fakeBackend{}
			batch := NewBatch(backend, newValidator(), "1", 2)

			tooBig := pdf("big.pdf", config.DefaultUploadMaxBytes+extra)
			wrongType := pdf("scan.png", 1024)
			wrongType.ContentType = nonPDFTypes[typeIdx]

			items := batch.Add(tooBig, wrongType)
			if _, err := batch.UploadAll(context.Background()); err != nil {
				return false
			}
			for _, it := range batch.Items() {
				if it.Status != models.DocumentFailed || it.Error == "" {
					return false
				}
			}
			return len(items) == 2 && atomic.LoadInt32(&backend.uploads) == 0
		},
		gen.Int64Range(1, 1<<30),
		gen.IntRange(0, len(nonPDFTypes)-1),
	))

	properties.TestingRun(t)
}

func TestFailureIsIsolatedPerFile(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{
		"bad.pdf": &apperr.APIError{StatusCode: 500, Message: "extraction service unavailable"},
	}}
	batch := NewBatch(backend, newValidator(), "", 4)
	batch.Add(pdf("good.pdf", 100), pdf("bad.pdf", 100), pdf("also-good.pdf", 100))

	summary, err := batch.UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 2, Failed: 1}, summary)

	byName := map[string]Item{}
	for _, it := range batch.Items() {
		byName[it.Filename] = it
	}
	assert.Equal(t, models.DocumentProcessing, byName["good.pdf"].Status)
	assert.Equal(t, models.DocumentProcessing, byName["also-good.pdf"].Status)
	assert.Equal(t, models.DocumentFailed, byName["bad.pdf"].Status)
	assert.Equal(t, "extraction service unavailable", byName["bad.pdf"].Error)
	assert.Equal(t, models.ID("77"), batch.DonorID(), "donor id adopted from the server")
}

func TestRemoveWithoutDocumentIDMakesNoCall(t *testing.T) {
	backend := &fakeBackend{}
	batch := NewBatch(backend, newValidator(), "1", 1)
	items := batch.Add(pdf("huge.pdf", config.DefaultUploadMaxBytes*2))

	require.NoError(t, batch.Remove(context.Background(), items[0].LocalID))
	assert.Empty(t, batch.Items())
	assert.Empty(t, backend.deletes)
}

func TestRemoveUploadedDeletesOnServer(t *testing.T) {
	backend := &fakeBackend{}
	batch := NewBatch(backend, newValidator(), "1", 1)
	items := batch.Add(pdf("a.pdf", 10))
	_, err := batch.UploadAll(context.Background())
	require.NoError(t, err)

	uploaded := batch.Items()[0]
	require.False(t, uploaded.DocumentID.IsZero())
	require.NoError(t, batch.Remove(context.Background(), items[0].LocalID))
	assert.Equal(t, []models.ID{uploaded.DocumentID}, backend.deletes)
	assert.Empty(t, batch.Items())

	assert.True(t, apperr.IsNotFound(batch.Remove(context.Background(), "missing")))
}

func TestRefreshAppliesServerStatus(t *testing.T) {
	backend := &fakeBackend{}
	batch := NewBatch(backend, newValidator(), "5", 1)
	batch.Add(pdf("drai.pdf", 10))
	_, err := batch.UploadAll(context.Background())
	require.NoError(t, err)

	docID := batch.Items()[0].DocumentID
	backend.donorDocs = map[models.ID][]models.Document{
		"5": {{ID: docID, Status: models.DocumentCompleted, Progress: 100, DocumentType: "Donor Risk Assessment Interview"}},
	}
	require.NoError(t, batch.Refresh(context.Background()))

	it := batch.Items()[0]
	assert.Equal(t, models.DocumentCompleted, it.Status)
	assert.Equal(t, 100, it.Progress)
	assert.Equal(t, "Donor Risk Assessment Interview", it.DocumentType)
}

func TestLateResultsAfterCloseAreDropped(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	batch := NewBatch(backend, newValidator(), "1", 1)
	batch.Add(pdf("slow.pdf", 10))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = batch.UploadAll(context.Background())
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.uploads) == 1 }, timeout, tick)
	batch.Close()
	close(backend.gate)
	<-done

	assert.Equal(t, models.DocumentUploading, batch.Items()[0].Status)
	assert.ErrorIs(t, batch.Refresh(context.Background()), ErrClosed)
	_, err := batch.UploadAll(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestRemoveWhileUploadingIsRefused(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	batch := NewBatch(backend, newValidator(), "1", 1)
	items := batch.Add(pdf("slow.pdf", 10))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = batch.UploadAll(context.Background())
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.uploads) == 1 }, timeout, tick)

	err := batch.Remove(context.Background(), items[0].LocalID)
	require.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "still uploading")

	close(backend.gate)
	<-done

	uploaded := batch.Items()[0]
	require.Equal(t, models.DocumentProcessing, uploaded.Status)
	require.NoError(t, batch.Remove(context.Background(), items[0].LocalID))
	assert.Equal(t, []models.ID{uploaded.DocumentID}, backend.deletes, "the server copy is deleted once the upload settles")
	assert.Empty(t, batch.Items())
}

func TestRefreshListsDocumentsUploadedElsewhere(t *testing.T) {
	backend := &fakeBackend{donorDocs: map[models.ID][]models.Document{
		"5": {{ID: "40", DonorID: "5", Filename: "serology.pdf", Status: models.DocumentCompleted, DocumentType: "Serology"}},
	}}
	batch := NewBatch(backend, newValidator(), "5", 1)
	require.NoError(t, batch.Refresh(context.Background()))
	require.NoError(t, batch.Refresh(context.Background()))

	items := batch.Items()
	require.Len(t, items, 1, "refreshing twice does not duplicate items")
	assert.Equal(t, models.ID("40"), items[0].DocumentID)
	assert.Equal(t, "serology.pdf", items[0].Filename)
	assert.Equal(t, models.DocumentCompleted, items[0].Status)

	require.NoError(t, batch.RemoveDocument(context.Background(), "40"))
	assert.Equal(t, []models.ID{"40"}, backend.deletes)

	assert.True(t, apperr.IsNotFound(batch.RemoveDocument(context.Background(), "41")))
	assert.Equal(t, []models.ID{"40"}, backend.deletes, "documents of other donors are never deleted")
}
