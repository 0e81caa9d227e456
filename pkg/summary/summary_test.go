package summary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
)

func init() {
	logger.Discard()
}

const mergedData = `{
  "infectious_disease_testing": {"status": "COMPLETE", "summary": {"hiv_nat": "Non-reactive"}, "citations": [3]},
  "conditional_documents": {"autopsy_report": {"conditional_status": "CONDITION NOT MET"}},
  "eligibility": {"overall_status": "ELIGIBLE", "skin": {"status": "ELIGIBLE"}},
  "criteria_evaluations": {"sepsis": {"evaluation_result": "ACCEPTABLE"}}
}`

func donor() models.DonorDetail {
	return models.DonorDetail{ID: "7", ExternalID: "DN-0007", MergedData: json.RawMessage(mergedData), EligibilityStatus: "pending"}
}

func documents() []models.Document {
	return []models.Document{
		{ID: "40", DonorID: "7", Filename: "serology.pdf", DocumentType: "Serology Report"},
		{ID: "41", DonorID: "7", Filename: "drai.pdf", DocumentType: "DRAI"},
	}
}

func TestSwitchingTabsClosesCitationPanel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	keys := make([]string, 0, len(Tabs)+1)
	for _, tab := range Tabs {
		keys = append(keys, tab.Key)
	}
	keys = append(keys, "no-such-tab")

	properties.Property("any tab selection leaves no open panel", prop.ForAll(
		func(from, to, page int) bool {
			v := NewView("7")
			v.SelectTab(keys[from])
			v.OpenCitation(extraction.Citation{Page: page, DocumentID: "40"})
			if !v.PanelOpen() {
				return false
			}
			v.SelectTab(keys[to])
			return !v.PanelOpen()
		},
		gen.IntRange(0, len(keys)-1),
		gen.IntRange(0, len(keys)-1),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}

func TestSelectUnknownTabKeepsActiveTab(t *testing.T) {
	v := NewView("7")
	require.True(t, v.SelectTab(TabSerology))
	assert.False(t, v.SelectTab("bogus"))
	assert.Equal(t, TabSerology, v.ActiveTab)
}

func TestFromQuery(t *testing.T) {
	v := FromQuery("7", url.Values{"tab": {"drai"}, "doc": {"41"}, "page": {"5"}})
	assert.Equal(t, "drai", v.ActiveTab)
	require.NotNil(t, v.Citation)
	assert.Equal(t, extraction.Citation{Page: 5, DocumentID: "41"}, *v.Citation)

	v = FromQuery("7", url.Values{"tab": {"drai"}, "page": {"zero"}})
	assert.False(t, v.PanelOpen())

	v = FromQuery("7", url.Values{})
	assert.Equal(t, DefaultTab, v.ActiveTab)
}

func TestLinks(t *testing.T) {
	assert.Equal(t, "/summary/7?tab=serology", TabHref("7", TabSerology))
	assert.Equal(t, "/documents/7/41/pdf#page=3", PDFHref("7", extraction.Citation{Page: 3, DocumentID: "41"}))

	v := NewView("7")
	v.SelectTab(TabSerology)
	href := v.CitationHref(extraction.Citation{Page: 2, DocumentID: "40"})
	u, err := url.Parse(href)
	require.NoError(t, err)
	assert.Equal(t, "/summary/7", u.Path)
	assert.Equal(t, "serology", u.Query().Get("tab"))
	assert.Equal(t, "2", u.Query().Get("page"))
	assert.Equal(t, "40", u.Query().Get("doc"))
}

func TestRenderSerologyWithPanel(t *testing.T) {
	v := FromQuery("7", url.Values{"tab": {"serology"}, "page": {"3"}})
	page, err := Render(v, donor(), documents())
	require.NoError(t, err)

	assert.Equal(t, "Serology", page.Section.Title)
	require.Len(t, page.Section.Fields, 1)
	assert.Equal(t, "Non-reactive", page.Section.Fields[0].Value)
	assert.Equal(t, []extraction.Citation{{Page: 3, DocumentID: "40"}}, page.Section.Citations)

	require.NotNil(t, page.Panel)
	assert.Equal(t, models.ID("40"), page.Panel.Citation.DocumentID, "bare page falls back to the first document")
	assert.Equal(t, "serology.pdf", page.Panel.Document)
	assert.Equal(t, "/documents/7/40/pdf#page=3", page.Panel.PDFURL)

	require.Len(t, page.Tabs, len(Tabs))
	for _, tab := range page.Tabs {
		assert.Equal(t, tab.Key == TabSerology, tab.Active, tab.Key)
		assert.NotContains(t, tab.Href, "page=")
	}
}

func TestRenderMissingCategoryShowsPlaceholder(t *testing.T) {
	v := NewView("7")
	v.SelectTab("plasma_dilution")
	page, err := Render(v, donor(), nil)
	require.NoError(t, err)
	assert.False(t, page.Section.Available)
	assert.Equal(t, "Plasma Dilution data not available", page.Section.Placeholder)
	assert.NotNil(t, page.Documents)
}

func TestRenderDedicatedTabs(t *testing.T) {
	v := NewView("7")
	page, err := Render(v, donor(), documents())
	require.NoError(t, err)
	require.Len(t, page.Criteria, 1)
	assert.Len(t, page.Overview, len(extraction.Categories))

	v.SelectTab(TabConditional)
	page, err = Render(v, donor(), documents())
	require.NoError(t, err)
	require.Len(t, page.Conditional, 1)
	assert.Equal(t, extraction.ConditionNotMet, page.Conditional[0].Condition)

	v.SelectTab(TabEligibility)
	page, err = Render(v, donor(), documents())
	require.NoError(t, err)
	require.NotNil(t, page.Eligibility)
	assert.Equal(t, extraction.Eligible, page.Eligibility.Overall)
}

type fakeSource struct {
	docErr error
}

func (f fakeSource) GetDonor(context.Context, models.ID) (models.DonorDetail, error) {
	return donor(), nil
}

func (f fakeSource) DonorDocuments(context.Context, models.ID) ([]models.Document, error) {
	return documents(), f.docErr
}

func TestLoad(t *testing.T) {
	page, err := Load(context.Background(), fakeSource{}, NewView("7"))
	require.NoError(t, err)
	assert.Equal(t, "DN-0007", page.Donor.ExternalID)
	assert.Len(t, page.Documents, 2)

	_, err = Load(context.Background(), fakeSource{docErr: &apperr.NotFoundError{Resource: "donor"}}, NewView("7"))
	assert.True(t, apperr.IsNotFound(err))
}

type fakePresigner struct {
	input *s3.GetObjectInput
	opts  s3.PresignOptions
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = in
	for _, fn := range optFns {
		fn(&f.opts)
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + *in.Key + "?X-Amz-Signature=x", Method: http.MethodGet}, nil
}

type fakePDFBackend struct {
	docs   []models.Document
	body   string
	length int64
	calls  int
}

func (f *fakePDFBackend) DonorDocuments(context.Context, models.ID) ([]models.Document, error) {
	return f.docs, nil
}

func (f *fakePDFBackend) DocumentPDF(context.Context, models.ID) (*http.Response, error) {
	f.calls++
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Type": {"application/pdf"}},
		Body:          io.NopCloser(strings.NewReader(f.body)),
		ContentLength: f.length,
	}, nil
}

func TestResolvePresignsS3Locations(t *testing.T) {
	presigner := &fakePresigner{}
	r := NewPDFResolver(presigner, 0, 1024)
	api := &fakePDFBackend{}

	src, err := r.Resolve(context.Background(), api, models.Document{ID: "1", Filename: "a.pdf", FilePath: "s3://case-files/donors/7/a.pdf"})
	require.NoError(t, err)
	assert.Contains(t, src.RedirectURL, "donors/7/a.pdf")
	assert.Equal(t, "case-files", *presigner.input.Bucket)
	assert.Equal(t, "15m0s", presigner.opts.Expires.String())
	assert.Zero(t, api.calls)
}

func TestResolveDirectURL(t *testing.T) {
	r := NewPDFResolver(nil, 0, 1024)
	src, err := r.Resolve(context.Background(), &fakePDFBackend{}, models.Document{ID: "1", FilePath: "https://blob.example/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example/a.pdf", src.RedirectURL)
}

func TestResolveStreamsThroughAPI(t *testing.T) {
	r := NewPDFResolver(nil, 0, 8)
	api := &fakePDFBackend{body: "%PDF-1.7", length: 8}
	src, err := r.Resolve(context.Background(), api, models.Document{ID: "1", FilePath: "uploads/a.pdf"})
	require.NoError(t, err)
	defer src.Body.Close()
	data, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Equal(t, 1, api.calls)
}

func TestResolveCapsStreamedBody(t *testing.T) {
	r := NewPDFResolver(nil, 0, 4)

	_, err := r.Resolve(context.Background(), &fakePDFBackend{body: "%PDF-1.7", length: 8}, models.Document{ID: "1"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, apperr.HTTPStatus(err))

	src, err := r.Resolve(context.Background(), &fakePDFBackend{body: "%PDF-1.7", length: -1}, models.Document{ID: "1"})
	require.NoError(t, err)
	_, err = io.ReadAll(src.Body)
	assert.True(t, errors.Is(err, ErrPDFTooLarge))
}

func TestResolveDocumentNotFound(t *testing.T) {
	r := NewPDFResolver(nil, 0, 0)
	_, err := r.ResolveDocument(context.Background(), &fakePDFBackend{docs: documents()}, "7", "99")
	assert.True(t, apperr.IsNotFound(err))
}
