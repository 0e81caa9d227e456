// Package summary assembles the tabbed case view of one donor: the active
// tab, the citation side panel and the display sections built from the
// extraction payload.
package summary

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
)

// Tab is one entry of the summary tab bar.
type Tab struct {
	Key      string
	Label    string
	Category string
}

const (
	TabOverview    = "overview"
	TabSerology    = "serology"
	TabConditional = "conditional_documents"
	TabEligibility = "eligibility"
	TabCompliance  = "compliance"
	DefaultTab     = TabOverview
)

// Tabs in display order.
var Tabs = []Tab{
	{Key: TabOverview, Label: "Overview", Category: extraction.CriteriaEvaluations},
	{Key: TabSerology, Label: "Serology", Category: extraction.InfectiousDiseaseTesting},
	{Key: "physical_assessment", Label: "Physical Assessment", Category: extraction.PhysicalAssessment},
	{Key: "authorization", Label: "Authorization", Category: extraction.Authorization},
	{Key: "drai", Label: "DRAI", Category: extraction.DRAI},
	{Key: "tissue_recovery", Label: "Tissue Recovery", Category: extraction.TissueRecovery},
	{Key: "plasma_dilution", Label: "Plasma Dilution", Category: extraction.PlasmaDilution},
	{Key: TabConditional, Label: "Conditional Documents", Category: extraction.ConditionalDocuments},
	{Key: TabCompliance, Label: "Compliance", Category: extraction.ComplianceStatus},
	{Key: TabEligibility, Label: "Eligibility", Category: extraction.EligibilityKey},
}

// LookupTab finds a tab by key.
func LookupTab(key string) (Tab, bool) {
	for _, t := range Tabs {
		if t.Key == key {
			return t, true
		}
	}
	return Tab{}, false
}

// View is the per-request state of the summary page. The open citation is
// the only client-side addition to the payload and it lives here.
type View struct {
	DonorID   models.ID
	ActiveTab string
	Citation  *extraction.Citation
}

func NewView(donorID models.ID) *View {
	return &View{DonorID: donorID, ActiveTab: DefaultTab}
}

// SelectTab switches tabs and always closes the citation panel, including
// when the tab does not change. Unknown keys leave the active tab alone.
func (v *View) SelectTab(key string) bool {
	v.Citation = nil
	if _, ok := LookupTab(key); !ok {
		return false
	}
	v.ActiveTab = key
	return true
}

// OpenCitation opens the PDF panel scoped to the cited page.
func (v *View) OpenCitation(c extraction.Citation) {
	v.Citation = &c
}

func (v *View) CloseCitation() {
	v.Citation = nil
}

// PanelOpen reports whether a citation panel is showing.
func (v *View) PanelOpen() bool {
	return v.Citation != nil
}

// FromQuery rebuilds the view from ?tab=&doc=&page=. An invalid page leaves
// the panel closed.
func FromQuery(donorID models.ID, q url.Values) *View {
	v := NewView(donorID)
	if tab := q.Get("tab"); tab != "" {
		v.SelectTab(tab)
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		return v
	}
	v.OpenCitation(extraction.Citation{Page: page, DocumentID: models.ID(q.Get("doc"))})
	return v
}

// Query encodes the view back into query parameters.
func (v *View) Query() url.Values {
	q := url.Values{}
	q.Set("tab", v.ActiveTab)
	if v.Citation != nil {
		q.Set("page", strconv.Itoa(v.Citation.Page))
		if !v.Citation.DocumentID.IsZero() {
			q.Set("doc", v.Citation.DocumentID.String())
		}
	}
	return q
}

// TabHref links to a tab of the donor summary. Tab links never carry a
// citation, so following one closes the panel.
func TabHref(donorID models.ID, key string) string {
	return "/summary/" + url.PathEscape(donorID.String()) + "?tab=" + url.QueryEscape(key)
}

// CitationHref opens c on the current tab.
func (v *View) CitationHref(c extraction.Citation) string {
	next := View{DonorID: v.DonorID, ActiveTab: v.ActiveTab}
	next.OpenCitation(c)
	return "/summary/" + url.PathEscape(v.DonorID.String()) + "?" + next.Query().Encode()
}

// PDFHref is the dashboard URL of a cited document, anchored at the page.
func PDFHref(donorID models.ID, c extraction.Citation) string {
	return fmt.Sprintf("/documents/%s/%s/pdf#page=%d",
		url.PathEscape(donorID.String()), url.PathEscape(c.DocumentID.String()), c.Page)
}
