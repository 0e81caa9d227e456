package summary

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
	"golang.org/x/sync/errgroup"
)

// Source is the slice of the API client the summary page reads from.
type Source interface {
	GetDonor(ctx context.Context, donorID models.ID) (models.DonorDetail, error)
	DonorDocuments(ctx context.Context, donorID models.ID) ([]models.Document, error)
}

type TabLink struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Href      string `json:"href"`
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
	Status    string `json:"status,omitempty"`
}

type DonorHeader struct {
	ID                models.ID `json:"id"`
	ExternalID        string    `json:"external_id"`
	EligibilityStatus string    `json:"eligibility_status,omitempty"`
}

// Panel is the open citation side panel.
type Panel struct {
	Citation extraction.Citation `json:"citation"`
	Document string              `json:"document,omitempty"`
	PDFURL   string              `json:"pdf_url"`
}

// CategoryStatus is one row of the overview completeness table.
type CategoryStatus struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Available bool   `json:"available"`
	Status    string `json:"status,omitempty"`
}

// Page is the view model of /summary/{id}.
type Page struct {
	Donor       DonorHeader                      `json:"donor"`
	Tabs        []TabLink                        `json:"tabs"`
	ActiveTab   string                           `json:"active_tab"`
	Section     extraction.Section               `json:"section"`
	Overview    []CategoryStatus                 `json:"overview,omitempty"`
	Criteria    []extraction.Criterion           `json:"criteria,omitempty"`
	Conditional []extraction.ConditionalDocument `json:"conditional,omitempty"`
	Eligibility *extraction.EligibilityView      `json:"eligibility,omitempty"`
	Panel       *Panel                           `json:"panel,omitempty"`
	Documents   []models.Document                `json:"documents"`
}

// Case is the raw material of one summary page.
type Case struct {
	Donor     models.DonorDetail
	Documents []models.Document
}

// DefaultDocument is the document bare page citations are attributed to.
func (c Case) DefaultDocument() models.ID {
	if len(c.Documents) > 0 {
		return c.Documents[0].ID
	}
	return ""
}

// Payload parses the donor's extraction payload.
func (c Case) Payload() (*extraction.Payload, error) {
	return extraction.Parse(c.Donor.MergedData, c.DefaultDocument())
}

// Fetch loads the donor and its documents in parallel.
func Fetch(ctx context.Context, src Source, donorID models.ID) (Case, error) {
	var c Case
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		donor, err := src.GetDonor(gctx, donorID)
		if err != nil {
			return fmt.Errorf("loading donor %s: %w", donorID, err)
		}
		c.Donor = donor
		return nil
	})
	g.Go(func() error {
		docs, err := src.DonorDocuments(gctx, donorID)
		if err != nil {
			return fmt.Errorf("loading documents of donor %s: %w", donorID, err)
		}
		c.Documents = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Case{}, err
	}
	return c, nil
}

// Load fetches the case and renders v.
func Load(ctx context.Context, src Source, v *View) (*Page, error) {
	c, err := Fetch(ctx, src, v.DonorID)
	if err != nil {
		return nil, err
	}
	return Render(v, c.Donor, c.Documents)
}

// Render builds the page for the active tab. Bare page citations are
// attributed to the donor's first document.
func Render(v *View, donor models.DonorDetail, docs []models.Document) (*Page, error) {
	cs := Case{Donor: donor, Documents: docs}
	defaultDoc := cs.DefaultDocument()
	payload, err := cs.Payload()
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}

	p := &Page{
		Donor: DonorHeader{
			ID:                donor.ID,
			ExternalID:        donor.ExternalID,
			EligibilityStatus: donor.EligibilityStatus,
		},
		ActiveTab: v.ActiveTab,
		Documents: docs,
	}
	for _, t := range Tabs {
		link := TabLink{
			Key:       t.Key,
			Label:     t.Label,
			Href:      TabHref(v.DonorID, t.Key),
			Active:    t.Key == v.ActiveTab,
			Available: payload.Has(t.Category),
		}
		if c, ok := payload.Category(t.Category); ok {
			link.Status = c.Status
		}
		p.Tabs = append(p.Tabs, link)
	}

	tab, ok := LookupTab(v.ActiveTab)
	if !ok {
		tab, _ = LookupTab(DefaultTab)
		p.ActiveTab = tab.Key
	}
	switch tab.Key {
	case TabOverview:
		p.Section = extraction.BuildSection(payload, tab.Category)
		p.Criteria = extraction.BuildCriteria(payload)
		for _, key := range extraction.Categories {
			row := CategoryStatus{Key: key, Title: extraction.Title(key), Available: payload.Has(key)}
			if c, ok := payload.Category(key); ok {
				row.Status = c.Status
			}
			p.Overview = append(p.Overview, row)
		}
	case TabConditional:
		p.Section, p.Conditional = extraction.BuildConditionalSection(payload)
	case TabEligibility:
		view := extraction.BuildEligibility(payload, donor.EligibilityStatus)
		p.Section = view.Section
		p.Eligibility = &view
	default:
		p.Section = extraction.BuildSection(payload, tab.Category)
	}

	if v.Citation != nil {
		c := *v.Citation
		if c.DocumentID.IsZero() {
			c.DocumentID = defaultDoc
		}
		panel := &Panel{Citation: c, PDFURL: PDFHref(v.DonorID, c)}
		for _, d := range docs {
			if d.ID == c.DocumentID {
				panel.Document = d.Filename
				break
			}
		}
		p.Panel = panel
	}
	return p, nil
}
