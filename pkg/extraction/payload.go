// Package extraction turns the loosely typed extraction payload of a donor
// case into display-ready sections. The payload is read only: nothing here
// computes clinical verdicts, it only renders what the backend decided.
package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// Category keys of the extraction payload.
const (
	PhysicalAssessment       = "physical_assessment"
	Authorization            = "authorization"
	DRAI                     = "drai"
	InfectiousDiseaseTesting = "infectious_disease_testing"
	TissueRecovery           = "tissue_recovery"
	PlasmaDilution           = "plasma_dilution"
	ConditionalDocuments     = "conditional_documents"
	ComplianceStatus         = "compliance_status"
	CriteriaEvaluations      = "criteria_evaluations"
	EligibilityKey           = "eligibility"
)

// Categories lists every known category in display order.
var Categories = []string{
	PhysicalAssessment, Authorization, DRAI, InfectiousDiseaseTesting,
	TissueRecovery, PlasmaDilution, ConditionalDocuments, ComplianceStatus,
	CriteriaEvaluations, EligibilityKey,
}

var categoryTitles = map[string]string{
	PhysicalAssessment:       "Physical Assessment",
	Authorization:            "Authorization",
	DRAI:                     "DRAI",
	InfectiousDiseaseTesting: "Serology",
	TissueRecovery:           "Tissue Recovery",
	PlasmaDilution:           "Plasma Dilution",
	ConditionalDocuments:     "Conditional Documents",
	ComplianceStatus:         "Compliance",
	CriteriaEvaluations:      "Criteria Evaluations",
	EligibilityKey:           "Eligibility",
}

// Title is the display title of a category key.
func Title(key string) string {
	if t, ok := categoryTitles[key]; ok {
		return t
	}
	return Label(key)
}

// Completion status of a category.
const (
	StatusComplete   = "COMPLETE"
	StatusIncomplete = "INCOMPLETE"
	StatusPending    = "PENDING"
)

// Category is one clinical category as delivered by the backend.
type Category struct {
	Key           string
	Status        string
	Summary       map[string]interface{}
	SummaryText   string
	ExtractedData map[string]interface{}
	Extra         map[string]interface{}
	Citations     []Citation
}

// Payload is the parsed extraction payload of one donor.
type Payload struct {
	categories map[string]*Category
	raw        map[string]interface{}
	defaultDoc models.ID
}

// Parse ingests the backend JSON. Citations are normalized here, once; a bare
// page number is attributed to defaultDoc.
func Parse(raw json.RawMessage, defaultDoc models.ID) (*Payload, error) {
	p := &Payload{categories: map[string]*Category{}, raw: map[string]interface{}{}, defaultDoc: defaultDoc}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}
	var top map[string]interface{}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decoding extraction payload: %w", err)
	}
	top = unwrapEnvelope(top)
	p.raw = top

	for key, value := range top {
		obj, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		p.categories[key] = parseCategory(key, obj, defaultDoc)
	}
	return p, nil
}

// unwrapEnvelope accepts payloads nested under merged_data or extraction.
func unwrapEnvelope(top map[string]interface{}) map[string]interface{} {
	for _, key := range Categories {
		if _, ok := top[key]; ok {
			return top
		}
	}
	for _, key := range []string{"merged_data", "extraction", "extracted_data", "data"} {
		if inner, ok := top[key].(map[string]interface{}); ok {
			return unwrapEnvelope(inner)
		}
	}
	return top
}

func parseCategory(key string, obj map[string]interface{}, defaultDoc models.ID) *Category {
	c := &Category{Key: key, Extra: map[string]interface{}{}}
	for _, statusKey := range []string{"status", "completeness_status", "completion_status"} {
		if s, ok := obj[statusKey].(string); ok && s != "" {
			c.Status = strings.ToUpper(strings.TrimSpace(s))
			break
		}
	}
	switch s := obj["summary"].(type) {
	case map[string]interface{}:
		c.Summary = s
	case string:
		c.SummaryText = strings.TrimSpace(s)
	}
	if ed, ok := obj["extracted_data"].(map[string]interface{}); ok {
		c.ExtractedData = ed
	}
	c.Citations = citationsOf(obj, defaultDoc)

	for k, v := range obj {
		switch k {
		case "status", "completeness_status", "completion_status", "summary", "extracted_data":
			continue
		}
		if isCitationKey(k) {
			continue
		}
		c.Extra[k] = v
	}
	return c
}

// Has reports whether the category key is present at all.
func (p *Payload) Has(key string) bool {
	_, ok := p.categories[key]
	return ok
}

func (p *Payload) Category(key string) (*Category, bool) {
	c, ok := p.categories[key]
	return c, ok
}

// Object returns the raw object under key for the dedicated builders.
func (p *Payload) Object(key string) (map[string]interface{}, bool) {
	obj, ok := p.raw[key].(map[string]interface{})
	return obj, ok
}

func (p *Payload) DefaultDocument() models.ID { return p.defaultDoc }
