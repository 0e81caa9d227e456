package extraction

import (
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// Verdict is the server-computed eligibility of one tissue category.
type Verdict string

const (
	Eligible       Verdict = "eligible"
	Ineligible     Verdict = "ineligible"
	RequiresReview Verdict = "requires_review"
	Pending        Verdict = "pending"
)

// ClassifyVerdict maps the backend's wording onto the four display verdicts.
// Negative wording is checked before positive since "ineligible" and
// "not eligible" both contain "eligible".
func ClassifyVerdict(status string) Verdict {
	s := strings.ToLower(strings.TrimSpace(status))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	switch {
	case s == "":
		return Pending
	case strings.Contains(s, "ineligible"), strings.Contains(s, "not eligible"), s == "rejected", s == "deferred":
		return Ineligible
	case strings.Contains(s, "review"), strings.Contains(s, "discretion"), strings.Contains(s, "conditional"):
		return RequiresReview
	case strings.Contains(s, "eligible"), s == "accepted", s == "approved":
		return Eligible
	}
	return Pending
}

// CriterionNote is one blocking or discretionary criterion with reasoning.
type CriterionNote struct {
	Name      string     `json:"name"`
	Reasoning string     `json:"reasoning,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// TissueEligibility is the display row of one tissue category.
type TissueEligibility struct {
	Key           string          `json:"key"`
	Name          string          `json:"name"`
	Verdict       Verdict         `json:"verdict"`
	RawStatus     string          `json:"raw_status,omitempty"`
	Blocking      []CriterionNote `json:"blocking,omitempty"`
	Discretionary []CriterionNote `json:"discretionary,omitempty"`
}

// EligibilityView is the eligibility tab.
type EligibilityView struct {
	Available bool                `json:"available"`
	Overall   Verdict             `json:"overall,omitempty"`
	RawStatus string              `json:"raw_status,omitempty"`
	Tissues   []TissueEligibility `json:"tissues,omitempty"`
	Section   Section             `json:"section"`
}

// nonTissueKeys are eligibility keys that never name a tissue category.
var nonTissueKeys = map[string]struct{}{
	"status": {}, "overall_status": {}, "overall": {}, "eligibility_status": {},
	"summary": {}, "extracted_data": {}, "citations": {},
}

// BuildEligibility renders the eligibility category. donorStatus is the
// eligibility_status of the donor record, used when the payload has none.
func BuildEligibility(p *Payload, donorStatus string) EligibilityView {
	obj, ok := p.Object(EligibilityKey)
	if !ok {
		v := EligibilityView{Section: NotAvailable(EligibilityKey)}
		if donorStatus != "" {
			v.RawStatus = donorStatus
			v.Overall = ClassifyVerdict(donorStatus)
		}
		return v
	}

	v := EligibilityView{Available: true, Section: BuildSection(p, EligibilityKey)}
	v.Section.Fields = nil
	v.RawStatus = firstString(obj, "overall_status", "eligibility_status", "status", "overall")
	if v.RawStatus == "" {
		v.RawStatus = donorStatus
	}
	v.Overall = ClassifyVerdict(v.RawStatus)

	tissues := obj
	if nested, isObj := obj["tissues"].(map[string]interface{}); isObj {
		tissues = nested
	} else if nested, isObj := obj["tissue_categories"].(map[string]interface{}); isObj {
		tissues = nested
	}
	for _, key := range sortedKeys(tissues) {
		if _, skip := nonTissueKeys[key]; skip {
			continue
		}
		entry, isObj := tissues[key].(map[string]interface{})
		if !isObj {
			continue
		}
		raw := firstString(entry, "status", "eligibility_status", "verdict", "determination")
		t := TissueEligibility{
			Key:       key,
			Name:      Label(key),
			Verdict:   ClassifyVerdict(raw),
			RawStatus: raw,
		}
		t.Blocking = criterionNotes(entry["blocking_criteria"], p.defaultDoc)
		t.Discretionary = criterionNotes(entry["discretionary_criteria"], p.defaultDoc)
		v.Tissues = append(v.Tissues, t)
	}
	return v
}

func criterionNotes(v interface{}, defaultDoc models.ID) []CriterionNote {
	var items []interface{}
	switch t := v.(type) {
	case []interface{}:
		items = t
	case map[string]interface{}:
		for _, k := range sortedKeys(t) {
			entry, isObj := t[k].(map[string]interface{})
			if !isObj {
				if s, ok := Display(t[k]); ok {
					items = append(items, map[string]interface{}{"criterion_name": Label(k), "reasoning": s})
				}
				continue
			}
			if _, named := entry["criterion_name"]; !named {
				entry = withName(entry, Label(k))
			}
			items = append(items, entry)
		}
	case string:
		items = []interface{}{t}
	}

	var out []CriterionNote
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, CriterionNote{Name: s})
			}
		case map[string]interface{}:
			n := CriterionNote{
				Name:      firstString(t, "criterion_name", "name", "criterion"),
				Reasoning: firstString(t, "reasoning", "reason", "explanation"),
				Citations: citationsOf(t, defaultDoc),
			}
			if n.Name != "" || n.Reasoning != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

func withName(entry map[string]interface{}, name string) map[string]interface{} {
	out := make(map[string]interface{}, len(entry)+1)
	for k, v := range entry {
		out[k] = v
	}
	out["criterion_name"] = name
	return out
}
