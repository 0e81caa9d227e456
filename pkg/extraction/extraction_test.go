package extraction

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

const samplePayload = `{
  "physical_assessment": {
    "status": "complete",
    "summary": {"height_cm": 178, "tattoos": ["left arm", "back"], "body_marks": null},
    "extracted_data": {"height_cm": 177.5, "weight_kg": 80},
    "recovery_site": {"value": "OR 3", "citations": [4]},
    "citations": [{"document_id": 12, "page": 2}, 3]
  },
  "drai": {
    "status": "INCOMPLETE",
    "extracted_data": {
      "interview_date": "2026-01-09",
      "respondent": {"relationship": "spouse", "name": ""},
      "high_risk_behaviour": false
    }
  },
  "conditional_documents": {
    "autopsy_report": {"conditional_status": "CONDITION NOT MET - autopsy not performed", "page": 7},
    "toxicology_report": {"conditional_status": "CONDITION MET"},
    "bioburden_results": {"conditional_status": "awaiting lab"}
  },
  "criteria_evaluations": {
    "hiv_risk": {"evaluation_result": "ACCEPTABLE", "reasoning": "No risk factors reported", "tissue_types": ["skin", "bone"]}
  },
  "eligibility": {
    "overall_status": "REQUIRES_REVIEW",
    "musculoskeletal": {"status": "ELIGIBLE"},
    "skin": {
      "status": "INELIGIBLE",
      "blocking_criteria": [{"criterion_name": "Sepsis", "reasoning": "Positive blood culture", "citations": [{"page": 9, "document_id": "31"}]}],
      "discretionary_criteria": ["Minor abrasions"]
    },
    "ocular": {"status": null}
  }
}`

func parseSample(t *testing.T) *Payload {
	t.Helper()
	p, err := Parse(json.RawMessage(samplePayload), "12")
	require.NoError(t, err)
	return p
}

func TestAbsentCategoryRendersPlaceholder(t *testing.T) {
	p := parseSample(t)
	s := BuildSection(p, PlasmaDilution)
	assert.False(t, s.Available)
	assert.Equal(t, "Plasma Dilution data not available", s.Placeholder)
	assert.Empty(t, s.Fields)
}

func TestSummaryPreferredOverExtractedData(t *testing.T) {
	s := BuildSection(parseSample(t), PhysicalAssessment)
	require.True(t, s.Available)
	assert.Equal(t, StatusComplete, s.Status)

	values := map[string]string{}
	for _, f := range s.Fields {
		values[f.Label] = f.Value
	}
	assert.Equal(t, "178", values["Height Cm"])
	assert.Equal(t, "left arm, back", values["Tattoos"])
	assert.NotContains(t, values, "Body Marks")
	assert.NotContains(t, values, "Weight Kg", "extracted data is only a fallback")
	assert.Equal(t, "OR 3", values["Recovery Site"])

	assert.Equal(t, []Citation{{Page: 2, DocumentID: "12"}, {Page: 3, DocumentID: "12"}}, s.Citations)
}

func TestExtractedDataFallbackFlattensObjects(t *testing.T) {
	s := BuildSection(parseSample(t), DRAI)
	values := map[string]string{}
	for _, f := range s.Fields {
		values[f.Label] = f.Value
	}
	assert.Equal(t, "Relationship: spouse", values["Respondent"])
	assert.Equal(t, "No", values["High Risk Behaviour"])
	assert.Equal(t, "2026-01-09", values["Interview Date"])
}

func TestConditionalDocuments(t *testing.T) {
	entries := ConditionalEntries(parseSample(t))
	assert.Equal(t, ConditionNotMet, entries["autopsy_report"].Condition)
	assert.Equal(t, ConditionMet, entries["toxicology_report"].Condition)
	assert.Equal(t, ConditionUnknown, entries["bioburden_results"].Condition)
	assert.Equal(t, []Citation{{Page: 7, DocumentID: "12"}}, entries["autopsy_report"].Citations)

	_, docs := BuildConditionalSection(parseSample(t))
	require.Len(t, docs, 3)
	assert.Equal(t, "autopsy_report", docs[0].Key)
}

func TestCriteria(t *testing.T) {
	criteria := BuildCriteria(parseSample(t))
	require.Len(t, criteria, 1)
	assert.Equal(t, "ACCEPTABLE", criteria[0].Result)
	assert.Equal(t, "skin, bone", criteria[0].TissueTypes)
	assert.Equal(t, "HIV Risk", criteria[0].Name)
}

func TestEligibilityIsDisplayedNotComputed(t *testing.T) {
	v := BuildEligibility(parseSample(t), "ELIGIBLE")
	require.True(t, v.Available)
	assert.Equal(t, RequiresReview, v.Overall, "payload verdict wins over the donor record")

	byKey := map[string]TissueEligibility{}
	for _, tissue := range v.Tissues {
		byKey[tissue.Key] = tissue
	}
	assert.Equal(t, Eligible, byKey["musculoskeletal"].Verdict)
	assert.Equal(t, Ineligible, byKey["skin"].Verdict)
	assert.Equal(t, Pending, byKey["ocular"].Verdict)
	require.Len(t, byKey["skin"].Blocking, 1)
	assert.Equal(t, "Positive blood culture", byKey["skin"].Blocking[0].Reasoning)
	assert.Equal(t, []Citation{{Page: 9, DocumentID: "31"}}, byKey["skin"].Blocking[0].Citations)
	assert.Equal(t, "Minor abrasions", byKey["skin"].Discretionary[0].Name)
}

func TestEligibilityFallsBackToDonorStatus(t *testing.T) {
	p, err := Parse(json.RawMessage(`{"drai":{}}`), "")
	require.NoError(t, err)
	v := BuildEligibility(p, "not_eligible")
	assert.False(t, v.Available)
	assert.Equal(t, Ineligible, v.Overall)
}

func TestClassifyVerdict(t *testing.T) {
	cases := map[string]Verdict{
		"ELIGIBLE":         Eligible,
		"Not Eligible":     Ineligible,
		"INELIGIBLE":       Ineligible,
		"requires_review":  RequiresReview,
		"PENDING":          Pending,
		"":                 Pending,
		"something else":   Pending,
		"eligible-pending": Eligible,
	}
	for in, want := range cases {
		assert.Equal(t, want, ClassifyVerdict(in), in)
	}
}

func TestParseUnwrapsMergedData(t *testing.T) {
	p, err := Parse(json.RawMessage(`{"merged_data":{"authorization":{"status":"PENDING"}}}`), "")
	require.NoError(t, err)
	assert.True(t, p.Has(Authorization))
	assert.False(t, p.Has(DRAI))
}

func TestParseEmptyAndInvalid(t *testing.T) {
	p, err := Parse(nil, "")
	require.NoError(t, err)
	assert.False(t, BuildSection(p, DRAI).Available)

	_, err = Parse(json.RawMessage(`[1,2]`), "")
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Infectious Disease Testing", Label("infectious_disease_testing"))
	assert.Equal(t, "HIV NAT Result", Label("hiv_nat_result"))
	assert.Equal(t, "Skin Dermal Cultures", Label("skinDermalCultures"))
	assert.Equal(t, "Donor ID", Label("donor_id"))
}

func TestDisplayDropsEmptyValues(t *testing.T) {
	for _, v := range []interface{}{nil, "", "   ", []interface{}{}, []interface{}{nil, ""}, map[string]interface{}{"a": nil}} {
		_, ok := Display(v)
		assert.False(t, ok, "%#v", v)
	}
	s, ok := Display(map[string]interface{}{"b": 2.5, "a": []interface{}{"x", nil, "y"}})
	require.True(t, ok)
	assert.Equal(t, "A: x, y; B: 2.5", s)
}

func TestCitationShapesResolveToSameRecord(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bare page and {document_id, page} normalize identically", prop.ForAll(
		func(page int, doc int) bool {
			docID := models.ID(strconv.Itoa(doc))
			bare, ok1 := NormalizeCitation(float64(page), docID)
			obj, ok2 := NormalizeCitation(map[string]interface{}{"document_id": float64(doc), "page": float64(page)}, "other")
			if !ok1 || !ok2 || bare != obj {
				return false
			}

			// and the internal record survives a JSON trip back through the normalizer
			data, err := json.Marshal(bare)
			if err != nil {
				return false
			}
			var decoded interface{}
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			again, ok3 := NormalizeCitation(decoded, "other")
			return ok3 && again == bare
		},
		gen.IntRange(1, 5000),
		gen.IntRange(1, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestNormalizeCitationRejectsGarbage(t *testing.T) {
	for _, v := range []interface{}{0.0, -3.0, 2.5, "abc", map[string]interface{}{"document_id": 4}, nil, true} {
		_, ok := NormalizeCitation(v, "1")
		assert.False(t, ok, "%#v", v)
	}
	c, ok := NormalizeCitation(map[string]interface{}{"documentId": "A-9", "page_number": "4"}, "1")
	require.True(t, ok)
	assert.Equal(t, Citation{Page: 4, DocumentID: "A-9"}, c)
}
