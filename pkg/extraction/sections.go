package extraction

import (
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// Field is one rendered line of a section.
type Field struct {
	Key       string     `json:"key"`
	Label     string     `json:"label"`
	Value     string     `json:"value"`
	Citations []Citation `json:"citations,omitempty"`
}

// Section is the display model of one category.
type Section struct {
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Available   bool       `json:"available"`
	Status      string     `json:"status,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Fields      []Field    `json:"fields,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
}

// NotAvailable is the muted placeholder for an absent category.
func NotAvailable(key string) Section {
	title := Title(key)
	return Section{Key: key, Title: title, Placeholder: title + " data not available"}
}

// BuildSection renders a category: summary fields are preferred, extracted
// data is the fallback, and remaining populated keys follow generically.
func BuildSection(p *Payload, key string) Section {
	c, ok := p.Category(key)
	if !ok {
		return NotAvailable(key)
	}
	s := Section{
		Key:       key,
		Title:     Title(key),
		Available: true,
		Status:    c.Status,
		Summary:   c.SummaryText,
		Citations: c.Citations,
	}

	seen := map[string]struct{}{}
	primary := fieldsOf(c.Summary, p.defaultDoc, seen)
	if len(primary) == 0 {
		primary = fieldsOf(c.ExtractedData, p.defaultDoc, seen)
	}
	for _, f := range primary {
		seen[f.Key] = struct{}{}
	}
	s.Fields = append(primary, fieldsOf(c.Extra, p.defaultDoc, seen)...)
	return s
}

// fieldsOf renders obj, skipping keys already in seen. seen is not modified.
func fieldsOf(obj map[string]interface{}, defaultDoc models.ID, seen map[string]struct{}) []Field {
	var out []Field
	for _, key := range sortedKeys(obj) {
		if isCitationKey(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		raw := obj[key]
		value, ok := Display(unwrapValue(raw))
		if !ok {
			continue
		}
		f := Field{Key: key, Label: Label(key), Value: value}
		if nested, isObj := raw.(map[string]interface{}); isObj {
			f.Citations = citationsOf(nested, defaultDoc)
		}
		out = append(out, f)
	}
	return out
}

// ConditionalStatus is the three-way reading of a conditional document.
type ConditionalStatus string

const (
	ConditionMet     ConditionalStatus = "met"
	ConditionNotMet  ConditionalStatus = "not_met"
	ConditionUnknown ConditionalStatus = "unknown"
)

// ClassifyCondition reads a free-text conditional status. NOT MET wins when
// both phrases appear.
func ClassifyCondition(status string) ConditionalStatus {
	upper := strings.ToUpper(status)
	switch {
	case strings.Contains(upper, "CONDITION NOT MET"):
		return ConditionNotMet
	case strings.Contains(upper, "CONDITION MET"):
		return ConditionMet
	}
	return ConditionUnknown
}

// ConditionalDocument is one row of the conditional documents section.
type ConditionalDocument struct {
	Key       string            `json:"key"`
	Name      string            `json:"name"`
	RawStatus string            `json:"raw_status,omitempty"`
	Condition ConditionalStatus `json:"condition"`
	Fields    []Field           `json:"fields,omitempty"`
	Citations []Citation        `json:"citations,omitempty"`
}

// ConditionalEntries returns the conditional documents keyed as delivered.
func ConditionalEntries(p *Payload) map[string]ConditionalDocument {
	obj, ok := p.Object(ConditionalDocuments)
	if !ok {
		return nil
	}
	out := make(map[string]ConditionalDocument, len(obj))
	for key, value := range obj {
		entry, isObj := value.(map[string]interface{})
		if !isObj {
			continue
		}
		raw, _ := entry["conditional_status"].(string)
		doc := ConditionalDocument{
			Key:       key,
			Name:      Label(key),
			RawStatus: raw,
			Condition: ClassifyCondition(raw),
			Citations: citationsOf(entry, p.defaultDoc),
		}
		doc.Fields = fieldsOf(entry, p.defaultDoc, map[string]struct{}{"conditional_status": {}})
		out[key] = doc
	}
	return out
}

// BuildConditionalSection renders conditional documents in key order.
func BuildConditionalSection(p *Payload) (Section, []ConditionalDocument) {
	entries := ConditionalEntries(p)
	if entries == nil {
		return NotAvailable(ConditionalDocuments), nil
	}
	s := BuildSection(p, ConditionalDocuments)
	s.Fields = nil
	keys := make(map[string]interface{}, len(entries))
	for k := range entries {
		keys[k] = nil
	}
	docs := make([]ConditionalDocument, 0, len(entries))
	for _, k := range sortedKeys(keys) {
		docs = append(docs, entries[k])
	}
	return s, docs
}

// Criterion is one evaluated acceptance criterion.
type Criterion struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Result      string     `json:"result,omitempty"`
	Reasoning   string     `json:"reasoning,omitempty"`
	TissueTypes string     `json:"tissue_types,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
}

// BuildCriteria lists criteria evaluations in key order.
func BuildCriteria(p *Payload) []Criterion {
	obj, ok := p.Object(CriteriaEvaluations)
	if !ok {
		return nil
	}
	var out []Criterion
	for _, key := range sortedKeys(obj) {
		entry, isObj := obj[key].(map[string]interface{})
		if !isObj {
			if v, ok := Display(obj[key]); ok {
				out = append(out, Criterion{Key: key, Name: Label(key), Result: v})
			}
			continue
		}
		c := Criterion{Key: key, Name: firstString(entry, "criterion_name", "name"), Citations: citationsOf(entry, p.defaultDoc)}
		if c.Name == "" {
			c.Name = Label(key)
		}
		c.Result = firstString(entry, "evaluation_result", "result", "status")
		c.Reasoning = firstString(entry, "reasoning", "explanation", "notes")
		if tt, ok := Display(entry["tissue_types"]); ok {
			c.TissueTypes = tt
		}
		out = append(out, c)
	}
	return out
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := Display(obj[k]); ok {
			return s
		}
	}
	return ""
}
