// Package checklist derives the document completion checklist of a donor
// from its uploaded documents and the conditional_documents block of the
// extraction payload. Evaluation is pure and recomputed on every request.
package checklist

import (
	"encoding/json"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
)

// Item is a fixed requirement satisfied by a matching document type.
type Item struct {
	Name      string      `json:"name"`
	Keywords  []string    `json:"keywords"`
	IsPresent bool        `json:"is_present"`
	Documents []models.ID `json:"documents,omitempty"`
}

// ConditionalItem is a requirement gated by an extracted condition.
type ConditionalItem struct {
	Name              string                       `json:"name"`
	Key               string                       `json:"key"`
	Condition         string                       `json:"condition,omitempty"`
	ConditionalStatus extraction.ConditionalStatus `json:"conditional_status"`
	RawStatus         string                       `json:"raw_status,omitempty"`
}

type Checklist struct {
	Fixed       []Item            `json:"fixed"`
	Conditional []ConditionalItem `json:"conditional"`
	Present     int               `json:"present"`
	Required    int               `json:"required"`
}

// Complete reports whether every fixed item is present.
func (c Checklist) Complete() bool {
	return c.Required > 0 && c.Present == c.Required
}

// Snapshot is the JSON stored alongside an approval decision.
func (c Checklist) Snapshot() (json.RawMessage, error) {
	return json.Marshal(c)
}

// Evaluate computes the checklist. Neither documents nor conditional is
// modified, and equal inputs always produce equal output.
func Evaluate(defs Definitions, documents []models.Document, conditional map[string]extraction.ConditionalDocument) Checklist {
	out := Checklist{
		Fixed:       make([]Item, 0, len(defs.Fixed)),
		Conditional: make([]ConditionalItem, 0, len(defs.Conditional)),
	}

	for _, def := range defs.Fixed {
		item := Item{Name: def.Name, Keywords: append([]string(nil), def.Keywords...)}
		for _, doc := range documents {
			if matchesAny(doc.DocumentType, def.Keywords) {
				item.IsPresent = true
				item.Documents = append(item.Documents, doc.ID)
			}
		}
		if item.IsPresent {
			out.Present++
		}
		out.Fixed = append(out.Fixed, item)
	}
	out.Required = len(out.Fixed)

	for _, def := range defs.Conditional {
		item := ConditionalItem{
			Name:              def.Name,
			Key:               def.Key,
			Condition:         def.Condition,
			ConditionalStatus: extraction.ConditionUnknown,
		}
		if entry, ok := lookup(conditional, def); ok {
			item.RawStatus = entry.RawStatus
			item.ConditionalStatus = extraction.ClassifyCondition(entry.RawStatus)
		}
		out.Conditional = append(out.Conditional, item)
	}
	return out
}

func matchesAny(documentType string, keywords []string) bool {
	lower := strings.ToLower(documentType)
	if strings.TrimSpace(lower) == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lookup(conditional map[string]extraction.ConditionalDocument, def ConditionalDefinition) (extraction.ConditionalDocument, bool) {
	if entry, ok := conditional[def.Key]; ok {
		return entry, true
	}
	for _, alias := range def.Aliases {
		if entry, ok := conditional[alias]; ok {
			return entry, true
		}
	}
	return extraction.ConditionalDocument{}, false
}
