package extraction

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// Citation points at one page of one source document.
type Citation struct {
	Page       int       `json:"page"`
	DocumentID models.ID `json:"document_id,omitempty"`
}

var citationKeys = []string{"citations", "citation", "source_pages", "pages", "page_references"}

func isCitationKey(key string) bool {
	for _, k := range citationKeys {
		if k == key {
			return true
		}
	}
	return key == "page" || key == "page_number" || key == "document_id"
}

// NormalizeCitation accepts a bare page number or a {document_id, page}
// object. A bare page is attributed to defaultDoc.
func NormalizeCitation(v interface{}, defaultDoc models.ID) (Citation, bool) {
	if page, ok := pageNumber(v); ok {
		return Citation{Page: page, DocumentID: defaultDoc}, true
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return Citation{}, false
	}
	var page int
	for _, key := range []string{"page", "page_number", "pageNumber"} {
		if p, ok := pageNumber(obj[key]); ok {
			page = p
			break
		}
	}
	if page == 0 {
		return Citation{}, false
	}
	c := Citation{Page: page, DocumentID: defaultDoc}
	for _, key := range []string{"document_id", "documentId", "doc_id"} {
		if id := idString(obj[key]); id != "" {
			c.DocumentID = models.ID(id)
			break
		}
	}
	return c, true
}

// NormalizeCitations flattens a single marker or a list of markers, dropping
// anything unrecognisable and duplicates.
func NormalizeCitations(v interface{}, defaultDoc models.ID) []Citation {
	var raw []interface{}
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		raw = t
	default:
		raw = []interface{}{t}
	}
	seen := make(map[Citation]struct{}, len(raw))
	var out []Citation
	for _, item := range raw {
		c, ok := NormalizeCitation(item, defaultDoc)
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// citationsOf collects every citation marker carried by an object.
func citationsOf(obj map[string]interface{}, defaultDoc models.ID) []Citation {
	var out []Citation
	for _, key := range citationKeys {
		out = append(out, NormalizeCitations(obj[key], defaultDoc)...)
	}
	if _, hasPage := obj["page"]; hasPage {
		if c, ok := NormalizeCitation(obj, defaultDoc); ok {
			out = append(out, c)
		}
	}
	return dedupe(out)
}

func dedupe(in []Citation) []Citation {
	if len(in) < 2 {
		return in
	}
	seen := make(map[Citation]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func pageNumber(v interface{}) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		f = float64(parsed)
	default:
		return 0, false
	}
	if f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func idString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
	case json.Number:
		return t.String()
	}
	return ""
}
