package extraction

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Pair is one display-ready key/value.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Display renders any extracted value as text. Arrays are joined with ", ",
// objects become "Key: value" pairs joined with "; ". Null and empty values
// report false and are never shown.
func Display(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case bool:
		if t {
			return "Yes", true
		}
		return "No", true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := Display(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	case map[string]interface{}:
		pairs := Flatten(t)
		parts := make([]string, 0, len(pairs))
		for _, p := range pairs {
			parts = append(parts, p.Key+": "+p.Value)
		}
		return strings.Join(parts, "; "), len(parts) > 0
	}
	return "", false
}

// Flatten turns an object into ordered pairs, recursing into nested objects
// and skipping citation markers and empty values.
func Flatten(obj map[string]interface{}) []Pair {
	out := make([]Pair, 0, len(obj))
	for _, key := range sortedKeys(obj) {
		if isCitationKey(key) {
			continue
		}
		if s, ok := Display(unwrapValue(obj[key])); ok {
			out = append(out, Pair{Key: Label(key), Value: s})
		}
	}
	return out
}

// unwrapValue reads {"value": x, "citations": [...]} style fields as x.
func unwrapValue(v interface{}) interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	inner, ok := obj["value"]
	if !ok {
		return v
	}
	for key := range obj {
		if key != "value" && !isCitationKey(key) {
			return v
		}
	}
	return inner
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var acronyms = map[string]string{
	"drai": "DRAI", "hiv": "HIV", "hbv": "HBV", "hcv": "HCV", "htlv": "HTLV",
	"nat": "NAT", "rpr": "RPR", "cmv": "CMV", "ebv": "EBV", "id": "ID",
	"dob": "DOB", "me": "ME", "abo": "ABO", "rh": "Rh", "hbsag": "HBsAg",
	"hbcab": "HBcAb", "wnv": "WNV", "tpha": "TPHA", "cjd": "CJD", "utc": "UTC",
}

// Label turns snake_case or camelCase keys into display labels.
func Label(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()

	for i, w := range words {
		lower := strings.ToLower(w)
		if a, ok := acronyms[lower]; ok {
			words[i] = a
			continue
		}
		r := []rune(lower)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
