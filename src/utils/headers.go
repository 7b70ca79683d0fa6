package utils

import (
	"strings"
	"unicode"

	"github.com/username/tradejournal/src/models"
)

// HeaderSet answers case-insensitive, whitespace-tolerant header questions
// about an uploaded file.
type HeaderSet struct {
	original []string
	byKey    map[string]string
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func NewHeaderSet(headers []string) HeaderSet {
	hs := HeaderSet{original: headers, byKey: make(map[string]string, len(headers))}
	for _, h := range headers {
		k := headerKey(h)
		if _, exists := hs.byKey[k]; !exists {
			hs.byKey[k] = h
		}
	}
	return hs
}

// Has reports whether every name is present.
func (hs HeaderSet) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := hs.byKey[headerKey(n)]; !ok {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one name is present.
func (hs HeaderSet) HasAny(names ...string) bool {
	for _, n := range names {
		if _, ok := hs.byKey[headerKey(n)]; ok {
			return true
		}
	}
	return false
}

// Actual returns the header as spelled in the file.
func (hs HeaderSet) Actual(name string) (string, bool) {
	h, ok := hs.byKey[headerKey(name)]
	return h, ok
}

// First returns the file spelling of the first candidate that is present.
func (hs HeaderSet) First(candidates ...string) string {
	for _, c := range candidates {
		if h, ok := hs.Actual(c); ok {
			return h
		}
	}
	return ""
}

func (hs HeaderSet) Headers() []string {
	return hs.original
}

// NormalizeHeader lower-cases a header and drops everything that is not a
// letter or digit, so "Filled Qty", "FILLED_QTY" and "filledqty" compare equal.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RowValue looks up a cell by header, trying the exact key first and then a
// case-insensitive match. The value is trimmed.
func RowValue(row models.Row, header string) string {
	if header == "" {
		return ""
	}
	if v, ok := row[header]; ok {
		return strings.TrimSpace(v)
	}
	want := headerKey(header)
	for k, v := range row {
		if headerKey(k) == want {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
