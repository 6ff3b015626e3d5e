package parse

import (
	"strings"
	"unicode/utf8"
)

// -------------------- cell + identifier normalization --------------------

// NormalizeMatric canonicalizes a free-text identifier for comparison:
// invalid UTF-8 replaced, non-breaking spaces unified, inner whitespace
// collapsed, upper-cased. Roster matching and upload dedup both key on
// this form.
func NormalizeMatric(s string) string {
	return strings.ToUpper(cleanCell(s))
}

// NormalizeLevelCode trims and collapses a declared cohort-level value but
// keeps its case; numeric coercion happens at compare time.
func NormalizeLevelCode(s string) string {
	return cleanCell(s)
}

func cleanCell(s string) string {
	return collapseWhitespace(sanitizeUTF8(s))
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeUTF8(s string) string {
	if s == "" {
		return s
	}
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, " ")
}

// -------------------- header aliasing --------------------

// Export tools disagree on column names; match on a folded form that drops
// everything but letters and digits ("Matric No." == "matric_no").
func headerKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

var identifierAliases = map[string]bool{
	"matric":              true,
	"matricno":            true,
	"matricnumber":        true,
	"matriculationno":     true,
	"matriculationnumber": true,
	"regno":               true,
	"registrationno":      true,
	"registrationnumber":  true,
	"studentid":           true,
	"studentno":           true,
	"id":                  true,
}

var levelAliases = map[string]bool{
	"level":     true,
	"levelcode": true,
	"class":     true,
	"cohort":    true,
}

var nameAliases = map[string]bool{
	"name":        true,
	"fullname":    true,
	"studentname": true,
}
