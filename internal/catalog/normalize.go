package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength is the longest identifier Build produces.
const MaxSlugLength = 80

var (
	tokenRegex  = regexp.MustCompile(`[a-z0-9]+`)
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fold strips combining marks ("Añejo" -> "Anejo"). Case is preserved.
func Fold(s string) string {
	if isASCII(s) {
		return s
	}
	// transform.Chain is stateful, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify derives an identifier: folded, lowercased, non-alphanumeric runs
// collapsed to "-", trimmed and truncated to MaxSlugLength.
func Slugify(s string) string {
	slug := nonAlnumRun.ReplaceAllString(strings.ToLower(Fold(s)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// NormalizeHeader canonicalizes a header cell: folded, lowercased, with every
// non-alphanumeric character removed. "Date Added" -> "dateadded".
func NormalizeHeader(s string) string {
	return nonAlnumRun.ReplaceAllString(strings.ToLower(Fold(s)), "")
}

// CategoryKey is the canonical category form. The category index, the
// listed categories and category queries all use it, so every spelling
// that lists as one category also finds all of its records.
func CategoryKey(s string) string {
	return NormalizeHeader(s)
}

// Tokenize extracts the distinct lowercase alphanumeric runs of text, in
// order of first appearance.
func Tokenize(text string) []string {
	found := tokenRegex.FindAllString(strings.ToLower(Fold(text)), -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := found[:0]
	for _, tok := range found {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
