package catalog

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var (
	stepMarker   = regexp.MustCompile(`^\d+\s*[.)]\s*`)
	driveFileID  = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	driveIDValue = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// SplitList splits a comma-separated cell, trimming entries, dropping empty
// ones and de-duplicating case-insensitively. The first spelling wins.
func SplitList(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ParseIngredients decodes the ingredients cell. Malformed JSON or a
// non-array value yields an empty list; elements that are neither a string
// nor an object with a name are dropped.
func ParseIngredients(cell string) []Ingredient {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return []Ingredient{}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cell), &raw); err != nil {
		return []Ingredient{}
	}

	out := make([]Ingredient, 0, len(raw))
	for _, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 {
			continue
		}
		switch elem[0] {
		case '"':
			var name string
			if json.Unmarshal(elem, &name) == nil && strings.TrimSpace(name) != "" {
				out = append(out, Ingredient{Name: strings.TrimSpace(name)})
			}
		case '{':
			var obj map[string]json.RawMessage
			if json.Unmarshal(elem, &obj) != nil {
				continue
			}
			ing := Ingredient{
				Name:   scalarString(obj["name"]),
				Amount: scalarString(obj["amount"]),
				Unit:   scalarString(obj["unit"]),
				Note:   scalarString(obj["note"]),
			}
			if ing.Name != "" {
				out = append(out, ing)
			}
		}
	}
	return out
}

// scalarString renders a JSON string or number as trimmed text. Anything
// else becomes "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s)
		}
		return ""
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// ParseInstructions splits newline-separated steps and strips leading step
// numbers such as "1." or "2)".
func ParseInstructions(cell string) []string {
	lines := strings.Split(strings.ReplaceAll(cell, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(stepMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// DriveFileID extracts the file id from a drive share URL, either from a
// /file/d/<id> path or an id= query parameter.
func DriveFileID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if host != "drive.google.com" && !strings.HasSuffix(host, ".drive.google.com") {
		return "", false
	}
	if m := driveFileID.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	if id := u.Query().Get("id"); driveIDValue.MatchString(id) {
		return id, true
	}
	return "", false
}

// ImageURL rewrites a drive share URL into a direct view URL. Other URLs
// pass through unchanged.
func ImageURL(raw string) string {
	if id, ok := DriveFileID(raw); ok {
		return "https://drive.google.com/uc?export=view&id=" + id
	}
	return strings.TrimSpace(raw)
}

// ThumbnailURL rewrites a drive share URL into a 400px thumbnail URL. An
// empty thumbnail is derived from a drive image when possible.
func ThumbnailURL(raw, image string) string {
	if strings.TrimSpace(raw) == "" {
		raw = image
		if _, ok := DriveFileID(raw); !ok {
			return ""
		}
	}
	if id, ok := DriveFileID(raw); ok {
		return "https://drive.google.com/thumbnail?id=" + id + "&sz=w400"
	}
	return strings.TrimSpace(raw)
}

// NormalizeDate parses cell against the accepted layouts. Parsed dates are
// rendered as DateLayout; anything else is returned trimmed, with ok=false.
func NormalizeDate(cell string) (string, bool) {
	cell = strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return cell, false
}

func parseNormalizedDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	return t, err == nil
}

// ParseDetails extracts the detail fields of one row.
func ParseDetails(h HeaderMap, row []string) *Details {
	return &Details{
		Ingredients:  ParseIngredients(h.Cell(row, FieldIngredients)),
		Instructions: ParseInstructions(h.Cell(row, FieldInstructions)),
		Glassware:    h.Cell(row, FieldGlassware),
		Garnish:      h.Cell(row, FieldGarnish),
	}
}
