package catalog

import (
	"strings"
	"time"
)

// DateLayout is the normalized date format.
const DateLayout = "2006-01-02"

// Ingredient is one line of a recipe.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
	Note   string `json:"note,omitempty"`
}

// Details is the heavy part of a record, loaded lazily unless the builder
// was asked to keep it.
type Details struct {
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Glassware    string       `json:"glassware,omitempty"`
	Garnish      string       `json:"garnish,omitempty"`
}

// Record is one catalog entry.
type Record struct {
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty,omitempty"`
	PrepTime   string   `json:"prep_time,omitempty"`
	Tags       []string `json:"tags"`
	Moods      []string `json:"moods"`
	Image      string   `json:"image,omitempty"`
	Thumbnail  string   `json:"thumbnail,omitempty"`

	// Row is the 1-based upstream row number, used to re-fetch details.
	Row int `json:"row"`

	DetailsLoaded bool     `json:"details_loaded"`
	Details       *Details `json:"details,omitempty"`

	// Lowercased shadows for the linear-scan fallback. Derived, not persisted.
	nameLower   string
	categoryKey string
	tagsLower   []string
	moodsLower  []string
	tokens      []string

	dateParsed bool
	dateValue  time.Time
}

// prepare derives the shadow fields. Idempotent.
func (r *Record) prepare() {
	r.nameLower = strings.ToLower(Fold(r.Name))
	r.categoryKey = CategoryKey(r.Category)
	r.tagsLower = lowerAll(r.Tags)
	r.moodsLower = lowerAll(r.Moods)
	r.tokens = recordTokens(r)
	r.dateValue, r.dateParsed = parseNormalizedDate(r.Date)
}

// Tokens returns the record's distinct search tokens.
func (r *Record) Tokens() []string { return r.tokens }

// NameLower returns the folded, lowercased name.
func (r *Record) NameLower() string { return r.nameLower }

// CategoryKey returns the category in its canonical form.
func (r *Record) CategoryKey() string { return r.categoryKey }

// TagsLower returns the lowercased tags.
func (r *Record) TagsLower() []string { return r.tagsLower }

// MoodsLower returns the lowercased moods.
func (r *Record) MoodsLower() []string { return r.moodsLower }

func recordTokens(r *Record) []string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	for _, t := range r.Tags {
		sb.WriteByte(' ')
		sb.WriteString(t)
	}
	for _, m := range r.Moods {
		sb.WriteByte(' ')
		sb.WriteString(m)
	}
	return Tokenize(sb.String())
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// less orders records by date descending, then slug ascending. Records with
// unparseable dates sort after every dated record.
func less(a, b *Record) bool {
	switch {
	case a.dateParsed && !b.dateParsed:
		return true
	case !a.dateParsed && b.dateParsed:
		return false
	case a.dateParsed && b.dateParsed && !a.dateValue.Equal(b.dateValue):
		return a.dateValue.After(b.dateValue)
	}
	return a.Slug < b.Slug
}
