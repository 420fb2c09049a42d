package catalog

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// placeholderCategories are canonical category spellings that mean "no
// category". They stay in the category index but are never listed.
var placeholderCategories = map[string]struct{}{
	"":              {},
	"na":            {},
	"none":          {},
	"null":          {},
	"tbd":           {},
	"unknown":       {},
	"uncategorized": {},
	"category":      {},
	"misc":          {},
}

// Options controls Build.
type Options struct {
	// KeepDetails keeps ingredients and instructions in the built catalog.
	// When false they are dropped and backfilled on demand.
	KeepDetails bool

	// Now stamps BuiltAt. Defaults to time.Now.
	Now func() time.Time
}

// Build parses rows (header first) into a Catalog. Rows without a derivable
// identifier are skipped; malformed cells are defaulted. An empty or
// header-only sheet yields a valid empty catalog.
func Build(rows [][]string, opts Options) *Catalog {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var headers HeaderMap
	if len(rows) > 0 {
		headers = MapHeaders(rows[0])
	} else {
		headers = HeaderMap{}
	}

	records := make([]*Record, 0, max(len(rows)-1, 0))
	used := make(map[string]struct{}, len(rows))
	for i := 1; i < len(rows); i++ {
		rec := parseRow(headers, rows[i], opts.KeepDetails)
		if rec == nil {
			continue
		}
		rec.Slug = uniqueSlug(rec.Slug, used)
		used[rec.Slug] = struct{}{}
		// Header is sheet row 1.
		rec.Row = i + 1
		rec.prepare()
		records = append(records, rec)
	}

	sort.SliceStable(records, func(a, b int) bool { return less(records[a], records[b]) })

	c := &Catalog{
		Schema:     SchemaVersion,
		BuiltAt:    now().UTC(),
		Headers:    headers,
		Records:    records,
		Categories: distinctCategories(records),
		Index:      buildIndexes(records),
	}
	c.Aux = buildAux(c.Index.Token)
	c.verified = true
	c.Fingerprint = Fingerprint(records)
	return c
}

func parseRow(h HeaderMap, row []string, keepDetails bool) *Record {
	name := h.Cell(row, FieldName)
	slug := Slugify(h.Cell(row, FieldSlug))
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil
	}

	date, _ := NormalizeDate(h.Cell(row, FieldDate))
	image := ImageURL(h.Cell(row, FieldImage))
	rec := &Record{
		Slug:       slug,
		Name:       name,
		Date:       date,
		Category:   h.Cell(row, FieldCategory),
		Difficulty: h.Cell(row, FieldDifficulty),
		PrepTime:   h.Cell(row, FieldPrepTime),
		Tags:       SplitList(h.Cell(row, FieldTags)),
		Moods:      SplitList(h.Cell(row, FieldMoods)),
		Image:      image,
		Thumbnail:  ThumbnailURL(h.Cell(row, FieldThumbnail), h.Cell(row, FieldImage)),
	}
	if keepDetails {
		rec.Details = ParseDetails(h, row)
		rec.DetailsLoaded = true
	}
	return rec
}

// uniqueSlug appends -2, -3, ... until slug is unused, keeping the result
// within MaxSlugLength.
func uniqueSlug(slug string, used map[string]struct{}) string {
	if _, taken := used[slug]; !taken {
		return slug
	}
	for n := 2; ; n++ {
		suffix := "-" + strconv.Itoa(n)
		base := slug
		if len(base)+len(suffix) > MaxSlugLength {
			base = strings.TrimRight(base[:MaxSlugLength-len(suffix)], "-")
		}
		candidate := base + suffix
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}

// buildIndexes walks records in catalog order, so each posting list comes
// out ascending without a remap step.
func buildIndexes(records []*Record) *Indexes {
	idx := &Indexes{
		Category: make(map[string][]int),
		Tag:      make(map[string][]int),
		Mood:     make(map[string][]int),
		Token:    make(map[string][]int),
		Slug:     make(map[string]int, len(records)),
	}
	for pos, r := range records {
		idx.Slug[r.Slug] = pos
		if r.categoryKey != "" {
			appendPosting(idx.Category, r.categoryKey, pos)
		}
		for _, t := range r.tagsLower {
			appendPosting(idx.Tag, t, pos)
		}
		for _, m := range r.moodsLower {
			appendPosting(idx.Mood, m, pos)
		}
		for _, tok := range r.tokens {
			appendPosting(idx.Token, tok, pos)
		}
	}
	return idx
}

// appendPosting adds pos unless it is already the last entry.
func appendPosting(idx map[string][]int, key string, pos int) {
	list := idx[key]
	if n := len(list); n > 0 && list[n-1] == pos {
		return
	}
	idx[key] = append(list, pos)
}

// buildAux derives prefix and n-gram buckets of length 1..3 from the token
// index.
func buildAux(tokens map[string][]int) *AuxIndexes {
	prefix := make(map[string]map[int]struct{})
	ngram := make(map[string]map[int]struct{})
	add := func(m map[string]map[int]struct{}, key string, postings []int) {
		set, ok := m[key]
		if !ok {
			set = make(map[int]struct{}, len(postings))
			m[key] = set
		}
		for _, p := range postings {
			set[p] = struct{}{}
		}
	}

	for tok, postings := range tokens {
		limit := min(3, len(tok))
		for k := 1; k <= limit; k++ {
			add(prefix, tok[:k], postings)
		}
		seen := make(map[string]struct{})
		for k := 1; k <= limit; k++ {
			for i := 0; i+k <= len(tok); i++ {
				g := tok[i : i+k]
				if _, dup := seen[g]; dup {
					continue
				}
				seen[g] = struct{}{}
				add(ngram, g, postings)
			}
		}
	}

	return &AuxIndexes{Prefix: flattenSets(prefix), NGram: flattenSets(ngram)}
}

func flattenSets(m map[string]map[int]struct{}) map[string][]int {
	out := make(map[string][]int, len(m))
	for key, set := range m {
		list := make([]int, 0, len(set))
		for p := range set {
			list = append(list, p)
		}
		sort.Ints(list)
		out[key] = list
	}
	return out
}

// distinctCategories lists categories by first-seen display spelling,
// excluding placeholders, sorted case-insensitively.
func distinctCategories(records []*Record) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		canon := r.categoryKey
		if _, placeholder := placeholderCategories[canon]; placeholder {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, r.Category)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
