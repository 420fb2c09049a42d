// Package search filters and searches a catalog by sorted posting-list
// intersection, falling back to prefix and n-gram buckets for tokens that
// are not in the index.
package search

import (
	"strings"

	"github.com/Aman-CERP/barshelf/internal/catalog"
)

// Query holds the active predicates. Empty fields are ignored; all active
// predicates must match.
type Query struct {
	Text     string `json:"q,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Category string `json:"category,omitempty"`
	Mood     string `json:"mood,omitempty"`
}

// Normalize trims and lowercases every predicate. Category is reduced to
// its catalog key.
func (q Query) Normalize() Query {
	return Query{
		Text:     strings.ToLower(strings.TrimSpace(q.Text)),
		Tag:      strings.ToLower(strings.TrimSpace(q.Tag)),
		Category: catalog.CategoryKey(q.Category),
		Mood:     strings.ToLower(strings.TrimSpace(q.Mood)),
	}
}

// Active reports whether any predicate is set.
func (q Query) Active() bool {
	n := q.Normalize()
	return n.Text != "" || n.Tag != "" || n.Category != "" || n.Mood != ""
}

// Options configures an Engine.
type Options struct {
	// VerifyFuzzy drops approximate candidates whose tokens do not actually
	// contain the query token.
	VerifyFuzzy bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{VerifyFuzzy: true}
}
