package search

import (
	"strings"

	"github.com/Aman-CERP/barshelf/internal/catalog"
)

// Engine evaluates queries against a catalog. It holds no per-catalog state
// and is safe for concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Query returns the ascending positions of records matching q. With no
// active predicate every position is returned.
func (e *Engine) Query(c *catalog.Catalog, q Query) []int {
	if c == nil {
		return []int{}
	}
	q = q.Normalize()
	if !c.HasValidIndexes() {
		return e.scan(c, q)
	}

	idx := c.Index
	var groups [][]int
	if q.Category != "" {
		groups = append(groups, idx.Category[q.Category])
	}
	if q.Tag != "" {
		groups = append(groups, idx.Tag[q.Tag])
	}
	if q.Mood != "" {
		groups = append(groups, idx.Mood[q.Mood])
	}
	for _, tok := range catalog.Tokenize(q.Text) {
		if list, ok := idx.Token[tok]; ok {
			groups = append(groups, list)
			continue
		}
		groups = append(groups, e.approximate(c, tok))
	}

	if len(groups) == 0 {
		return allPositions(c.Len())
	}
	for _, g := range groups {
		if len(g) == 0 {
			return []int{}
		}
	}
	return Intersect(groups...)
}

// approximate resolves a token missing from the token index: the prefix
// bucket of its first min(3, L) bytes intersected with every n-gram bucket of
// that same size.
func (e *Engine) approximate(c *catalog.Catalog, tok string) []int {
	k := min(3, len(tok))
	aux := c.AuxIndexes()

	groups := [][]int{aux.Prefix[tok[:k]]}
	for i := 0; i+k <= len(tok); i++ {
		groups = append(groups, aux.NGram[tok[i:i+k]])
	}
	for _, g := range groups {
		if len(g) == 0 {
			return nil
		}
	}
	candidates := Intersect(groups...)
	if !e.opts.VerifyFuzzy {
		return candidates
	}

	verified := candidates[:0]
	for _, pos := range candidates {
		if tokenContains(c.Records[pos].Tokens(), tok) {
			verified = append(verified, pos)
		}
	}
	return verified
}

func tokenContains(tokens []string, needle string) bool {
	for _, t := range tokens {
		if strings.Contains(t, needle) {
			return true
		}
	}
	return false
}

// scan is the linear fallback for catalogs without usable indexes. Catalog
// order is preserved.
func (e *Engine) scan(c *catalog.Catalog, q Query) []int {
	text := strings.ToLower(catalog.Fold(q.Text))
	out := make([]int, 0)
	for pos, r := range c.Records {
		if q.Category != "" && r.CategoryKey() != q.Category {
			continue
		}
		if q.Tag != "" && !anyContains(r.TagsLower(), q.Tag) {
			continue
		}
		if q.Mood != "" && !anyContains(r.MoodsLower(), q.Mood) {
			continue
		}
		if text != "" && !strings.Contains(r.NameLower(), text) &&
			!anyContains(r.TagsLower(), text) && !anyContains(r.MoodsLower(), text) {
			continue
		}
		out = append(out, pos)
	}
	return out
}

func anyContains(values []string, needle string) bool {
	for _, v := range values {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

func allPositions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
