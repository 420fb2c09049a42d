package catalog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

// SchemaVersion is bumped whenever the persisted layout or the fingerprint
// input changes. Blobs with another version are ignored.
const SchemaVersion = 2

// Indexes holds the base inverted indexes. Every posting list is strictly
// ascending and holds positions into Catalog.Records.
type Indexes struct {
	Category map[string][]int `json:"category"`
	Tag      map[string][]int `json:"tag"`
	Mood     map[string][]int `json:"mood"`
	Token    map[string][]int `json:"token"`
	Slug     map[string]int   `json:"slug"`
}

// AuxIndexes holds the approximate-match buckets derived from Indexes.Token.
type AuxIndexes struct {
	Prefix map[string][]int
	NGram  map[string][]int
}

// Catalog is an immutable, fully indexed snapshot of the upstream sheet.
type Catalog struct {
	Schema      int         `json:"schema"`
	Fingerprint string      `json:"fingerprint"`
	BuiltAt     time.Time   `json:"built_at"`
	Headers     HeaderMap   `json:"headers"`
	Records     []*Record   `json:"records"`
	Categories  []string    `json:"categories"`
	Index       *Indexes    `json:"index,omitempty"`
	Aux         *AuxIndexes `json:"-"`

	detailsMu sync.Mutex
	auxMu     sync.Mutex
	verified  bool // guarded by auxMu
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.Records) }

// Position returns the position of slug, or -1.
func (c *Catalog) Position(slug string) int {
	if c.Index != nil {
		if pos, ok := c.Index.Slug[slug]; ok && pos >= 0 && pos < len(c.Records) {
			return pos
		}
		return -1
	}
	for i, r := range c.Records {
		if r.Slug == slug {
			return i
		}
	}
	return -1
}

// HasValidIndexes reports whether the base and auxiliary indexes passed
// validation and can be used for search. Validation happens once, in Build or
// EnsureAux, since a catalog is immutable afterward.
func (c *Catalog) HasValidIndexes() bool {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()
	return c.verified && c.Index != nil && c.Aux != nil
}

// AuxIndexes returns the approximate-match buckets, or nil.
func (c *Catalog) AuxIndexes() *AuxIndexes {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()
	return c.Aux
}

// Validate checks the base index invariants: every posting list is strictly
// ascending with in-range positions, and the slug index points at records
// carrying that slug.
func (c *Catalog) Validate() error {
	n := len(c.Records)
	if c.Index == nil {
		return shelferrors.StructuralError("catalog has no indexes", nil)
	}
	for name, idx := range map[string]map[string][]int{
		"category": c.Index.Category,
		"tag":      c.Index.Tag,
		"mood":     c.Index.Mood,
		"token":    c.Index.Token,
	} {
		if idx == nil {
			return shelferrors.StructuralError(name+" index missing", nil)
		}
		for key, list := range idx {
			if !validPostings(list, n) {
				return shelferrors.StructuralError(fmt.Sprintf("%s index list %q is not a sorted set of positions", name, key), nil)
			}
		}
	}
	if c.Index.Slug == nil {
		return shelferrors.StructuralError("slug index missing", nil)
	}
	for slug, pos := range c.Index.Slug {
		if pos < 0 || pos >= n || c.Records[pos] == nil || c.Records[pos].Slug != slug {
			return shelferrors.StructuralError(fmt.Sprintf("slug index entry %q out of range", slug), nil)
		}
	}
	for i, r := range c.Records {
		if r == nil {
			return shelferrors.StructuralError(fmt.Sprintf("record %d is nil", i), nil)
		}
	}
	return nil
}

// EnsureAux rebuilds the auxiliary buckets in place when they are missing or
// invalid. It requires valid base indexes.
func (c *Catalog) EnsureAux() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.auxMu.Lock()
	defer c.auxMu.Unlock()
	if c.Aux == nil || !validAux(c.Aux, len(c.Records)) {
		c.Aux = buildAux(c.Index.Token)
	}
	c.verified = true
	return nil
}

func validAux(aux *AuxIndexes, n int) bool {
	if aux.Prefix == nil || aux.NGram == nil {
		return false
	}
	for _, idx := range []map[string][]int{aux.Prefix, aux.NGram} {
		for _, list := range idx {
			if !validPostings(list, n) {
				return false
			}
		}
	}
	return true
}

func validPostings(list []int, n int) bool {
	prev := -1
	for _, p := range list {
		if p <= prev || p >= n {
			return false
		}
		prev = p
	}
	return true
}

// Details returns the detail payload at pos and whether it has been loaded.
func (c *Catalog) Details(pos int) (*Details, bool) {
	if pos < 0 || pos >= len(c.Records) {
		return nil, false
	}
	c.detailsMu.Lock()
	defer c.detailsMu.Unlock()
	r := c.Records[pos]
	return r.Details, r.DetailsLoaded
}

// SetDetails stores a backfilled detail payload on the record at pos.
func (c *Catalog) SetDetails(pos int, d *Details) {
	if pos < 0 || pos >= len(c.Records) || d == nil {
		return
	}
	c.detailsMu.Lock()
	defer c.detailsMu.Unlock()
	c.Records[pos].Details = d
	c.Records[pos].DetailsLoaded = true
}

// Stats summarizes the catalog for the stats command.
type Stats struct {
	Records     int
	Tokens      int
	Categories  int
	Tags        int
	Moods       int
	PrefixKeys  int
	NGramKeys   int
	Fingerprint string
	BuiltAt     time.Time
}

// Stats returns index sizes.
func (c *Catalog) Stats() Stats {
	s := Stats{
		Records:     len(c.Records),
		Categories:  len(c.Categories),
		Fingerprint: c.Fingerprint,
		BuiltAt:     c.BuiltAt,
	}
	if c.Index != nil {
		s.Tokens = len(c.Index.Token)
		s.Tags = len(c.Index.Tag)
		s.Moods = len(c.Index.Mood)
	}
	c.auxMu.Lock()
	if c.Aux != nil {
		s.PrefixKeys = len(c.Aux.Prefix)
		s.NGramKeys = len(c.Aux.NGram)
	}
	c.auxMu.Unlock()
	return s
}

// Encode serializes the catalog for the persistent store. The auxiliary
// buckets are derivable and not included.
func (c *Catalog) Encode() ([]byte, error) {
	c.detailsMu.Lock()
	defer c.detailsMu.Unlock()
	return json.Marshal(c)
}

// Decode parses a persisted catalog and re-derives record shadows. It does
// not validate indexes; callers check Validate and EnsureAux.
func Decode(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, shelferrors.New(shelferrors.ErrCodeCorruptBlob, "decode catalog", err)
	}
	if c.Schema != SchemaVersion {
		return nil, shelferrors.StructuralError(fmt.Sprintf("catalog schema %d, want %d", c.Schema, SchemaVersion), nil)
	}
	for _, r := range c.Records {
		if r != nil {
			r.prepare()
		}
	}
	return &c, nil
}
