package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func buildSample(t *testing.T, keep bool) *Catalog {
	t.Helper()
	c := Build(sampleRows(), Options{KeepDetails: keep, Now: fixedNow})
	require.NotNil(t, c)
	return c
}

func slugs(c *Catalog) []string {
	out := make([]string, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Slug
	}
	return out
}

// ============================================================================
// TS01: Row parsing
// ============================================================================

func TestBuild_SkipsRowsWithoutIdentifier(t *testing.T) {
	c := buildSample(t, false)

	// Given: 6 data rows, one with neither slug nor name
	// Then: 5 records survive
	assert.Equal(t, 5, c.Len())
}

func TestBuild_DuplicateSlugsGetSuffixInRowOrder(t *testing.T) {
	c := buildSample(t, false)

	first := c.Records[c.Position("whiskey-sour")]
	second := c.Records[c.Position("whiskey-sour-2")]

	assert.Equal(t, 2, first.Row)
	assert.Equal(t, 7, second.Row)
}

func TestBuild_LegacyHeadersResolve(t *testing.T) {
	c := buildSample(t, false)
	r := c.Records[c.Position("old-fashioned")]

	assert.Equal(t, "Old Fashioned", r.Name)
	assert.Equal(t, "2023-12-24", r.Date)
	assert.Equal(t, "Medium", r.Difficulty)
	assert.Equal(t, []string{"cozy", "classic"}, r.Moods)
}

func TestBuild_MultiValueDedupKeepsFirstSpelling(t *testing.T) {
	c := buildSample(t, false)
	r := c.Records[c.Position("whiskey-sour")]

	assert.Equal(t, []string{"citrus", "whiskey"}, r.Tags)
}

func TestBuild_DiacriticsFoldedInSlugAndTokens(t *testing.T) {
	c := buildSample(t, false)
	pos := c.Position("pina-colada")
	require.GreaterOrEqual(t, pos, 0)

	assert.Contains(t, c.Records[pos].Tokens(), "pina")
	assert.Contains(t, c.Index.Token["pina"], pos)
}

func TestBuild_DriveURLsRewritten(t *testing.T) {
	c := buildSample(t, false)
	r := c.Records[c.Position("whiskey-sour")]

	assert.Equal(t, "https://drive.google.com/uc?export=view&id=abc123", r.Image)
	assert.Equal(t, "https://drive.google.com/thumbnail?id=abc123&sz=w400", r.Thumbnail)
}

func TestBuild_DetailsDroppedByDefault(t *testing.T) {
	c := buildSample(t, false)
	d, loaded := c.Details(c.Position("whiskey-sour"))

	assert.Nil(t, d)
	assert.False(t, loaded)
}

func TestBuild_KeepDetails(t *testing.T) {
	c := buildSample(t, true)
	d, loaded := c.Details(c.Position("whiskey-sour"))

	require.True(t, loaded)
	assert.Equal(t, []Ingredient{{Name: "whiskey"}, {Name: "lemon juice", Amount: "0.75", Unit: "oz"}}, d.Ingredients)
	assert.Equal(t, []string{"Shake", "Strain"}, d.Instructions)
	assert.Equal(t, "Rocks", d.Glassware)

	d, _ = c.Details(c.Position("margarita"))
	assert.Empty(t, d.Ingredients)
}

// ============================================================================
// TS02: Ordering and index invariants
// ============================================================================

func TestBuild_OrdersByDateDescThenSlug(t *testing.T) {
	c := buildSample(t, false)

	assert.Equal(t, []string{"margarita", "whiskey-sour", "old-fashioned", "whiskey-sour-2", "pina-colada"}, slugs(c))
}

func TestBuild_IndexInvariantHolds(t *testing.T) {
	c := buildSample(t, false)

	require.NoError(t, c.Validate())
	assert.True(t, c.HasValidIndexes())
	for _, idx := range []map[string][]int{c.Index.Category, c.Index.Tag, c.Index.Mood, c.Index.Token, c.Aux.Prefix, c.Aux.NGram} {
		for key, list := range idx {
			assert.True(t, validPostings(list, c.Len()), "list %q", key)
		}
	}
	for slug, pos := range c.Index.Slug {
		assert.Equal(t, slug, c.Records[pos].Slug)
	}
}

func TestBuild_CategoryIndexIsCaseInsensitive(t *testing.T) {
	c := buildSample(t, false)

	// "Sour" and "sour" share one posting list
	assert.Len(t, c.Index.Category["sour"], 3)
}

func TestBuild_AuxBuckets(t *testing.T) {
	c := buildSample(t, false)
	pos := c.Position("margarita")

	assert.Contains(t, c.Aux.Prefix["w"], c.Position("whiskey-sour"))
	assert.Contains(t, c.Aux.Prefix["teq"], pos)
	assert.Contains(t, c.Aux.NGram["qui"], pos)
	assert.NotContains(t, c.Aux.Prefix, "tequ")
}

// ============================================================================
// TS03: Categories
// ============================================================================

func TestBuild_PlaceholderCategoriesExcluded(t *testing.T) {
	rows := [][]string{
		{"name", "category"},
		{"A", "Sour"},
		{"B", "N/A"},
		{"C", "uncategorized"},
		{"D", ""},
		{"E", "misc"},
		{"F", "sour"},
		{"G", "Highball"},
	}
	c := Build(rows, Options{})

	assert.Equal(t, []string{"Highball", "Sour"}, c.Categories)
	// N/A still indexed
	assert.Len(t, c.Index.Category["na"], 1)
}

func TestBuild_ListedCategoriesReachEveryRecord(t *testing.T) {
	// Given: spellings that differ only in punctuation, accents and case
	rows := [][]string{
		{"name", "category"},
		{"Paloma Lite", "Low-ABV"},
		{"Spritz", "Low ABV"},
		{"Cafe Tonic", "Café"},
		{"Espresso Martini", "cafe"},
		{"Mystery", "TBD"},
	}

	// When: the catalog is built
	c := Build(rows, Options{})

	// Then: each spelling group lists once, first spelling kept
	assert.Equal(t, []string{"Café", "Low-ABV"}, c.Categories)

	// And: every record with a real category is reachable from a listed one
	reachable := make(map[int]bool)
	for _, listed := range c.Categories {
		for _, pos := range c.Index.Category[CategoryKey(listed)] {
			reachable[pos] = true
		}
	}
	for pos, r := range c.Records {
		if _, placeholder := placeholderCategories[r.CategoryKey()]; placeholder {
			continue
		}
		assert.True(t, reachable[pos], "record %q under %q is not reachable", r.Slug, r.Category)
	}
}

// ============================================================================
// TS04: Fingerprint
// ============================================================================

func TestFingerprint_StableForSameInput(t *testing.T) {
	a := buildSample(t, false)
	b := Build(sampleRows(), Options{Now: func() time.Time { return fixedNow().Add(time.Hour) }})

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.Fingerprint, 64)
}

func TestFingerprint_ChangesWithVisibleField(t *testing.T) {
	rows := sampleRows()
	a := Build(rows, Options{})
	rows[2][3] = "Tiki"
	b := Build(rows, Options{})

	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestFingerprint_IgnoresDetails(t *testing.T) {
	rows := sampleRows()
	a := Build(rows, Options{})
	rows[1][11] = "Stir forever"
	b := Build(rows, Options{})

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestBuild_EmptySheetIsValid(t *testing.T) {
	for _, rows := range [][][]string{nil, {{"name", "date"}}} {
		c := Build(rows, Options{})

		assert.Equal(t, 0, c.Len())
		assert.NoError(t, c.Validate())
		assert.Equal(t, Fingerprint(nil), c.Fingerprint)
		assert.NotEmpty(t, c.Fingerprint)
	}
}

// ============================================================================
// TS05: Persistence round trip and structural checks
// ============================================================================

func TestEncodeDecode_RoundTripRebuildsAux(t *testing.T) {
	c := buildSample(t, false)

	data, err := c.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, got.Aux)
	assert.False(t, got.HasValidIndexes())

	require.NoError(t, got.EnsureAux())
	assert.True(t, got.HasValidIndexes())
	assert.Equal(t, c.Fingerprint, got.Fingerprint)
	assert.Equal(t, c.Aux.NGram, got.Aux.NGram)
	assert.Equal(t, c.Records[0].Tokens(), got.Records[0].Tokens())
}

func TestDecode_RejectsOtherSchema(t *testing.T) {
	_, err := Decode([]byte(`{"schema":99}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestValidate_DetectsUnsortedPostings(t *testing.T) {
	c := buildSample(t, false)
	c.Index.Tag["citrus"] = []int{1, 0}

	assert.Error(t, c.Validate())
	assert.Error(t, c.EnsureAux())
}

func TestValidate_DetectsOutOfRangeSlug(t *testing.T) {
	c := buildSample(t, false)
	c.Index.Slug["ghost"] = 99

	assert.Error(t, c.Validate())
}

func TestValidate_MissingIndexes(t *testing.T) {
	c := buildSample(t, false)
	c.Index = nil

	assert.Error(t, c.Validate())
	assert.False(t, c.HasValidIndexes())
}

func TestSetDetails_Backfill(t *testing.T) {
	c := buildSample(t, false)
	pos := c.Position("margarita")

	c.SetDetails(pos, &Details{Glassware: "Coupe"})

	d, loaded := c.Details(pos)
	assert.True(t, loaded)
	assert.Equal(t, "Coupe", d.Glassware)
}
