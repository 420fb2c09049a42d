package catalog

import "strings"

// Field is a logical record column.
type Field string

const (
	FieldSlug         Field = "slug"
	FieldName         Field = "name"
	FieldDate         Field = "date"
	FieldCategory     Field = "category"
	FieldDifficulty   Field = "difficulty"
	FieldPrepTime     Field = "prep_time"
	FieldTags         Field = "tags"
	FieldMoods        Field = "moods"
	FieldImage        Field = "image"
	FieldThumbnail    Field = "thumbnail"
	FieldIngredients  Field = "ingredients"
	FieldInstructions Field = "instructions"
	FieldGlassware    Field = "glassware"
	FieldGarnish      Field = "garnish"
)

// fieldAliases lists the accepted header names per field, current name first.
// Sheets written by older editors still use the second spelling.
var fieldAliases = []struct {
	field Field
	names [2]string
}{
	{FieldSlug, [2]string{"slug", "id"}},
	{FieldName, [2]string{"name", "cocktail"}},
	{FieldDate, [2]string{"date", "date added"}},
	{FieldCategory, [2]string{"category", "type"}},
	{FieldDifficulty, [2]string{"difficulty", "level"}},
	{FieldPrepTime, [2]string{"prep time", "time"}},
	{FieldTags, [2]string{"tags", "keywords"}},
	{FieldMoods, [2]string{"moods", "mood"}},
	{FieldImage, [2]string{"image", "image url"}},
	{FieldThumbnail, [2]string{"thumbnail", "thumb"}},
	{FieldIngredients, [2]string{"ingredients", "ingredients json"}},
	{FieldInstructions, [2]string{"instructions", "method"}},
	{FieldGlassware, [2]string{"glassware", "glass"}},
	{FieldGarnish, [2]string{"garnish", "garnishes"}},
}

// HeaderMap maps each recognized field to its column index.
type HeaderMap map[Field]int

// MapHeaders resolves the header row. When both the current and the legacy
// spelling of a field are present, the current one wins. Unknown columns are
// ignored.
func MapHeaders(header []string) HeaderMap {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	m := make(HeaderMap, len(fieldAliases))
	for _, fa := range fieldAliases {
		for _, name := range fa.names {
			if col, ok := cols[NormalizeHeader(name)]; ok {
				m[fa.field] = col
				break
			}
		}
	}
	return m
}

// Cell returns the trimmed value of field in row, or "" when the field is
// unmapped or the row is short.
func (h HeaderMap) Cell(row []string, f Field) string {
	col, ok := h[f]
	if !ok || col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
