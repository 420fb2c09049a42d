package catalog

// sampleRows is a small sheet using a mix of current and legacy headers.
func sampleRows() [][]string {
	return [][]string{
		{"Slug", "Cocktail", "Date Added", "Category", "Level", "Prep Time", "Tags", "Mood", "Image URL", "Thumbnail", "Ingredients", "Method", "Glass", "Garnish"},
		{"", "Whiskey Sour", "2024-03-01", "Sour", "Easy", "5 min", "citrus, whiskey, Citrus", "cozy", "https://drive.google.com/file/d/abc123/view?usp=sharing", "", `["whiskey", {"name":"lemon juice","amount":0.75,"unit":"oz"}]`, "1. Shake\n2) Strain", "Rocks", "Cherry"},
		{"", "Margarita", "3/15/2024", "Sour", "Easy", "5 min", "citrus, tequila", "party", "", "", `not json`, "Shake hard", "Coupe", "Lime wheel"},
		{"", "Old Fashioned", "2023-12-24", "Stirred", "Medium", "3 min", "whiskey, bitters", "cozy, classic", "", "", "", "", "Rocks", ""},
		{"", "Piña Colada", "bogus date", "N/A", "Easy", "10 min", "rum, pineapple", "beach", "", "", "", "", "Hurricane", ""},
		{"", "", "2024-01-01", "Sour", "", "", "", "", "", "", "", "", "", ""},
		{"", "Whiskey Sour", "2022-01-01", "sour", "", "", "egg white", "", "", "", "", "", "", ""},
	}
}
