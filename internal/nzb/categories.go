package nzb

// newznabCategories maps the numeric category IDs indexers embed in an
// NZB's <meta type="category"> tag to the human-readable names Admission
// matches against config.CategoryConfig.Name.
var newznabCategories = map[string]string{
	"1000": "Console",
	"2000": "Movies",
	"2030": "Movies > SD",
	"2040": "Movies > HD",
	"2045": "Movies > UHD",
	"3000": "Audio",
	"4000": "PC",
	"5000": "TV",
	"5030": "TV > SD",
	"5040": "TV > HD",
	"5045": "TV > UHD",
	"6000": "XXX",
	"7000": "Other",
}

// GetCategoryName normalizes a Release's RawCategory into the name used
// for category-destination routing. Admission only calls this when the
// admission source (watch folder, RSS feed, manual add) didn't already
// supply an explicit category, so an indexer-assigned one still applies.
func GetCategoryName(id string) string {
	if name, ok := newznabCategories[id]; ok {
		return name
	}
	return "Other"
}
