package service

import (
	"github.com/Aman-CERP/barshelf/internal/catalog"
	"github.com/Aman-CERP/barshelf/internal/search"
)

// ListParams selects one page of the catalog.
type ListParams struct {
	search.Query
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
	// KnownFingerprint is the fingerprint the caller already holds. A match
	// on an unfiltered first page yields a not-modified page.
	KnownFingerprint string `json:"known_fingerprint,omitempty"`
}

// Summary is a record as it appears in a list.
type Summary struct {
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
}

// ListPage is one page of results.
type ListPage struct {
	Fingerprint string    `json:"fingerprint"`
	Total       int       `json:"total"`
	Page        int       `json:"page"`
	PageSize    int       `json:"page_size"`
	HasMore     bool      `json:"has_more"`
	Items       []Summary `json:"items,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	NotModified bool      `json:"not_modified,omitempty"`
}

// Item is a single record with its details.
type Item struct {
	Summary
	Fingerprint string `json:"fingerprint"`
	catalog.Details
}

func summarize(r *catalog.Record) Summary {
	return Summary{
		Slug:       r.Slug,
		Name:       r.Name,
		Date:       r.Date,
		Category:   r.Category,
		Difficulty: r.Difficulty,
		PrepTime:   r.PrepTime,
		Tags:       r.Tags,
		Moods:      r.Moods,
		Image:      r.Image,
		Thumbnail:  r.Thumbnail,
	}
}
