package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// visibleFields is the canonical per-record fingerprint input. Field order is
// fixed by the struct; details and derived data are excluded.
type visibleFields struct {
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	PrepTime   string   `json:"prep_time"`
	Tags       []string `json:"tags"`
	Moods      []string `json:"moods"`
	Image      string   `json:"image"`
	Thumbnail  string   `json:"thumbnail"`
}

// Fingerprint hashes the visible content of records, in order. Equal input
// always yields the same hex digest; any visible change yields a new one.
func Fingerprint(records []*Record) string {
	h := sha256.New()
	if len(records) == 0 {
		fmt.Fprintf(h, "barshelf-catalog/v%d\nempty\n", SchemaVersion)
		return hex.EncodeToString(h.Sum(nil))
	}

	fmt.Fprintf(h, "barshelf-catalog/v%d\n%d\n", SchemaVersion, len(records))
	enc := json.NewEncoder(h)
	for _, r := range records {
		v := visibleFields{
			Slug:       r.Slug,
			Name:       r.Name,
			Date:       r.Date,
			Category:   r.Category,
			Difficulty: r.Difficulty,
			PrepTime:   r.PrepTime,
			Tags:       nonNil(r.Tags),
			Moods:      nonNil(r.Moods),
			Image:      r.Image,
			Thumbnail:  r.Thumbnail,
		}
		// Encoder writes one line per value; struct fields cannot fail.
		_ = enc.Encode(v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
