package upstream

import (
	"context"
	"encoding/csv"
	"errors"
	"os"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

// CSVFetcher serves ranges from a local CSV export of the sheet. It is the
// offline source for development; the file is re-read on every fetch so
// edits show up on the next rebuild.
type CSVFetcher struct {
	path string
}

// NewCSVFetcher creates a fetcher for path.
func NewCSVFetcher(path string) *CSVFetcher {
	return &CSVFetcher{path: path}
}

// Path returns the CSV file path.
func (c *CSVFetcher) Path() string { return c.path }

// FetchRange implements Fetcher. Only the row bounds of rangeSpec apply;
// the sheet name and columns are ignored.
func (c *CSVFetcher) FetchRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, shelferrors.UpstreamError("fetch cancelled", err)
	}
	r, err := ParseRange(rangeSpec)
	if err != nil {
		return nil, shelferrors.ValidationError("invalid range", err)
	}

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, shelferrors.UpstreamError("csv source not found", err).WithDetail("path", c.path)
		}
		return nil, shelferrors.UpstreamError("open csv source", err).WithDetail("path", c.path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	all, err := reader.ReadAll()
	if err != nil {
		return nil, shelferrors.UpstreamError("parse csv source", err).WithDetail("path", c.path)
	}

	first := max(r.FirstRow, 1)
	last := len(all)
	if r.LastRow > 0 && r.LastRow < last {
		last = r.LastRow
	}
	if first > last {
		return [][]string{}, nil
	}
	return all[first-1 : last], nil
}
