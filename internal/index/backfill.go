package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/barshelf/internal/catalog"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/upstream"
)

// BackfillDetails loads the detail fields of the record at pos from its
// upstream row when the catalog was built without them. Concurrent calls
// for the same record share one fetch.
func (l *Loader) BackfillDetails(ctx context.Context, c *catalog.Catalog, pos int) (*catalog.Details, error) {
	if pos < 0 || pos >= c.Len() {
		return nil, shelferrors.ValidationError(fmt.Sprintf("position %d out of range", pos), nil)
	}
	if d, ok := c.Details(pos); ok {
		return d, nil
	}

	rec := c.Records[pos]
	key := c.Fingerprint + ":" + rec.Slug
	ch := l.flight.DoChan("details:"+key, func() (any, error) {
		if d, ok := c.Details(pos); ok {
			return d, nil
		}
		return l.fetchDetails(context.WithoutCancel(ctx), c, pos)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Details), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) fetchDetails(ctx context.Context, c *catalog.Catalog, pos int) (*catalog.Details, error) {
	rec := c.Records[pos]
	base, err := upstream.ParseRange(l.cfg.Range)
	if err != nil {
		return nil, shelferrors.ConfigError("invalid catalog range", err)
	}
	// Record rows count from the first row of the range, which holds the header.
	sheetRow := max(base.FirstRow, 1) - 1 + rec.Row

	if l.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.FetchTimeout)
		defer cancel()
	}
	rows, err := l.fetcher.FetchRange(ctx, base.Row(sheetRow).String())
	if err != nil {
		l.logger.Warn("details_backfill_failed",
			slog.String("slug", rec.Slug),
			slog.Int("row", sheetRow),
			slog.String("error", err.Error()))
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shelferrors.NotFoundError("upstream row is empty").WithDetail("slug", rec.Slug)
	}

	row := rows[0]
	// The sheet may have been edited since the build; refuse a row that no
	// longer belongs to this record.
	if name := c.Headers.Cell(row, catalog.FieldName); name != "" && !strings.EqualFold(strings.TrimSpace(name), rec.Name) {
		return nil, shelferrors.NotFoundError("upstream row moved").
			WithDetail("slug", rec.Slug).
			WithSuggestion("Rebuild the catalog with 'barshelf build'")
	}

	d := catalog.ParseDetails(c.Headers, row)
	c.SetDetails(pos, d)
	l.logger.Debug("details_backfilled", slog.String("slug", rec.Slug), slog.Int("row", sheetRow))
	return d, nil
}
