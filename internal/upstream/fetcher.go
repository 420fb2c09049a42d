// Package upstream reads raw rows from the catalog's source spreadsheet.
//
// Fetchers never retry. A failure surfaces as an upstream error and the
// caller decides what to do with it.
package upstream

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fetcher reads a rectangular range of cells. Rows may be ragged.
type Fetcher interface {
	FetchRange(ctx context.Context, rangeSpec string) ([][]string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rangeSpec string) ([][]string, error)

// FetchRange implements Fetcher.
func (f FetcherFunc) FetchRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	return f(ctx, rangeSpec)
}

// Range is a parsed A1-style range such as "Cocktails!A1:N" or
// "Cocktails!A7:N7". Rows are 1-based; zero means unbounded.
type Range struct {
	Sheet    string
	FirstCol string
	FirstRow int
	LastCol  string
	LastRow  int
}

var cellRef = regexp.MustCompile(`^([A-Za-z]*)(\d*)$`)

// ParseRange parses an A1 range. The sheet name may be quoted.
func ParseRange(a1 string) (Range, error) {
	var r Range
	cells := a1
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		r.Sheet = strings.ReplaceAll(strings.Trim(a1[:i], "'"), "''", "'")
		cells = a1[i+1:]
	}
	if cells == "" {
		return r, nil
	}

	first, last, _ := strings.Cut(cells, ":")
	var err error
	if r.FirstCol, r.FirstRow, err = parseCell(first); err != nil {
		return Range{}, fmt.Errorf("parse range %q: %w", a1, err)
	}
	if last != "" {
		if r.LastCol, r.LastRow, err = parseCell(last); err != nil {
			return Range{}, fmt.Errorf("parse range %q: %w", a1, err)
		}
	} else {
		r.LastCol, r.LastRow = r.FirstCol, r.FirstRow
	}
	return r, nil
}

func parseCell(s string) (string, int, error) {
	m := cellRef.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", 0, fmt.Errorf("bad cell reference %q", s)
	}
	row := 0
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("bad row in %q", s)
		}
		row = n
	}
	return strings.ToUpper(m[1]), row, nil
}

// String renders r back to A1 notation.
func (r Range) String() string {
	var sb strings.Builder
	if r.Sheet != "" {
		if strings.ContainsAny(r.Sheet, " '!") {
			sb.WriteString("'" + strings.ReplaceAll(r.Sheet, "'", "''") + "'")
		} else {
			sb.WriteString(r.Sheet)
		}
		sb.WriteByte('!')
	}
	sb.WriteString(r.FirstCol)
	if r.FirstRow > 0 {
		sb.WriteString(strconv.Itoa(r.FirstRow))
	}
	sb.WriteByte(':')
	sb.WriteString(r.LastCol)
	if r.LastRow > 0 {
		sb.WriteString(strconv.Itoa(r.LastRow))
	}
	return sb.String()
}

// Row narrows r to the single sheet row n, keeping the columns.
func (r Range) Row(n int) Range {
	r.FirstRow, r.LastRow = n, n
	return r
}

// ColumnName converts a 0-based column index to letters (0 -> A, 26 -> AA).
func ColumnName(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}
