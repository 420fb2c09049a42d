package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		a1   string
		want Range
	}{
		{"Cocktails!A1:N", Range{Sheet: "Cocktails", FirstCol: "A", FirstRow: 1, LastCol: "N"}},
		{"'Bar Menu'!A7:N7", Range{Sheet: "Bar Menu", FirstCol: "A", FirstRow: 7, LastCol: "N", LastRow: 7}},
		{"a2:c", Range{FirstCol: "A", FirstRow: 2, LastCol: "C"}},
		{"Sheet1!", Range{Sheet: "Sheet1"}},
	}
	for _, tt := range tests {
		t.Run(tt.a1, func(t *testing.T) {
			got, err := ParseRange(tt.a1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRange("A1:$$")
	assert.Error(t, err)
	_, err = ParseRange("A0:B")
	assert.Error(t, err)
}

func TestRange_RowAndString(t *testing.T) {
	r, err := ParseRange("'Bar Menu'!A1:N")
	require.NoError(t, err)

	assert.Equal(t, "'Bar Menu'!A1:N", r.String())
	assert.Equal(t, "'Bar Menu'!A12:N12", r.Row(12).String())
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", ColumnName(0))
	assert.Equal(t, "N", ColumnName(13))
	assert.Equal(t, "Z", ColumnName(25))
	assert.Equal(t, "AA", ColumnName(26))
	assert.Equal(t, "AZ", ColumnName(51))
}

func newTestSheets(t *testing.T, handler http.HandlerFunc, cfg SheetsConfig) *SheetsFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.Endpoint = server.URL
	if cfg.SpreadsheetID == "" {
		cfg.SpreadsheetID = "sheet-123"
	}
	f := NewSheetsFetcher(cfg)
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	return f
}

// TS01: Values are fetched, typed cells are rendered as text
func TestSheetsFetcher_FetchRange(t *testing.T) {
	var gotPath, gotAuth, gotKey string
	f := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.URL.Query().Get("key")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":  "Cocktails!A1:C3",
			"values": [][]any{{"name", "date", "abv"}, {"Negroni", "2024-01-01", 24.5}, {"Tonic", nil, true}},
		})
	}, SheetsConfig{
		APIKey:      "k1",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
	})

	rows, err := f.FetchRange(context.Background(), "Cocktails!A1:C")

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "date", "abv"}, {"Negroni", "2024-01-01", "24.5"}, {"Tonic", "", "true"}}, rows)
	assert.Equal(t, "/v4/spreadsheets/sheet-123/values/Cocktails!A1:C", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "k1", gotKey)
}

func TestSheetsFetcher_ErrorsAreUpstreamErrors(t *testing.T) {
	f := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusBadGateway)
	}, SheetsConfig{})

	_, err := f.FetchRange(context.Background(), "A1:B")

	require.Error(t, err)
	assert.Equal(t, shelferrors.ErrCodeUpstreamFetch, shelferrors.GetCode(err))
	assert.True(t, shelferrors.IsRetryable(err))
}

func TestSheetsFetcher_AuthFailure(t *testing.T) {
	f := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, SheetsConfig{})

	_, err := f.FetchRange(context.Background(), "A1:B")

	assert.Equal(t, shelferrors.ErrCodeUpstreamAuth, shelferrors.GetCode(err))
}

func TestSheetsFetcher_NoRetry(t *testing.T) {
	calls := 0
	f := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}, SheetsConfig{})

	_, err := f.FetchRange(context.Background(), "A1:B")

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSheetsFetcher_MissingSpreadsheetID(t *testing.T) {
	f := NewSheetsFetcher(SheetsConfig{})

	_, err := f.FetchRange(context.Background(), "A1:B")

	assert.Equal(t, shelferrors.ErrCodeConfigInvalid, shelferrors.GetCode(err))
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cocktails.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestCSVFetcher_FetchRange(t *testing.T) {
	path := writeCSV(t,
		"name,tags",
		`Negroni,"bitter, classic"`,
		"Paloma,citrus",
		"Short",
	)
	f := NewCSVFetcher(path)
	ctx := context.Background()

	all, err := f.FetchRange(ctx, "Cocktails!A1:N")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, []string{"Negroni", "bitter, classic"}, all[1])
	assert.Equal(t, []string{"Short"}, all[3])

	row, err := f.FetchRange(ctx, "Cocktails!A3:N3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Paloma", "citrus"}}, row)

	past, err := f.FetchRange(ctx, "A9:N9")
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestCSVFetcher_MissingFile(t *testing.T) {
	f := NewCSVFetcher(filepath.Join(t.TempDir(), "nope.csv"))

	_, err := f.FetchRange(context.Background(), "A1:N")

	assert.Equal(t, shelferrors.ErrCodeUpstreamFetch, shelferrors.GetCode(err))
}
