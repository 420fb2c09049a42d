package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

// DefaultSheetsEndpoint is the public spreadsheet values API.
const DefaultSheetsEndpoint = "https://sheets.googleapis.com"

// maxResponseBytes bounds a single values response.
const maxResponseBytes = 32 << 20

// SheetsConfig configures a SheetsFetcher.
type SheetsConfig struct {
	SpreadsheetID string
	Endpoint      string
	// APIKey is sent as the key query parameter for public sheets.
	APIKey string
	// TokenSource supplies bearer tokens for private sheets. Acquiring and
	// refreshing tokens is the token source's business.
	TokenSource oauth2.TokenSource
	// RequestsPerSecond caps outbound calls. Zero means unlimited.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// SheetsFetcher reads ranges through the spreadsheet values HTTP API.
type SheetsFetcher struct {
	cfg      SheetsConfig
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewSheetsFetcher creates a fetcher. The HTTP client carries the token
// source, so every request is authorized when one is configured.
func NewSheetsFetcher(cfg SheetsConfig) *SheetsFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if cfg.TokenSource != nil {
		client = oauth2.NewClient(context.Background(), cfg.TokenSource)
		client.Timeout = timeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultSheetsEndpoint
	}
	return &SheetsFetcher{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

type valuesResponse struct {
	Range  string              `json:"range"`
	Values [][]json.RawMessage `json:"values"`
}

// FetchRange implements Fetcher.
func (s *SheetsFetcher) FetchRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	if s.cfg.SpreadsheetID == "" {
		return nil, shelferrors.ConfigError("upstream spreadsheet id is not configured", nil).
			WithSuggestion("Set upstream.spreadsheet_id or upstream.csv_path")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, shelferrors.UpstreamError("rate limiter", err)
	}

	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		s.endpoint, url.PathEscape(s.cfg.SpreadsheetID), url.PathEscape(rangeSpec))
	q := url.Values{}
	q.Set("majorDimension", "ROWS")
	q.Set("valueRenderOption", "FORMATTED_VALUE")
	if s.cfg.APIKey != "" {
		q.Set("key", s.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, shelferrors.UpstreamError("create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, shelferrors.New(shelferrors.ErrCodeUpstreamTimeout, "request cancelled", ctx.Err())
		}
		return nil, shelferrors.UpstreamError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, shelferrors.UpstreamError("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, shelferrors.New(shelferrors.ErrCodeUpstreamAuth,
			fmt.Sprintf("spreadsheet API returned %d", resp.StatusCode), nil).
			WithDetail("range", rangeSpec)
	case resp.StatusCode != http.StatusOK:
		return nil, shelferrors.UpstreamError(
			fmt.Sprintf("spreadsheet API returned %d: %s", resp.StatusCode, truncate(string(body), 200)), nil).
			WithDetail("range", rangeSpec)
	}

	var vr valuesResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, shelferrors.UpstreamError("parse response", err)
	}

	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cellText(cell)
		}
		rows[i] = cells
	}
	return rows, nil
}

// cellText renders a JSON cell as text. Strings are unquoted; numbers and
// booleans keep their literal form; null is empty.
func cellText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
