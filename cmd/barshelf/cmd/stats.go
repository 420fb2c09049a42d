package cmd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and index statistics",
		Long: `Load the catalog (from memory, the store, or upstream, in that order)
and report its size: records, distinct tokens and facets, auxiliary
prefix and n-gram buckets, and the size of the persisted blob.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type statsResult struct {
	Records     int    `json:"records"`
	Tokens      int    `json:"tokens"`
	Categories  int    `json:"categories"`
	Tags        int    `json:"tags"`
	Moods       int    `json:"moods"`
	PrefixKeys  int    `json:"prefix_keys"`
	NGramKeys   int    `json:"ngram_keys"`
	BlobBytes   int    `json:"blob_bytes"`
	Fingerprint string `json:"fingerprint"`
	BuiltAt     string `json:"built_at"`
	Store       string `json:"store"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	c, err := a.svc.GetCatalog(ctx, false)
	if err != nil {
		return err
	}
	blob, err := c.Encode()
	if err != nil {
		return err
	}

	st := c.Stats()
	res := statsResult{
		Records:     st.Records,
		Tokens:      st.Tokens,
		Categories:  st.Categories,
		Tags:        st.Tags,
		Moods:       st.Moods,
		PrefixKeys:  st.PrefixKeys,
		NGramKeys:   st.NGramKeys,
		BlobBytes:   len(blob),
		Fingerprint: st.Fingerprint,
		BuiltAt:     st.BuiltAt.Format(time.RFC3339),
		Store:       cfg.Store.Backend,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Catalog")
	out.KeyValues(
		"records", humanize.Comma(int64(res.Records)),
		"tokens", humanize.Comma(int64(res.Tokens)),
		"categories", humanize.Comma(int64(res.Categories)),
		"tags", humanize.Comma(int64(res.Tags)),
		"moods", humanize.Comma(int64(res.Moods)),
		"prefix keys", humanize.Comma(int64(res.PrefixKeys)),
		"n-gram keys", humanize.Comma(int64(res.NGramKeys)),
		"blob size", humanize.Bytes(uint64(res.BlobBytes)),
		"built", humanize.Time(st.BuiltAt),
		"fingerprint", res.Fingerprint,
		"store", res.Store,
	)
	return nil
}
