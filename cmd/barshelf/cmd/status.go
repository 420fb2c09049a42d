package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show whether the daemon is running, its process ID and uptime, the
catalog it is serving, and how full its caches are.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newDaemonClient(cfg)
	if !client.IsRunning() {
		if jsonOutput {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), `{"running": false}`)
			return err
		}
		out.Status("⏹️ ", "Daemon is not running")
		out.Status("💡", "Start it with 'barshelf serve'")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return rpcError(err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	cat := status.Service.Catalog
	out.Success("Daemon is running")
	pairs := []string{
		"pid", fmt.Sprintf("%d", status.PID),
		"uptime", status.Uptime,
		"socket", displayPath(cfg.Server.SocketPath),
	}
	if cat.Loaded {
		freshness := "fresh"
		if !cat.Fresh {
			freshness = "stale"
		}
		pairs = append(pairs,
			"catalog", fmt.Sprintf("%s cocktails, %s", humanize.Comma(int64(cat.Records)), freshness),
			"fingerprint", cat.Fingerprint,
			"built", humanize.Time(cat.BuiltAt),
		)
		if !cat.ExpiresAt.IsZero() {
			pairs = append(pairs, "expires", humanize.RelTime(cat.ExpiresAt, time.Now(), "ago", "from now"))
		}
	} else {
		pairs = append(pairs, "catalog", "not loaded")
	}
	pairs = append(pairs,
		"rebuilds", fmt.Sprintf("%d (%d from store)", cat.Rebuilds, cat.StoreLoads),
		"list cache", humanize.Comma(int64(status.Service.ListCached)),
		"item cache", humanize.Comma(int64(status.Service.ItemCached)),
		"rate buckets", humanize.Comma(int64(status.Service.RateBuckets)),
	)
	out.KeyValues(pairs...)
	if cat.LastError != "" {
		out.Warningf("Last rebuild failed %s: %s", humanize.Time(cat.LastErrorAt), cat.LastError)
	}
	return nil
}
