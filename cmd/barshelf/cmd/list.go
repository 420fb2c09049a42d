package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/output"
	"github.com/Aman-CERP/barshelf/internal/search"
	"github.com/Aman-CERP/barshelf/internal/service"
)

type listOptions struct {
	query      search.Query
	page       int
	pageSize   int
	identity   string
	jsonOutput bool
}

func newListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list [text]",
		Short: "List cocktails matching filters",
		Long: `List one page of cocktails, newest first.

Free text matches names, categories, tags and moods; partial words fall
back to prefix matching. All given filters must match.`,
		Example: `  barshelf list
  barshelf list citrus
  barshelf list --category sour --mood summer
  barshelf list --tag gin --page 2 --page-size 10`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.query.Text = strings.Join(args, " ")
			return runList(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.query.Category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&opts.query.Tag, "tag", "", "Filter by tag")
	cmd.Flags().StringVar(&opts.query.Mood, "mood", "", "Filter by mood")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Page number (1-based)")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Items per page (default from config)")
	cmd.Flags().StringVar(&opts.identity, "identity", "", "Caller identity for rate limiting (daemon only)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, opts listOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params := service.ListParams{Query: opts.query, Page: opts.page, PageSize: opts.pageSize}

	var page *service.ListPage
	client := newDaemonClient(cfg)
	if client.IsRunning() {
		client.SetIdentity(opts.identity)
		page, err = client.List(ctx, params)
		err = rpcError(err)
	} else {
		var a *app
		a, err = newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
		page, err = a.svc.ListPage(ctx, params)
	}
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	printPage(output.New(cmd.OutOrStdout()), page)
	return nil
}

func printPage(out *output.Writer, page *service.ListPage) {
	if page.Total == 0 {
		out.Status("🔍", "No cocktails match")
		return
	}
	pages := 1
	if page.PageSize > 0 {
		pages = (page.Total + page.PageSize - 1) / page.PageSize
	}
	out.Header(fmt.Sprintf("%d cocktails · page %d of %d", page.Total, page.Page, pages))
	for _, s := range page.Items {
		line := fmt.Sprintf("%-28s %s", s.Name, out.Dim(s.Category))
		if s.Date != "" {
			line += " " + out.Dim(s.Date)
		}
		out.Status("•", line)
		out.Status("", "  "+out.Tags(append(append([]string{}, s.Tags...), s.Moods...))+"  "+out.Dim(s.Slug))
	}
	if page.HasMore {
		out.Newline()
		out.Statusf("💡", "Next page: --page %d", page.Page+1)
	}
}
