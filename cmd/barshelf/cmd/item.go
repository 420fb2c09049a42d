package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/output"
	"github.com/Aman-CERP/barshelf/internal/service"
)

func newItemCmd() *cobra.Command {
	var (
		identity   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "item <slug>",
		Short: "Show one cocktail with its recipe",
		Long: `Show one cocktail by slug, including ingredients and instructions.
A cocktail name is accepted too and is slugified.`,
		Example: `  barshelf item negroni
  barshelf item "Paper Plane" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItem(cmd.Context(), cmd, strings.Join(args, " "), identity, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Caller identity for rate limiting (daemon only)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runItem(ctx context.Context, cmd *cobra.Command, slug, identity string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var item *service.Item
	client := newDaemonClient(cfg)
	if client.IsRunning() {
		client.SetIdentity(identity)
		item, err = client.Item(ctx, slug)
		err = rpcError(err)
	} else {
		var a *app
		a, err = newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
		item, err = a.svc.GetItem(ctx, slug)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	}
	printItem(output.New(cmd.OutOrStdout()), item)
	return nil
}

func printItem(out *output.Writer, item *service.Item) {
	out.Header(item.Name)
	pairs := []string{"category", item.Category}
	if item.Difficulty != "" {
		pairs = append(pairs, "difficulty", item.Difficulty)
	}
	if item.PrepTime != "" {
		pairs = append(pairs, "prep time", item.PrepTime)
	}
	if item.Glassware != "" {
		pairs = append(pairs, "glass", item.Glassware)
	}
	if item.Garnish != "" {
		pairs = append(pairs, "garnish", item.Garnish)
	}
	pairs = append(pairs, "tags", out.Tags(item.Tags), "moods", out.Tags(item.Moods))
	if item.Date != "" {
		pairs = append(pairs, "added", item.Date)
	}
	out.KeyValues(pairs...)

	if len(item.Ingredients) > 0 {
		var sb strings.Builder
		for i, ing := range item.Ingredients {
			if i > 0 {
				sb.WriteByte('\n')
			}
			amount := strings.TrimSpace(ing.Amount + " " + ing.Unit)
			if amount != "" {
				fmt.Fprintf(&sb, "%s %s", amount, ing.Name)
			} else {
				sb.WriteString(ing.Name)
			}
			if ing.Note != "" {
				fmt.Fprintf(&sb, " (%s)", ing.Note)
			}
		}
		out.Panel(sb.String())
	}
	for i, step := range item.Instructions {
		out.Statusf(fmt.Sprintf("%d.", i+1), "%s", step)
	}
}
