package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/barshelf/configs"
	"github.com/Aman-CERP/barshelf/internal/config"
	"github.com/Aman-CERP/barshelf/internal/output"
)

// projectConfigName is the project config written by 'config init --project'.
const projectConfigName = "barshelf.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage barshelf configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config ($XDG_CONFIG_HOME/barshelf/config.yaml)
  3. Project config (./barshelf.yaml)
  4. Environment variables (BARSHELF_*)`,
		Example: `  # Create user config from template
  barshelf config init

  # Create ./barshelf.yaml instead
  barshelf config init --project

  # Show effective configuration
  barshelf config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write the commented configuration template to the user config path,
or to ./barshelf.yaml with --project.

An existing file is left alone unless --force is given, in which case it
is backed up first. The three most recent backups are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if project {
				path = projectConfigName
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&project, "project", false, "Write ./"+projectConfigName+" instead of the user config")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", displayPath(path))
			out.Status("💡", "Use --force to replace it with the template (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path, time.Now())
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		out.Statusf("💾", "Backup: %s", displayPath(backup))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", displayPath(path))
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set upstream.spreadsheet_id (or upstream.csv_path)")
	out.Status("", "  2. Run 'barshelf config show' to verify")
	out.Status("", "  3. Run 'barshelf build'")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var cfg *config.Config
	switch source {
	case "merged":
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	case "defaults":
		cfg = config.NewConfig()
	default:
		return fmt.Errorf("unknown source %q (use merged or defaults)", source)
	}

	masked := *cfg
	masked.Upstream.APIKey = mask(masked.Upstream.APIKey)
	masked.Upstream.Token = mask(masked.Upstream.Token)
	masked.Store.Valkey.Password = mask(masked.Store.Valkey.Password)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(masked)
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
