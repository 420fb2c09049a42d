// Package cmd provides the CLI commands for barshelf.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/barshelf/internal/logging"
	"github.com/Aman-CERP/barshelf/internal/profiling"
	"github.com/Aman-CERP/barshelf/pkg/version"
)

// Global flags
var (
	configFile     string
	debugMode      bool
	loggingCleanup func()

	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the barshelf CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "barshelf",
		Short: "Cocktail catalog served from a spreadsheet",
		Long: `barshelf reads a cocktail spreadsheet, builds a searchable catalog with
inverted indexes, and serves paged listings and single items with layered
caching and per-identity rate limiting.

Run 'barshelf serve' to start the daemon, then query it with 'barshelf list'
and 'barshelf item'. Without a running daemon, queries are answered
in-process.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("barshelf version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: user config + ./barshelf.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startLoggingAndProfiling
	cmd.PersistentPostRunE = stopLoggingAndProfiling

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newItemCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLoggingAndProfiling installs the logger and starts any requested
// profiles. Without --debug only warnings reach stderr, so command output
// stays readable.
func startLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cleanup, err := logging.Install(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Short()))
	}

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = s
	}
	return nil
}

func stopLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	if profileSession != nil {
		err := profileSession.Stop()
		profileSession = nil
		if err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
