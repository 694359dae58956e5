package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagEnvFile    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup-onedrive",
		Short:   "Archive OneDrive pictures and videos to local disk",
		Version: version,
		// Errors are printed by exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "file with KEY=VALUE environment settings")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newDedupeCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

// loadConfig loads the .env file, then resolves the effective configuration
// from the four-layer override chain into resolvedCfg.
func loadConfig(cmd *cobra.Command) error {
	if flagEnvFile != "" {
		if err := config.LoadDotEnv(flagEnvFile); err != nil {
			return err
		}
	}

	cli := cliOverrides(cmd)
	cli.ConfigPath = flagConfigPath

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// cliOverrides collects the backup flags the user explicitly set. Other
// commands contribute nothing.
func cliOverrides(cmd *cobra.Command) config.CLIOverrides {
	var cli config.CLIOverrides

	if cmd.Name() != "backup" {
		return cli
	}

	flags := cmd.Flags()

	if flags.Changed("workers") {
		cli.Workers = &flagWorkers
	}

	if flags.Changed("max-retries") {
		cli.MaxRetries = &flagMaxRetries
	}

	if flags.Changed("bandwidth-limit") {
		cli.BandwidthLimit = &flagBandwidthLimit
	}

	if flags.Changed("remote-folder") {
		cli.RemoteFolder = &flagRemoteFolder
	}

	if flags.Changed("pictures-subdir") {
		cli.PicturesSubdir = &flagPicturesSubdir
	}

	if flags.Changed("videos-subdir") {
		cli.VideosSubdir = &flagVideosSubdir
	}

	if flags.Changed("output-dir-template") {
		cli.OutputTemplate = &flagOutputTemplate
	}

	return cli
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	cfg := config.DefaultConfig().Logging
	if resolvedCfg != nil {
		cfg = resolvedCfg.Logging
	}

	return logging.New(cfg, logging.Flags{Verbose: flagVerbose, Quiet: flagQuiet}, os.Stderr)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
