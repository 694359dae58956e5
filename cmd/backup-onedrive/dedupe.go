package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dbrownell/devenv-utilities/internal/archive"
	"github.com/dbrownell/devenv-utilities/internal/config"
)

var (
	flagDedupeDryRun  bool
	flagDedupeWorkers int
	flagDedupeName    string
)

func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe <output-dir>",
		Short: "Remove byte-identical files from an archive directory",
		Long: `Hash every file under output-dir and remove all but the first copy (in
sorted path order) of each set of identical files, then remove directories
left empty. With --name, removed files are marked as duplicates in that
archive's state so later backups do not download them again.`,
		Args: cobra.ExactArgs(1),
		RunE: runDedupe,
	}

	cmd.Flags().BoolVar(&flagDedupeDryRun, "dry-run", false, "report duplicates without removing them")
	cmd.Flags().IntVar(&flagDedupeWorkers, "workers", 0, "parallel hashing workers (0 = number of CPUs)")
	cmd.Flags().StringVar(&flagDedupeName, "name", "", "archive name whose state records removed duplicates")

	return cmd
}

func runDedupe(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	opts := archive.DedupeOptions{
		Workers: flagDedupeWorkers,
		DryRun:  flagDedupeDryRun,
	}

	if flagDedupeName != "" {
		statePath := config.StatePath(resolvedCfg.Backup.StateDir, flagDedupeName)

		unlock, err := lockArchive(statePath)
		if err != nil {
			return err
		}
		defer unlock()

		store, err := archive.OpenStore(ctx, statePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		opts.Marker = store
	}

	rep, err := archive.Dedupe(ctx, args[0], opts, logger)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, rep)
	}

	if !flagQuiet {
		printDedupeText(os.Stdout, rep)
	}

	return nil
}
