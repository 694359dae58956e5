package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dbrownell/devenv-utilities/internal/archive"
	"github.com/dbrownell/devenv-utilities/internal/config"
)

const defaultHistoryLimit = 20

var flagHistoryLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show recent backup runs for an archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	cmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", defaultHistoryLimit, "number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	statePath := config.StatePath(resolvedCfg.Backup.StateDir, args[0])
	if _, err := os.Stat(statePath); err != nil {
		return fmt.Errorf("no backups recorded for %q", args[0])
	}

	store, err := archive.OpenStore(cmd.Context(), statePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, runs)
	}

	if len(runs) == 0 {
		statusf("No runs recorded.\n")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for i := range runs {
		rows = append(rows, historyRow(&runs[i]))
	}

	printTable(os.Stdout, []string{"STARTED", "FOUND", "DOWNLOADED", "SKIPPED", "FAILED", "SIZE", "RESULT"}, rows)

	return nil
}

func historyRow(r *archive.Run) []string {
	result := "ok"

	switch {
	case r.Error != "":
		result = "error: " + r.Error
	case r.FinishedAt.IsZero():
		result = "incomplete"
	case r.DryRun:
		result = "dry run"
	}

	return []string{
		formatTime(r.StartedAt),
		humanize.Comma(int64(r.Found)),
		humanize.Comma(int64(r.Downloaded)),
		humanize.Comma(int64(r.Skipped)),
		strconv.Itoa(r.Failed),
		formatSize(r.Bytes),
		result,
	}
}
