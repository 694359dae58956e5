package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dbrownell/devenv-utilities/internal/archive"
)

// statusf prints a status message to stderr unless --quiet is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.Bytes(uint64(bytes))
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printReportText(w io.Writer, rep *archive.Report) {
	if rep.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was downloaded.")
	}

	fmt.Fprintf(w, "Found:        %s\n", humanize.Comma(int64(rep.Found)))
	fmt.Fprintf(w, "Planned:      %s\n", humanize.Comma(int64(rep.Planned)))
	fmt.Fprintf(w, "Downloaded:   %s (%s)\n", humanize.Comma(int64(rep.Downloaded)), formatSize(rep.Bytes))
	fmt.Fprintf(w, "Up to date:   %s\n", humanize.Comma(int64(rep.UpToDate)))

	if rep.Adopted > 0 {
		fmt.Fprintf(w, "Adopted:      %s\n", humanize.Comma(int64(rep.Adopted)))
	}

	if rep.Duplicates > 0 {
		fmt.Fprintf(w, "Duplicates:   %s\n", humanize.Comma(int64(rep.Duplicates)))
	}

	fmt.Fprintf(w, "Ignored:      %s\n", humanize.Comma(int64(rep.Ignored)))
	fmt.Fprintf(w, "Unrecognized: %d\n", len(rep.Unrecognized))

	for _, p := range rep.Unrecognized {
		fmt.Fprintf(w, "    %s\n", p)
	}

	if len(rep.Collisions) > 0 {
		fmt.Fprintf(w, "Collisions:   %d\n", len(rep.Collisions))

		for _, p := range rep.Collisions {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}

	fmt.Fprintf(w, "Failed:       %d\n", rep.Failed)

	for _, f := range rep.Failures {
		fmt.Fprintf(w, "    %s (%d attempts): %s\n", f.RemotePath, f.Attempts, f.Error)
	}

	if !rep.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Elapsed:      %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Second))
	}
}

func printDedupeText(w io.Writer, rep *archive.DedupeReport) {
	verb := "Removed"
	if rep.DryRun {
		verb = "Would remove"
	}

	for _, g := range rep.Groups {
		fmt.Fprintf(w, "%s (%s)\n", g.Keep, formatSize(g.Size))

		for _, p := range g.Remove {
			fmt.Fprintf(w, "    - %s\n", p)
		}
	}

	fmt.Fprintf(w, "Scanned %s files. %s %s duplicates (%s), %d empty directories.\n",
		humanize.Comma(int64(rep.Files)), verb, humanize.Comma(int64(rep.Removed)),
		formatSize(rep.Bytes), rep.RemovedDirs)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
