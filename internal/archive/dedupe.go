package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// DuplicateMarker flags state records whose local file was removed as a
// duplicate. Satisfied by *Store.
type DuplicateMarker interface {
	MarkDuplicate(ctx context.Context, localPath string) (int64, error)
}

// DedupeOptions configures Dedupe.
type DedupeOptions struct {
	Workers int  // <1 means runtime.NumCPU()
	DryRun  bool // report only
	Marker  DuplicateMarker
}

// DuplicateGroup is a set of identical files. Keep survives; Remove goes.
type DuplicateGroup struct {
	Keep   string   `json:"keep"`
	Remove []string `json:"remove"`
	Size   int64    `json:"size"`
}

// DedupeReport summarizes a Dedupe run.
type DedupeReport struct {
	Files       int              `json:"files"`
	Groups      []DuplicateGroup `json:"groups,omitempty"`
	Removed     int              `json:"removed"`
	Bytes       int64            `json:"bytes"`
	RemovedDirs int              `json:"removed_dirs"`
	DryRun      bool             `json:"dry_run"`
}

type hashedFile struct {
	path string
	size int64
	sum  string
}

// Dedupe removes byte-identical copies under root. Within each set of
// identical files the first path in lexical order is kept. Directories left
// empty are removed afterwards.
func Dedupe(ctx context.Context, root string, opts DedupeOptions, logger *slog.Logger) (*DedupeReport, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	// State records hold absolute paths.
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("archive: resolving %s: %w", root, err)
	}

	root = abs

	bySize, total, err := collectFiles(root)
	if err != nil {
		return nil, err
	}

	logger.Info("counted files", slog.String("root", root), slog.Int("files", total))

	hashed, err := hashCandidates(ctx, bySize, workers)
	if err != nil {
		return nil, err
	}

	rep := &DedupeReport{Files: total, DryRun: opts.DryRun}
	rep.Groups = groupDuplicates(hashed)

	for _, g := range rep.Groups {
		for _, p := range g.Remove {
			if err := removeDuplicate(ctx, p, g.Keep, opts, logger); err != nil {
				return rep, err
			}

			rep.Removed++
			rep.Bytes += g.Size
		}
	}

	dirs, err := removeEmptyDirs(root, opts.DryRun)
	if err != nil {
		return rep, err
	}

	rep.RemovedDirs = dirs

	return rep, nil
}

// collectFiles groups the regular files under root by size. Files from an
// interrupted download are skipped.
func collectFiles(root string) (map[int64][]string, int, error) {
	bySize := make(map[int64][]string)

	var total int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() || strings.HasSuffix(path, partialSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		bySize[info.Size()] = append(bySize[info.Size()], path)
		total++

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("archive: walking %s: %w", root, err)
	}

	return bySize, total, nil
}

// hashCandidates hashes every file that shares its size with another file.
func hashCandidates(ctx context.Context, bySize map[int64][]string, workers int) ([]hashedFile, error) {
	var (
		mu     sync.Mutex
		hashed []hashedFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for size, paths := range bySize {
		if len(paths) < 2 {
			continue
		}

		for _, p := range paths {
			g.Go(func() error {
				sum, err := hashFile(gctx, p)
				if err != nil {
					return err
				}

				mu.Lock()
				hashed = append(hashed, hashedFile{path: p, size: size, sum: sum})
				mu.Unlock()

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return hashed, nil
}

func hashFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("archive: creating hasher: %w", err)
	}

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("archive: hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// groupDuplicates returns the sets of files sharing a hash, sorted by kept path.
func groupDuplicates(files []hashedFile) []DuplicateGroup {
	byHash := make(map[string][]hashedFile)
	for _, f := range files {
		byHash[f.sum] = append(byHash[f.sum], f)
	}

	var groups []DuplicateGroup

	for _, same := range byHash {
		if len(same) < 2 {
			continue
		}

		paths := make([]string, len(same))
		for i, f := range same {
			paths[i] = f.path
		}

		slices.Sort(paths)

		groups = append(groups, DuplicateGroup{Keep: paths[0], Remove: paths[1:], Size: same[0].size})
	}

	slices.SortFunc(groups, func(a, b DuplicateGroup) int {
		return strings.Compare(a.Keep, b.Keep)
	})

	return groups
}

func removeDuplicate(ctx context.Context, path, keep string, opts DedupeOptions, logger *slog.Logger) error {
	logger.Info("duplicate",
		slog.String("remove", path),
		slog.String("keep", keep),
		slog.Bool("dry_run", opts.DryRun),
	)

	if opts.DryRun {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("archive: removing %s: %w", path, err)
	}

	if opts.Marker == nil {
		return nil
	}

	if _, err := opts.Marker.MarkDuplicate(ctx, path); err != nil {
		return err
	}

	return nil
}

// removeEmptyDirs removes empty directories below root, deepest first, and
// returns how many were (or in a dry run would be) removed. root is kept.
func removeEmptyDirs(root string, dryRun bool) (int, error) {
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive: walking %s: %w", root, err)
	}

	var removed int

	for _, dir := range slices.Backward(dirs) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("archive: reading %s: %w", dir, err)
		}

		if len(entries) > 0 {
			continue
		}

		if !dryRun {
			if err := os.Remove(dir); err != nil {
				return removed, fmt.Errorf("archive: removing %s: %w", dir, err)
			}
		}

		removed++
	}

	return removed, nil
}
