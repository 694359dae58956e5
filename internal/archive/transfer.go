package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbrownell/devenv-utilities/internal/graph"
	"github.com/dbrownell/devenv-utilities/pkg/quickxorhash"
)

const (
	partialSuffix  = ".partial"
	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 30 * time.Second
)

// Downloader streams a remote item's content. Satisfied by *graph.Client.
type Downloader interface {
	Download(ctx context.Context, item *graph.Item, w io.Writer) (int64, error)
}

// Recorder persists archived items. Satisfied by *Store.
type Recorder interface {
	Put(ctx context.Context, r *Record) error
}

// TransferOptions tunes the transfer manager.
type TransferOptions struct {
	Workers      int // <1 means 1, sequential
	MaxRetries   int // extra attempts per item after the first
	VerifyHashes bool
	Limiter      *BandwidthLimiter
}

// TransferResult summarizes a batch of downloads.
type TransferResult struct {
	Downloaded int
	Bytes      int64
	Failed     []*TransferError
}

// TransferManager downloads planned tasks through a bounded worker pool.
// Each item is retried on its own; one failing item never stops the others.
type TransferManager struct {
	dl     Downloader
	rec    Recorder
	opts   TransferOptions
	logger *slog.Logger

	// sleepFunc waits between attempts. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewTransferManager creates a TransferManager.
func NewTransferManager(dl Downloader, rec Recorder, opts TransferOptions, logger *slog.Logger) *TransferManager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &TransferManager{
		dl:        dl,
		rec:       rec,
		opts:      opts,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Run downloads every task. It returns an error only for failures that make
// continuing pointless: lost authorization, cancellation, or an unwritable
// destination. Per-item failures are collected in the result.
func (tm *TransferManager) Run(ctx context.Context, tasks []Task) (*TransferResult, error) {
	var (
		mu     sync.Mutex
		result TransferResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tm.opts.Workers)

	for i := range tasks {
		if gctx.Err() != nil {
			break
		}

		task := &tasks[i]

		g.Go(func() error {
			n, err := tm.transfer(gctx, task)

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				result.Downloaded++
				result.Bytes += n

				return nil
			}

			var te *TransferError
			if errors.As(err, &te) {
				result.Failed = append(result.Failed, te)
				return nil
			}

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return &result, err
	}

	if err := ctx.Err(); err != nil {
		return &result, fmt.Errorf("archive: transfers canceled: %w", err)
	}

	return &result, nil
}

// transfer downloads one task with retries. It returns a *TransferError when
// the item is given up on, or a bare error when the run must stop.
func (tm *TransferManager) transfer(ctx context.Context, task *Task) (int64, error) {
	attempts := tm.opts.MaxRetries + 1

	for attempt := 1; ; attempt++ {
		n, err := tm.downloadToFile(ctx, task)
		if err == nil {
			tm.logger.Info("archived",
				slog.String("path", task.File.RemotePath),
				slog.String("kind", task.Kind.String()),
				slog.Int64("bytes", n),
			)

			return n, nil
		}

		if isFatal(ctx, err) {
			return 0, err
		}

		if !isRetryable(err) || attempt >= attempts {
			tm.logger.Error("giving up on item",
				slog.String("path", task.File.RemotePath),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)

			return 0, &TransferError{
				ItemID:     task.File.ID,
				RemotePath: task.File.RemotePath,
				Attempts:   attempt,
				Err:        err,
			}
		}

		delay := min(retryBaseDelay<<(attempt-1), retryMaxDelay)

		tm.logger.Warn("retrying item",
			slog.String("path", task.File.RemotePath),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if err := tm.sleepFunc(ctx, delay); err != nil {
			return 0, fmt.Errorf("archive: transfers canceled: %w", err)
		}
	}
}

// downloadToFile writes the item to "<dest>.partial", verifies its hash
// (QuickXorHash, or SHA256/SHA1 when that is missing), stamps the remote
// modification time, renames it into place, and records it. The partial
// file is removed on failure.
func (tm *TransferManager) downloadToFile(ctx context.Context, task *Task) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(task.Dest), 0o755); err != nil { //nolint:mnd // archive dirs are shared
		return 0, fmt.Errorf("%w: creating %s: %w", ErrDestination, filepath.Dir(task.Dest), err)
	}

	partial := task.Dest + partialSuffix

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:mnd // archived media is world-readable
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %w", ErrDestination, partial, err)
	}

	h := quickxorhash.New()
	writers := []io.Writer{f, h}

	alt, want := fallbackDigest(&task.File.Item)
	if !tm.opts.VerifyHashes {
		alt = nil
	}

	if alt != nil {
		writers = append(writers, alt)
	}

	w := tm.opts.Limiter.WrapWriter(ctx, io.MultiWriter(writers...))

	n, err := tm.dl.Download(ctx, &task.File.Item, w)
	closeErr := f.Close()

	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: closing %s: %w", ErrDestination, partial, closeErr)
	}

	if err != nil {
		os.Remove(partial)
		return 0, err
	}

	localHash := encodeHash(h)
	if tm.opts.VerifyHashes && task.File.QuickXorHash != "" && localHash != task.File.QuickXorHash {
		os.Remove(partial)
		return 0, fmt.Errorf("%w: %s: local %s, remote %s", ErrHashMismatch, task.File.RemotePath, localHash, task.File.QuickXorHash)
	}

	if alt != nil && !digestMatches(alt, want) {
		os.Remove(partial)
		return 0, fmt.Errorf("%w: %s: local %x, remote %s", ErrHashMismatch, task.File.RemotePath, alt.Sum(nil), want)
	}

	if mtime := task.File.ModifiedAt; !mtime.IsZero() {
		if err := os.Chtimes(partial, mtime, mtime); err != nil {
			tm.logger.Warn("failed to set mtime",
				slog.String("path", partial),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := os.Rename(partial, task.Dest); err != nil {
		os.Remove(partial)
		return 0, fmt.Errorf("%w: renaming into %s: %w", ErrDestination, task.Dest, err)
	}

	if err := tm.rec.Put(ctx, recordFor(task, n, localHash)); err != nil {
		return 0, err
	}

	return n, nil
}

func recordFor(task *Task, size int64, hash string) *Record {
	return &Record{
		ItemID:         task.File.ID,
		DriveID:        task.File.DriveID,
		RemotePath:     task.File.RemotePath,
		LocalPath:      task.Dest,
		Size:           size,
		RemoteModified: task.File.ModifiedAt,
		Hash:           hash,
		Status:         StatusArchived,
	}
}

// isFatal reports whether err should stop the whole run. Cancellation
// counts only when the run's own context is done; a single attempt that
// timed out is retried.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, graph.ErrUnauthorized) ||
		errors.Is(err, ErrDestination)
}

// isRetryable reports whether another attempt at the same item may succeed.
func isRetryable(err error) bool {
	if graph.IsTransient(err) || errors.Is(err, ErrHashMismatch) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
