package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/graph"
)

// Remote is the slice of the Graph API the archiver needs. Satisfied by
// *graph.Client.
type Remote interface {
	Lister
	Downloader
	Me(ctx context.Context) (*graph.User, error)
	GetSpecialFolder(ctx context.Context, name string) (*graph.Item, error)
	GetItemByPath(ctx context.Context, remotePath string) (*graph.Item, error)
}

// Options configures one backup run.
type Options struct {
	Name             string // archive name; fills {name} in the template
	ExpectedUsername string
	ExpectedEmail    string // empty skips the email check
	OutputDir        string
	DryRun           bool
	Backup           config.BackupConfig
	Transfers        TransferOptions
}

// Archiver runs backups against one remote account.
type Archiver struct {
	remote  Remote
	store   *Store
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(remote Remote, store *Store, logger *slog.Logger) *Archiver {
	return &Archiver{remote: remote, store: store, logger: logger, nowFunc: time.Now}
}

// VerifyIdentity fails with ErrIdentityMismatch unless the signed-in user's
// display name, and email when expected, match.
func VerifyIdentity(user *graph.User, expectedName, expectedEmail string) error {
	if user.DisplayName != expectedName {
		return fmt.Errorf("%w: display name %q is not %q", ErrIdentityMismatch, user.DisplayName, expectedName)
	}

	if expectedEmail != "" && !strings.EqualFold(user.Email, expectedEmail) {
		return fmt.Errorf("%w: email %q is not %q", ErrIdentityMismatch, user.Email, expectedEmail)
	}

	return nil
}

// Run performs a backup: verify the account, enumerate the remote folder,
// plan, then download. The returned report is non-nil whenever the run got
// as far as recording itself, even when err is set.
func (a *Archiver) Run(ctx context.Context, opts Options) (*Report, error) {
	// Recorded paths are absolute so later runs and dedupe match them
	// regardless of how the directory was spelled.
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDestination, opts.OutputDir, err)
	}

	opts.OutputDir = outputDir

	info, err := os.Stat(opts.OutputDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDestination, opts.OutputDir)
	}

	runID, err := a.store.BeginRun(ctx, opts.Name, opts.DryRun)
	if err != nil {
		return nil, err
	}

	rep := &Report{RunID: runID, Name: opts.Name, DryRun: opts.DryRun, StartedAt: a.nowFunc()}

	runErr := a.run(ctx, opts, rep)
	rep.FinishedAt = a.nowFunc()

	// Record the outcome even when ctx was canceled.
	if err := a.store.FinishRun(context.WithoutCancel(ctx), runID, rep, runErr); err != nil {
		a.logger.Warn("failed to record run", slog.String("error", err.Error()))
	}

	return rep, runErr
}

func (a *Archiver) run(ctx context.Context, opts Options, rep *Report) error {
	user, err := a.remote.Me(ctx)
	if err != nil {
		return fmt.Errorf("archive: fetching profile: %w", err)
	}

	if err := VerifyIdentity(user, opts.ExpectedUsername, opts.ExpectedEmail); err != nil {
		return err
	}

	root, err := a.resolveRoot(ctx, opts.Backup.RemoteFolder)
	if err != nil {
		return err
	}

	files, err := Enumerate(ctx, a.remote, root, a.logger)
	if err != nil {
		return err
	}

	rep.Found = len(files)

	planner := NewPlanner(&opts.Backup, opts.OutputDir, opts.Name, a.store, a.logger)

	plan, err := planner.Plan(ctx, files)
	if err != nil {
		return err
	}

	rep.applyPlan(plan)

	a.logger.Info("planned backup",
		slog.Int("found", rep.Found),
		slog.Int("to_download", rep.Planned),
		slog.Int("up_to_date", rep.UpToDate),
		slog.Int("adopted", rep.Adopted),
	)

	if opts.DryRun {
		return nil
	}

	for i := range plan.Adopt {
		if err := a.adopt(ctx, &plan.Adopt[i]); err != nil {
			return err
		}
	}

	tm := NewTransferManager(a.remote, a.store, opts.Transfers, a.logger)

	result, err := tm.Run(ctx, plan.Tasks)
	if result != nil {
		rep.applyTransfers(result)
	}

	return err
}

// resolveRoot finds the folder to archive: the camera roll special folder
// when remoteFolder is empty, otherwise the folder at that path.
func (a *Archiver) resolveRoot(ctx context.Context, remoteFolder string) (*graph.Item, error) {
	var (
		root *graph.Item
		err  error
	)

	if strings.TrimSpace(remoteFolder) == "" {
		root, err = a.remote.GetSpecialFolder(ctx, graph.SpecialCameraRoll)
	} else {
		root, err = a.remote.GetItemByPath(ctx, remoteFolder)
	}

	if err != nil {
		return nil, fmt.Errorf("archive: resolving remote folder: %w", err)
	}

	if !root.IsFolder {
		return nil, fmt.Errorf("archive: remote %q is not a folder", root.Name)
	}

	return root, nil
}

// adopt records a file that already exists at its planned destination so
// it is treated as archived from now on. The local copy is kept even when
// its content differs from the remote item.
func (a *Archiver) adopt(ctx context.Context, task *Task) error {
	info, err := os.Stat(task.Dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("%w: %s: %w", ErrDestination, task.Dest, err)
	}

	hash, err := fileQuickXorHash(task.Dest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestination, err)
	}

	if remote := task.File.QuickXorHash; remote != "" && remote != hash {
		a.logger.Warn("existing file differs from remote item, keeping local copy",
			slog.String("path", task.Dest),
			slog.String("remote_path", task.File.RemotePath),
		)
	}

	return a.store.Put(ctx, recordFor(task, info.Size(), hash))
}
