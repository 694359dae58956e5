package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/dbrownell/devenv-utilities/internal/config"
)

// StateReader looks up archived items. Satisfied by *Store.
type StateReader interface {
	Get(ctx context.Context, itemID string) (*Record, error)
}

// Task is a planned download.
type Task struct {
	File RemoteFile
	Kind MediaKind
	Dest string
}

// Plan partitions the enumerated files.
type Plan struct {
	Tasks        []Task
	Adopt        []Task // destination already on disk but not yet recorded
	UpToDate     int
	Duplicates   int // previously removed as duplicates
	Ignored      int
	Unrecognized []string
	Collisions   []string // a second remote file mapping to an already planned destination
}

// Planner maps remote files to local destinations.
type Planner struct {
	rules       Rules
	picturesDir string
	videosDir   string
	template    string
	name        string
	state       StateReader
	logger      *slog.Logger
}

// NewPlanner creates a planner rooted at outputDir. name fills the {name}
// template placeholder.
func NewPlanner(cfg *config.BackupConfig, outputDir, name string, state StateReader, logger *slog.Logger) *Planner {
	return &Planner{
		rules:       RulesFromConfig(cfg),
		picturesDir: filepath.Join(outputDir, cfg.PicturesSubdir),
		videosDir:   filepath.Join(outputDir, cfg.VideosSubdir),
		template:    cfg.OutputDirTemplate,
		name:        name,
		state:       state,
		logger:      logger,
	}
}

// Destination returns the local path for a file of the given kind.
func (p *Planner) Destination(f *RemoteFile, kind MediaKind) string {
	base := p.picturesDir
	if kind == KindVideo {
		base = p.videosDir
	}

	return filepath.Join(base, ExpandTemplate(p.template, archiveDate(f), p.name), norm.NFC.String(f.Name))
}

// archiveDate is the date that decides a file's folder: when the photo was
// taken if known, else when the file was created.
func archiveDate(f *RemoteFile) time.Time {
	switch {
	case !f.TakenAt.IsZero():
		return f.TakenAt
	case !f.CreatedAt.IsZero():
		return f.CreatedAt
	default:
		return f.ModifiedAt
	}
}

// Plan classifies files and decides which ones need downloading.
func (p *Planner) Plan(ctx context.Context, files []RemoteFile) (*Plan, error) {
	plan := &Plan{}
	claimed := make(map[string]string, len(files))

	for i := range files {
		f := &files[i]

		kind, ignored := p.rules.Classify(&f.Item)
		if ignored {
			plan.Ignored++
			continue
		}

		if kind == KindUnknown {
			p.logger.Warn("not a recognized file type", slog.String("path", f.RemotePath))
			plan.Unrecognized = append(plan.Unrecognized, f.RemotePath)

			continue
		}

		rec, err := p.state.Get(ctx, f.ID)
		if err != nil {
			return nil, err
		}

		if rec != nil {
			if rec.Status == StatusDuplicate {
				plan.Duplicates++
				continue
			}

			if rec.RemoteModified.Equal(f.ModifiedAt) && isFile(rec.LocalPath) {
				plan.UpToDate++
				continue
			}
		}

		task := Task{File: *f, Kind: kind, Dest: p.Destination(f, kind)}

		if other, ok := claimed[task.Dest]; ok {
			p.logger.Warn("destination already claimed by another remote file",
				slog.String("path", f.RemotePath),
				slog.String("other", other),
			)
			plan.Collisions = append(plan.Collisions, f.RemotePath)

			continue
		}

		claimed[task.Dest] = f.RemotePath

		if rec == nil && isFile(task.Dest) {
			p.logger.Debug("destination already exists", slog.String("dest", task.Dest))
			plan.Adopt = append(plan.Adopt, task)

			continue
		}

		plan.Tasks = append(plan.Tasks, task)
	}

	return plan, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}
