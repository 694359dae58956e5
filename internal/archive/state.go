package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Status is the state of an archived item.
type Status string

const (
	StatusArchived  Status = "archived"
	StatusDuplicate Status = "duplicate" // removed locally as a copy of another file
)

const (
	sqlGetItem = `SELECT item_id, drive_id, remote_path, local_path, size,
		remote_mtime, hash, status, archived_at
		FROM archived_items WHERE item_id = ?`

	sqlUpsertItem = `INSERT INTO archived_items
		(item_id, drive_id, remote_path, local_path, size, remote_mtime, hash, status, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
		 drive_id = excluded.drive_id,
		 remote_path = excluded.remote_path,
		 local_path = excluded.local_path,
		 size = excluded.size,
		 remote_mtime = excluded.remote_mtime,
		 hash = excluded.hash,
		 status = excluded.status,
		 archived_at = excluded.archived_at`

	sqlMarkDuplicate = `UPDATE archived_items SET status = 'duplicate' WHERE local_path = ?`

	sqlInsertRun = `INSERT INTO runs (id, name, started_at, dry_run) VALUES (?, ?, ?, ?)`

	sqlFinishRun = `UPDATE runs SET finished_at = ?, found = ?, downloaded = ?,
		skipped = ?, failed = ?, bytes = ?, error = ?
		WHERE id = ?`

	sqlListRuns = `SELECT id, name, started_at, finished_at, dry_run, found,
		downloaded, skipped, failed, bytes, error
		FROM runs ORDER BY started_at DESC LIMIT ?`
)

// Record is one row of the archive state: a remote item and the local file
// it was archived to.
type Record struct {
	ItemID         string
	DriveID        string
	RemotePath     string
	LocalPath      string
	Size           int64
	RemoteModified time.Time
	Hash           string
	Status         Status
	ArchivedAt     time.Time
}

// Run is one row of the run history.
type Run struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"` // zero while running or after a crash
	DryRun     bool      `json:"dry_run"`
	Found      int       `json:"found"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
}

// Store is the sole reader and writer of an archive state database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenStore opens (creating if needed) the state database at dbPath and
// applies migrations. The database uses WAL with synchronous=FULL.
func OpenStore(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("archive: creating state directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("state store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record for itemID, or nil when the item was never archived.
func (s *Store) Get(ctx context.Context, itemID string) (*Record, error) {
	var (
		r          Record
		hash       sql.NullString
		status     string
		mtime      int64
		archivedAt int64
	)

	err := s.db.QueryRowContext(ctx, sqlGetItem, itemID).Scan(
		&r.ItemID, &r.DriveID, &r.RemotePath, &r.LocalPath, &r.Size,
		&mtime, &hash, &status, &archivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil record = never archived
	}

	if err != nil {
		return nil, fmt.Errorf("archive: reading state for %s: %w", itemID, err)
	}

	r.RemoteModified = time.Unix(0, mtime).UTC()
	r.ArchivedAt = time.Unix(0, archivedAt).UTC()
	r.Hash = hash.String
	r.Status = Status(status)

	return &r, nil
}

// Put inserts or replaces a record. A zero ArchivedAt is stamped with now.
func (s *Store) Put(ctx context.Context, r *Record) error {
	if r.ArchivedAt.IsZero() {
		r.ArchivedAt = s.nowFunc()
	}

	if r.Status == "" {
		r.Status = StatusArchived
	}

	_, err := s.db.ExecContext(ctx, sqlUpsertItem,
		r.ItemID, r.DriveID, r.RemotePath, r.LocalPath, r.Size,
		r.RemoteModified.UnixNano(), nullString(r.Hash), string(r.Status), r.ArchivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("archive: recording %s: %w", r.RemotePath, err)
	}

	return nil
}

// MarkDuplicate flags every record archived at localPath as a duplicate and
// returns how many were changed.
func (s *Store) MarkDuplicate(ctx context.Context, localPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlMarkDuplicate, localPath)
	if err != nil {
		return 0, fmt.Errorf("archive: marking %s as duplicate: %w", localPath, err)
	}

	return res.RowsAffected()
}

// BeginRun records the start of a run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, name string, dryRun bool) (string, error) {
	id := uuid.NewString()

	if _, err := s.db.ExecContext(ctx, sqlInsertRun, id, name, s.nowFunc().UnixNano(), dryRun); err != nil {
		return "", fmt.Errorf("archive: recording run start: %w", err)
	}

	return id, nil
}

// FinishRun stores the outcome of a run. runErr may be nil.
func (s *Store) FinishRun(ctx context.Context, id string, rep *Report, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, sqlFinishRun,
		s.nowFunc().UnixNano(), rep.Found, rep.Downloaded, rep.Skipped(), rep.Failed, rep.Bytes,
		errText, id,
	)
	if err != nil {
		return fmt.Errorf("archive: recording run end: %w", err)
	}

	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
		)

		if err := rows.Scan(&r.ID, &r.Name, &started, &finished, &r.DryRun, &r.Found,
			&r.Downloaded, &r.Skipped, &r.Failed, &r.Bytes, &errText); err != nil {
			return nil, fmt.Errorf("archive: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}

		r.Error = errText.String
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterating runs: %w", err)
	}

	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
