package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mtime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Put(ctx, &Record{
		ItemID:         "i1",
		DriveID:        "d1",
		RemotePath:     "a.jpg",
		LocalPath:      "/out/a.jpg",
		Size:           10,
		RemoteModified: mtime,
		Hash:           "h",
	}))

	rec, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/out/a.jpg", rec.LocalPath)
	assert.True(t, rec.RemoteModified.Equal(mtime))
	assert.Equal(t, StatusArchived, rec.Status)
	assert.False(t, rec.ArchivedAt.IsZero())

	// Upsert replaces.
	require.NoError(t, s.Put(ctx, &Record{ItemID: "i1", RemotePath: "a.jpg", LocalPath: "/out/b.jpg", RemoteModified: mtime}))
	rec, err = s.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "/out/b.jpg", rec.LocalPath)
	assert.Empty(t, rec.Hash)
}

func TestStore_MarkDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Record{ItemID: "i1", RemotePath: "a", LocalPath: "/out/a.jpg", RemoteModified: time.Now()}))

	n, err := s.MarkDuplicate(ctx, "/out/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, rec.Status)

	n, err = s.MarkDuplicate(ctx, "/out/other.jpg")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Runs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := s.BeginRun(ctx, "jane", false)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, first, &Report{Found: 3, Downloaded: 2, Failed: 1, Bytes: 99}, nil))

	second, err := s.BeginRun(ctx, "jane", true)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, second, &Report{Found: 3, UpToDate: 3}, errors.New("boom")))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, 3, runs[0].Skipped)
	assert.Equal(t, "boom", runs[0].Error)

	assert.Equal(t, first, runs[1].ID)
	assert.Equal(t, 2, runs[1].Downloaded)
	assert.Equal(t, 1, runs[1].Failed)
	assert.Equal(t, int64(99), runs[1].Bytes)
	assert.Empty(t, runs[1].Error)
	assert.False(t, runs[1].FinishedAt.IsZero())
}

func TestOpenStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.db")
	ctx := context.Background()

	s, err := OpenStore(ctx, path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &Record{ItemID: "x", RemotePath: "x", LocalPath: "/x", RemoteModified: time.Now()}))
	require.NoError(t, s.Close())

	s, err = OpenStore(ctx, path, testLogger())
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
