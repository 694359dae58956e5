package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestDedupe_RemovesLaterCopies(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"2023/01/a.jpg":     "same",
		"2023/02/copy.jpg":  "same",
		"2024/05/b/c.jpg":   "same",
		"2023/01/other.jpg": "diff",
		"2023/01/size.jpg":  "sam3",
	})

	store := openTestStore(t)
	ctx := context.Background()
	copyPath := filepath.Join(root, "2023", "02", "copy.jpg")
	require.NoError(t, store.Put(ctx, &Record{ItemID: "c", RemotePath: "copy.jpg", LocalPath: copyPath, RemoteModified: time.Now()}))

	rep, err := Dedupe(ctx, root, DedupeOptions{Workers: 2, Marker: store}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Files)
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, filepath.Join(root, "2023", "01", "a.jpg"), rep.Groups[0].Keep)
	assert.Equal(t, 2, rep.Removed)
	assert.Equal(t, int64(8), rep.Bytes)

	// 2023/02 and 2024/05/b, 2024/05, 2024 are now empty.
	assert.Equal(t, 4, rep.RemovedDirs)

	assert.FileExists(t, filepath.Join(root, "2023", "01", "a.jpg"))
	assert.NoFileExists(t, copyPath)
	assert.NoDirExists(t, filepath.Join(root, "2024"))

	rec, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, rec.Status)
}

func TestDedupe_DryRun(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/1.jpg": "x",
		"b/2.jpg": "x",
	})

	rep, err := Dedupe(context.Background(), root, DedupeOptions{DryRun: true}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)
	assert.Zero(t, rep.RemovedDirs)
	assert.FileExists(t, filepath.Join(root, "b", "2.jpg"))
}

func TestDedupe_SkipsPartials(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.jpg":         "x",
		"a.jpg.partial": "x",
	})

	rep, err := Dedupe(context.Background(), root, DedupeOptions{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Files)
	assert.Empty(t, rep.Groups)
}
