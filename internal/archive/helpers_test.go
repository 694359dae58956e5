package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbrownell/devenv-utilities/internal/graph"
	"github.com/dbrownell/devenv-utilities/pkg/quickxorhash"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func qxh(data []byte) string {
	h := quickxorhash.New()
	_, _ = h.Write(data)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "state", "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

// resetErr is a network error the transfer manager treats as retryable.
var resetErr = &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}

// fakeRemote is an in-memory drive. Folders map to their children; file
// content is served from content. failures[id] makes the next N downloads of
// an item fail with failErr, or resetErr when failErr is nil.
type fakeRemote struct {
	mu        sync.Mutex
	failErr   error
	user      graph.User
	root      graph.Item
	children  map[string][]graph.Item
	content   map[string][]byte
	failures  map[string]int
	downloads map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		user:      graph.User{DisplayName: "Jane Doe", Email: "jane@example.com"},
		root:      graph.Item{ID: "root", Name: "Camera Roll", IsFolder: true},
		children:  make(map[string][]graph.Item),
		content:   make(map[string][]byte),
		failures:  make(map[string]int),
		downloads: make(map[string]int),
	}
}

func (f *fakeRemote) addFile(parent string, item graph.Item, data []byte) {
	item.Size = int64(len(data))
	item.QuickXorHash = qxh(data)
	item.DownloadURL = "https://download.invalid/" + item.ID
	f.children[parent] = append(f.children[parent], item)
	f.content[item.ID] = data
}

func (f *fakeRemote) addFolder(parent, id, name string) {
	f.children[parent] = append(f.children[parent], graph.Item{ID: id, Name: name, IsFolder: true})
}

func (f *fakeRemote) Me(context.Context) (*graph.User, error) {
	u := f.user
	return &u, nil
}

func (f *fakeRemote) GetSpecialFolder(_ context.Context, name string) (*graph.Item, error) {
	if name != graph.SpecialCameraRoll {
		return nil, graph.ErrNotFound
	}

	r := f.root

	return &r, nil
}

func (f *fakeRemote) GetItemByPath(_ context.Context, p string) (*graph.Item, error) {
	for _, c := range f.children[f.root.ID] {
		if c.Name == p {
			return &c, nil
		}
	}

	return nil, graph.ErrNotFound
}

func (f *fakeRemote) ListChildren(_ context.Context, id string) ([]graph.Item, error) {
	return f.children[id], nil
}

func (f *fakeRemote) Download(ctx context.Context, item *graph.Item, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.downloads[item.ID]++
	fail := f.failures[item.ID] > 0
	if fail {
		f.failures[item.ID]--
	}
	f.mu.Unlock()

	if fail {
		if f.failErr != nil {
			return 0, f.failErr
		}

		return 0, resetErr
	}

	return io.Copy(w, bytes.NewReader(f.content[item.ID]))
}

func (f *fakeRemote) downloadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.downloads[id]
}
