package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const photoItemJSON = `{
	"id": "P1",
	"name": "IMG_0001.JPG",
	"size": 1234,
	"eTag": "e1",
	"createdDateTime": "2023-05-06T07:08:09Z",
	"lastModifiedDateTime": "2023-05-07T00:00:00Z",
	"parentReference": {"id": "F1", "driveId": "ABC123", "path": "/drive/root:/Pictures/Camera%20Roll"},
	"file": {"mimeType": "image/jpeg", "hashes": {"quickXorHash": "qx==", "sha1Hash": "AB12", "sha256Hash": "CD34"}},
	"image": {"width": 10, "height": 10},
	"photo": {"takenDateTime": "2023-01-02T03:04:05Z"},
	"@microsoft.graph.downloadUrl": "https://example.invalid/dl?tempauth=x"
}`

func TestToItem_PhotoFacets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root:/Pictures/Camera Roll/IMG_0001.JPG:", r.URL.Path)
		_, _ = w.Write([]byte(photoItemJSON))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "Pictures/Camera Roll/IMG_0001.JPG")
	require.NoError(t, err)

	assert.Equal(t, "IMG_0001.JPG", item.Name)
	assert.Equal(t, "abc123", item.DriveID)
	assert.True(t, item.IsImage)
	assert.False(t, item.IsVideo)
	assert.False(t, item.IsFolder)
	assert.Equal(t, "qx==", item.QuickXorHash)
	assert.Equal(t, "AB12", item.SHA1Hash)
	assert.Equal(t, "CD34", item.SHA256Hash)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), item.TakenAt)
	assert.Equal(t, time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC), item.CreatedAt)
}

func TestParseTimestamp_Invalid(t *testing.T) {
	logger := slog.Default()

	assert.True(t, parseTimestamp("", "f", "id", logger).IsZero())
	assert.True(t, parseTimestamp("not-a-time", "f", "id", logger).IsZero())
	assert.True(t, parseTimestamp("1601-01-01T00:00:00Z", "f", "id", logger).IsZero())
}

func TestGetItemByPath_EncodesSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root:/Pictures/Camera Roll:", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"F1","name":"Camera Roll","folder":{"childCount":2}}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "/Pictures/Camera Roll/")
	require.NoError(t, err)
	assert.True(t, item.IsFolder)
	assert.Equal(t, "F1", item.ID)
}

func TestGetItemByPath_Root(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"root","name":"root","folder":{}}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "root", item.ID)
}

func TestGetSpecialFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/special/cameraroll", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"CR","name":"Camera Roll","folder":{}}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetSpecialFolder(context.Background(), SpecialCameraRoll)
	require.NoError(t, err)
	assert.Equal(t, "CR", item.ID)
}

func TestListChildren_FollowsNextLink(t *testing.T) {
	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/items/F1/children", r.URL.Path)

		if r.URL.Query().Get("$skiptoken") == "" {
			assert.Equal(t, "200", r.URL.Query().Get("$top"))
			fmt.Fprintf(w, `{"value":[{"id":"a","name":"a.jpg","file":{}},{"id":"sub","name":"sub","folder":{"childCount":1}}],`+
				`"@odata.nextLink":"%s/me/drive/items/F1/children?$skiptoken=p2"}`, srv.URL)

			return
		}

		_, _ = w.Write([]byte(`{"value":[{"id":"b","name":"b.mp4","file":{},"video":{}}]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "F1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
	assert.True(t, items[1].IsFolder)
	assert.True(t, items[2].IsVideo)
}

func TestListChildren_ForeignNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"https://evil.invalid/next"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListChildren(context.Background(), "F1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside base URL")
}

func TestMe_FallsBackToUPN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u1","displayName":"Jane Doe","mail":"","userPrincipalName":"jane@example.com"}`))
	}))
	defer srv.Close()

	user, err := newTestClient(t, srv.URL).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.Equal(t, "jane@example.com", user.Email)
}
