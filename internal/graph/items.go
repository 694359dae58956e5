package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// childrenPageSize is the $top value for children requests. 200 is the
// largest page the Graph API serves for drive item collections.
const childrenPageSize = 200

// Timestamps outside [minValidYear, maxValidYear] are treated as missing.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// SpecialCameraRoll names the OneDrive special folder phones upload to.
const SpecialCameraRoll = "cameraroll"

// encodePath escapes each segment of a slash-separated drive path so it can
// be embedded in a root:/...: address.
func encodePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// driveItemResponse mirrors the Graph API driveItem JSON.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	CreatedDateTime      string           `json:"createdDateTime"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *json.RawMessage `json:"folder"`
	Package              *json.RawMessage `json:"package"`
	Image                *json.RawMessage `json:"image"`
	Photo                *photoFacet      `json:"photo"`
	Video                *json.RawMessage `json:"video"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type parentRef struct {
	DriveID string `json:"driveId"`
}

type fileFacet struct {
	Hashes *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
	SHA1Hash     string `json:"sha1Hash"`
	SHA256Hash   string `json:"sha256Hash"`
}

type photoFacet struct {
	TakenDateTime string `json:"takenDateTime"`
}

type childrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a driveItem response.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		IsFolder:    d.Folder != nil,
		IsPackage:   d.Package != nil,
		IsImage:     d.Image != nil || d.Photo != nil,
		IsVideo:     d.Video != nil,
		DownloadURL: d.DownloadURL,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
	}

	if d.File != nil && d.File.Hashes != nil {
		item.QuickXorHash = d.File.Hashes.QuickXorHash
		item.SHA1Hash = d.File.Hashes.SHA1Hash
		item.SHA256Hash = d.File.Hashes.SHA256Hash
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	if d.Photo != nil && d.Photo.TakenDateTime != "" {
		item.TakenAt = parseTimestamp(d.Photo.TakenDateTime, "takenDateTime", d.ID, logger)
	}

	return item
}

// parseTimestamp parses an RFC3339 timestamp. Empty, malformed, or
// out-of-range values yield the zero time and a warning; callers fall back
// to another timestamp.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t.UTC()
}

// getItem fetches and decodes one driveItem.
func (c *Client) getItem(ctx context.Context, apiPath string) (*Item, error) {
	resp, err := c.Do(ctx, http.MethodGet, apiPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding item response: %w", err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// GetItemByPath retrieves a drive item by its path relative to the drive
// root. An empty path or "/" returns the root itself.
func (c *Client) GetItemByPath(ctx context.Context, remotePath string) (*Item, error) {
	if strings.Trim(remotePath, "/") == "" {
		return c.getItem(ctx, "/me/drive/root")
	}

	c.logger.Debug("resolving item by path", slog.String("path", remotePath))

	return c.getItem(ctx, "/me/drive/root:/"+encodePath(remotePath)+":")
}

// GetSpecialFolder retrieves a special folder such as SpecialCameraRoll.
func (c *Client) GetSpecialFolder(ctx context.Context, name string) (*Item, error) {
	return c.getItem(ctx, "/me/drive/special/"+url.PathEscape(name))
}

// ListChildren returns every child of a folder, following @odata.nextLink
// until the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	apiPath := fmt.Sprintf("/me/drive/items/%s/children?$top=%d", url.PathEscape(folderID), childrenPageSize)

	var items []Item

	for page := 1; apiPath != ""; page++ {
		pageItems, next, err := c.childrenPage(ctx, apiPath)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("fetched children page",
			slog.String("folder_id", folderID),
			slog.Int("page", page),
			slog.Int("count", len(pageItems)),
		)

		items = append(items, pageItems...)
		apiPath = next
	}

	return items, nil
}

// childrenPage fetches one page and returns its items plus the path of the
// next page, empty on the last page.
func (c *Client) childrenPage(ctx context.Context, apiPath string) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, apiPath)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var cr childrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(cr.Value))
	for i := range cr.Value {
		items = append(items, cr.Value[i].toItem(c.logger))
	}

	if cr.NextLink == "" {
		return items, "", nil
	}

	next, err := c.relativePath(cr.NextLink)
	if err != nil {
		return nil, "", err
	}

	return items, next, nil
}

// relativePath strips the client's base URL from an absolute link so it can
// be passed back to Do.
func (c *Client) relativePath(link string) (string, error) {
	if !strings.HasPrefix(link, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink %q is outside base URL %q", link, c.baseURL)
	}

	return strings.TrimPrefix(link, c.baseURL), nil
}
