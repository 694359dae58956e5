package graph

import "time"

// Item represents a OneDrive drive item. Fields are normalized from the
// Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	DriveID      string // lowercase; Graph casing is inconsistent
	Size         int64
	IsFolder     bool
	IsPackage    bool   // OneNote packages; never archived
	IsImage      bool   // image or photo facet present
	IsVideo      bool   // video facet present
	QuickXorHash string // base64-encoded
	SHA1Hash     string // hex, Business and SharePoint drives only
	SHA256Hash   string // hex, rarely populated
	CreatedAt    time.Time
	ModifiedAt   time.Time
	TakenAt      time.Time // zero unless the photo facet carries takenDateTime
	DownloadURL  string    // pre-authenticated, ephemeral; NEVER log
}

// User is the authenticated account's profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
}
