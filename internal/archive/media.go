package archive

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/graph"
)

// MediaKind is the archive category of a remote file.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindPicture
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindPicture:
		return "picture"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Rules decides which files are archived and under which kind.
type Rules struct {
	PictureExtensions []string
	VideoExtensions   []string
	IgnoreExtensions  []string
}

// RulesFromConfig lowercases the configured extension lists.
func RulesFromConfig(b *config.BackupConfig) Rules {
	return Rules{
		PictureExtensions: lowerAll(b.PictureExtensions),
		VideoExtensions:   lowerAll(b.VideoExtensions),
		IgnoreExtensions:  lowerAll(b.IgnoreExtensions),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}

	return out
}

// Classify returns the item's kind. ignored is true for extensions that are
// silently skipped, such as camera thumbnail sidecars. Facets reported by the
// server win over the file extension.
func (r Rules) Classify(item *graph.Item) (kind MediaKind, ignored bool) {
	ext := strings.ToLower(filepath.Ext(item.Name))

	if slices.Contains(r.IgnoreExtensions, ext) {
		return KindUnknown, true
	}

	switch {
	case item.IsImage:
		return KindPicture, false
	case item.IsVideo:
		return KindVideo, false
	case slices.Contains(r.PictureExtensions, ext):
		return KindPicture, false
	case slices.Contains(r.VideoExtensions, ext):
		return KindVideo, false
	default:
		return KindUnknown, false
	}
}
