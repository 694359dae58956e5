package archive

import (
	"crypto/sha1" //nolint:gosec // OneDrive reports SHA1 for some drives
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/dbrownell/devenv-utilities/internal/graph"
	"github.com/dbrownell/devenv-utilities/pkg/quickxorhash"
)

// fileQuickXorHash returns the base64 QuickXorHash of a local file, the same
// encoding OneDrive reports for remote items.
func fileQuickXorHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("archive: opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := quickxorhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("archive: hashing %s: %w", path, err)
	}

	return encodeHash(h), nil
}

func encodeHash(h interface{ Sum([]byte) []byte }) string {
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// fallbackDigest returns the hash to verify a download with when the item
// has no QuickXorHash, and the hex digest OneDrive reported. It returns a nil
// hash when there is nothing to check against or QuickXorHash is present.
func fallbackDigest(item *graph.Item) (hash.Hash, string) {
	switch {
	case item.QuickXorHash != "":
		return nil, ""
	case item.SHA256Hash != "":
		return sha256.New(), item.SHA256Hash
	case item.SHA1Hash != "":
		return sha1.New(), item.SHA1Hash //nolint:gosec // integrity check only
	default:
		return nil, ""
	}
}

// digestMatches compares h against a hex digest. Graph reports hex in upper case.
func digestMatches(h hash.Hash, want string) bool {
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), want)
}
