package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section to its valid keys.
var knownKeys = map[string][]string{
	"backup": {
		"remote_folder", "pictures_subdir", "videos_subdir", "output_dir_template",
		"picture_extensions", "video_extensions", "ignore_extensions", "state_dir",
	},
	"transfers": {"parallel_downloads", "max_retries", "bandwidth_limit", "verify_hashes"},
	"network":   {"connect_timeout", "data_timeout", "auth_timeout", "user_agent"},
	"logging":   {"log_level", "log_format", "log_file"},
	"cert":      {"expiry_days", "key_type", "key_size", "country"},
}

// knownSections is the sorted list of section names for suggestions.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if s := closestMatch(key[0], knownSections); s != "" {
			return fmt.Errorf("unknown config key %q — did you mean [%s]?", key[0], s)
		}

		return fmt.Errorf("unknown config key %q", key[0])
	}

	section, field := key[0], key[1]

	keys, ok := knownKeys[section]
	if !ok {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown config section [%s] — did you mean [%s]?", section, s)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	sorted := slices.Sorted(slices.Values(keys))
	if s := closestMatch(field, sorted); s != "" {
		return fmt.Errorf("unknown key %q in [%s] — did you mean %q?", field, section, s)
	}

	return fmt.Errorf("unknown key %q in [%s]", strings.Join(key[1:], "."), section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
