package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDataDir_RespectsXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG variables only apply on Linux")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, filepath.Join("/xdg/data", appName), DefaultDataDir())
}

func TestTokenPath_SanitizesName(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG variables only apply on Linux")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, filepath.Join("/xdg/data", appName, "tokens", "alice_work.json"), TokenPath("alice/work"))
}

func TestStatePath_Override(t *testing.T) {
	assert.Equal(t, filepath.Join("/srv/state", "family.db"), StatePath("/srv/state", "family"))
}

func TestExpandTilde(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	assert.Equal(t, "/home/tester/archive", ExpandTilde("~/archive"))
	assert.Equal(t, "/abs/path", ExpandTilde("/abs/path"))
	assert.Equal(t, "rel/~", ExpandTilde("rel/~"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("paralel", "parallel"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, "max_retries", closestMatch("max_retry", knownKeys["transfers"]))
	assert.Empty(t, closestMatch("completely_different", knownKeys["transfers"]))
}
