package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFilePermissions = 0o600
	lockDirPermissions  = 0o700
)

// lockArchive takes an exclusive, non-blocking lock beside an archive's
// state database and writes the current PID into it. A second backup or
// dedupe of the same archive fails immediately. The returned function
// releases the lock.
func lockArchive(statePath string) (unlock func(), err error) {
	if statePath == "" {
		return nil, errors.New("cannot determine state directory; set backup.state_dir")
	}

	path := statePath + ".lock"

	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if !locked {
		if pid, pidErr := readLockPID(path); pidErr == nil {
			return nil, fmt.Errorf("archive is in use by process %d (lock %s)", pid, path)
		}

		return nil, fmt.Errorf("archive is in use by another process (lock %s)", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), lockFilePermissions); err != nil {
		fl.Unlock() //nolint:errcheck // already failing

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	// The file stays behind; only the lock matters.
	return func() { fl.Unlock() }, nil //nolint:errcheck // closing releases it regardless
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
