package certgen

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	certPerms = 0o644
	keyPerms  = 0o600
	dirPerms  = 0o755
)

// WriteOptions says where an artifact goes. With an empty KeyPath the
// certificate and key are written to CertPath together, certificate first,
// and the file is private.
type WriteOptions struct {
	CertPath string
	KeyPath  string
	Force    bool

	// Confirm is asked before replacing an existing file when Force is
	// false. A nil Confirm refuses.
	Confirm func(path string) (bool, error)
}

// Write stores the artifact. Each file is written atomically.
func Write(a *Artifact, opts WriteOptions) error {
	if opts.CertPath == "" {
		return invalid("output file is required")
	}

	if opts.KeyPath != "" && filepath.Clean(opts.KeyPath) == filepath.Clean(opts.CertPath) {
		return invalid("key file must differ from the output file")
	}

	type output struct {
		path  string
		data  []byte
		perms fs.FileMode
	}

	var outputs []output

	if opts.KeyPath == "" {
		combined := append(append([]byte{}, a.CertPEM...), a.KeyPEM...)
		outputs = []output{{opts.CertPath, combined, keyPerms}}
	} else {
		outputs = []output{
			{opts.CertPath, a.CertPEM, certPerms},
			{opts.KeyPath, a.KeyPEM, keyPerms},
		}
	}

	for _, o := range outputs {
		if err := checkOverwrite(o.path, opts); err != nil {
			return err
		}
	}

	for _, o := range outputs {
		if err := writeAtomic(o.path, o.data, o.perms); err != nil {
			return err
		}
	}

	return nil
}

func checkOverwrite(path string, opts WriteOptions) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFilesystem, path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFilesystem, path)
	}

	if opts.Force {
		return nil
	}

	if opts.Confirm != nil {
		ok, err := opts.Confirm(path)
		if err != nil {
			return fmt.Errorf("certgen: confirming overwrite of %s: %w", path, err)
		}

		if ok {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrOutputExists, path)
}

// writeAtomic writes data to a temp file beside path and renames it over path.
func writeAtomic(path string, data []byte, perms fs.FileMode) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %w", ErrFilesystem, dir, err)
	}

	tmpPath := tmp.Name()
	ok := false

	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perms); err != nil {
		return fmt.Errorf("%w: setting permissions on %s: %w", ErrFilesystem, tmpPath, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrFilesystem, tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %w", ErrFilesystem, tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrFilesystem, tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: renaming into %s: %w", ErrFilesystem, path, err)
	}

	ok = true

	return nil
}
