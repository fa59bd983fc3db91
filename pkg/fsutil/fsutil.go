// Package fsutil implements the atomic file writes used for every credential
// store. Writes go to a temp file that is renamed over the target, so a
// failure at any step leaves the previous contents intact. Symlinked targets
// are written through to the real file so the link itself survives.
package fsutil

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SecretMode is the permission applied to files containing credentials.
const SecretMode os.FileMode = 0o600

// maxLinkDepth bounds symlink chains during target resolution.
const maxLinkDepth = 40

// ResolveWriteTarget follows path if it is a symbolic link and returns the
// real file that writes should land on. Relative link targets are resolved
// against the link's own directory. Non-links come back unchanged.
func ResolveWriteTarget(path string) (string, error) {
	current := path
	for depth := 0; depth < maxLinkDepth; depth++ {
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return current, nil
			}
			return "", errors.Wrapf(err, "failed to stat %s", current)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		target, err := os.Readlink(current)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read link %s", current)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}
	return "", errors.Errorf("too many levels of symbolic links resolving %s", path)
}

// WriteAtomic writes data to path via a sibling temp file and rename. The
// parent directory is created if needed and mode is applied before the
// rename so the target never exists with loose permissions.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	target, err := ResolveWriteTarget(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmpPath := target + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file %s", tmpPath)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpPath)
	}

	// OpenFile mode is subject to umask; make the bits explicit.
	if err := os.Chmod(tmpPath, mode); err != nil {
		return errors.Wrapf(err, "failed to set permissions on %s", tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return errors.Wrapf(err, "failed to rename %s over %s", tmpPath, target)
	}

	success = true
	return nil
}

// WriteJSONAtomic marshals v with two-space indentation and writes it
// atomically with the given mode.
func WriteJSONAtomic(path string, v any, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	return WriteAtomic(path, append(data, '\n'), mode)
}

// PreserveMode returns the current permission bits of path, or fallback when
// the file does not exist yet.
func PreserveMode(path string, fallback os.FileMode) os.FileMode {
	target, err := ResolveWriteTarget(path)
	if err != nil {
		return fallback
	}
	info, err := os.Stat(target)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}
