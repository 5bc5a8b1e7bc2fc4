package safefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if needed and rejects a symlinked one.
func EnsureDir(path string, perm os.FileMode) (string, error) {
	abs, err := absClean(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, perm); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := requireRealDir(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// TooLargeError reports a file over the read limit.
type TooLargeError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: size %d exceeds %d bytes", e.Path, e.Size, e.Limit)
}

// ReadFileLimited reads a regular file of at most limit bytes. It refuses
// symlinks and non-regular files so a scan cannot be pointed at devices or
// FIFOs, and it never reads past limit even if the file grows meanwhile.
func ReadFileLimited(path string, limit int64) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing symlinked file: %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if limit > 0 && info.Size() > limit {
		return nil, &TooLargeError{Path: path, Size: info.Size(), Limit: limit}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &TooLargeError{Path: path, Size: int64(len(data)), Limit: limit}
	}
	return data, nil
}

// WriteFileAtomic replaces path with data via a temporary sibling and a
// rename, so readers never see a half-written report and a symlink planted
// at path is refused rather than followed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	target, err := absClean(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := requireRealDir(dir); err != nil {
		return err
	}
	switch info, err := os.Lstat(target); {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return fmt.Errorf("refusing symlinked file target: %s", target)
	case err == nil && info.IsDir():
		return fmt.Errorf("refusing directory write target: %s", target)
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("stat write target: %w", err)
	}

	tmpPath, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// writeTemp writes data to a fresh .guardian-tmp-* file in dir and returns
// its path. The file is removed on any failure.
func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, ".guardian-tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}
	name := tmp.Name()
	err = func() error {
		if _, err := tmp.Write(data); err != nil {
			return fmt.Errorf("write temporary file: %w", err)
		}
		if err := tmp.Chmod(perm); err != nil {
			return fmt.Errorf("chmod temporary file: %w", err)
		}
		return tmp.Sync()
	}()
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temporary file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func absClean(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// requireRealDir fails unless path is an existing directory reached without
// a symlink as its last element.
func requireRealDir(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlinked path: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}
