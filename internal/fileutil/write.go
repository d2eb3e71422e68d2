package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrEmptyPath is returned when a helper is called with an empty path.
const ErrEmptyPath = sentinel.Error("path must not be empty")

// BackupSuffix is appended to a file name by Backup.
const BackupSuffix = ".bak"

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path. Readers never observe a partially written file.
// Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) (retErr error) {
	if path == "" {
		return ErrEmptyPath
	}
	if err := EnsureDirForFile(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst atomically, keeping the source permissions.
func CopyFile(src, dst string) (retErr error) {
	if src == "" || dst == "" {
		return ErrEmptyPath
	}

	in, err := os.Open(src) //nolint:gosec // G304: paths come from supervisor configuration
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close source: %w", closeErr)
		}
	}()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	return WriteFileAtomic(dst, data, info.Mode().Perm())
}

// Backup copies path to path+BackupSuffix and returns the backup path.
// A missing path is not an error; Backup returns "" in that case.
func Backup(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	dst := path + BackupSuffix
	if err := CopyFile(path, dst); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return dst, nil
}
