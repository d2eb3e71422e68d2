package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	got, err := os.ReadFile(path) //nolint:gosec // G304: path is test-controlled
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(got)
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rel []string
	}{
		"single level": {rel: []string{"state"}},
		"nested":       {rel: []string{"state", "logs", "linebot"}},
		"existing":     {rel: nil},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(append([]string{t.TempDir()}, tc.rel...)...)
			if err := EnsureDir(dir); err != nil {
				t.Fatalf("EnsureDir() error: %v", err)
			}
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if !info.IsDir() {
				t.Errorf("%s is not a directory", dir)
			}
		})
	}
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := EnsureDir(filepath.Join(blocker, "child")); err == nil {
		t.Fatal("expected error when a file blocks the path")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dst := filepath.Join(t.TempDir(), "nested", "services.yaml")
	if err := WriteFileAtomic(dst, []byte("services: {}\n"), 0o640); err != nil {
		t.Fatalf("WriteFileAtomic() error: %v", err)
	}
	if got := readFile(t, dst); got != "services: {}\n" {
		t.Errorf("content = %q, want %q", got, "services: {}\n")
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o640 {
		t.Errorf("mode = %o, want %o", got, 0o640)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}
}

func TestWriteFileAtomic_EmptyPath(t *testing.T) {
	t.Parallel()

	if err := WriteFileAtomic("", nil, 0o600); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("error = %v, want %v", err, ErrEmptyPath)
	}
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("九九瓦斯行"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	dst := filepath.Join(dir, "out", "dst.txt")

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error: %v", err)
	}
	if got := readFile(t, dst); got != "九九瓦斯行" {
		t.Errorf("content = %q, want %q", got, "九九瓦斯行")
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}

func TestBackup(t *testing.T) {
	t.Parallel()

	t.Run("existing file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "services.yaml")
		if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
			t.Fatalf("setup: %v", err)
		}
		got, err := Backup(path)
		if err != nil {
			t.Fatalf("Backup() error: %v", err)
		}
		if got != path+BackupSuffix {
			t.Errorf("Backup() = %q, want %q", got, path+BackupSuffix)
		}
		if content := readFile(t, got); content != "v1" {
			t.Errorf("backup content = %q, want %q", content, "v1")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		got, err := Backup(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Backup() error: %v", err)
		}
		if got != "" {
			t.Errorf("Backup() = %q, want empty", got)
		}
	})
}

func TestExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if !Exists(dir) {
		t.Errorf("Exists(%q) = false, want true", dir)
	}
	if Exists(filepath.Join(dir, "nope")) {
		t.Error("Exists on missing path = true, want false")
	}
}
