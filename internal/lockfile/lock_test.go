package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestAcquire_WritesPID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := Acquire(context.Background(), dir, 0, nil)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatalf("ReadPID() error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}

	l.Release()
	l.Release()
	if _, err := ReadPID(dir); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ReadPID() after release = %v, want %v", err, ErrNotRunning)
	}
}

func TestAcquire_SecondHolderFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Acquire(context.Background(), dir, 0, nil)
	if err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	defer first.Release()

	tests := map[string]time.Duration{
		"no wait":    0,
		"short wait": 120 * time.Millisecond,
	}
	for name, wait := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Acquire(context.Background(), dir, wait, nil); !errors.Is(err, ErrLocked) {
				t.Fatalf("Acquire() = %v, want %v", err, ErrLocked)
			}
		})
	}
}

func TestAcquire_AfterRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Acquire(context.Background(), dir, 0, nil)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	first.Release()

	second, err := Acquire(context.Background(), dir, 0, nil)
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	second.Release()
}

func TestReadPID_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, pidName), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := ReadPID(dir); err == nil {
		t.Fatal("ReadPID() on garbage succeeded")
	}
}

func TestSignal_NotRunning(t *testing.T) {
	t.Parallel()

	if _, err := Signal(t.TempDir(), syscall.SIGTERM); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Signal() = %v, want %v", err, ErrNotRunning)
	}
}

func TestSignal_Self(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := Acquire(context.Background(), dir, 0, nil)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer l.Release()

	// Signal 0 checks existence without delivering anything.
	pid, err := Signal(dir, syscall.Signal(0))
	if err != nil {
		t.Fatalf("Signal() error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Signal() pid = %d, want %d", pid, os.Getpid())
	}
}
