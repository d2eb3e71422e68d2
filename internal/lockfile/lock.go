package lockfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/jiujiugas/gasops/internal/fileutil"
	"github.com/jiujiugas/gasops/internal/sentinel"
)

const (
	// ErrLocked is returned when another supervisor holds the lock.
	ErrLocked = sentinel.Error("another supervisor holds the state directory lock")

	// ErrNotRunning is returned when no supervisor pid is recorded.
	ErrNotRunning = sentinel.Error("supervisor is not running")
)

const (
	lockName = "supervisor.lock"
	pidName  = "supervisor.pid"

	retryInterval = 50 * time.Millisecond
)

// Lock is a held supervisor lock.
type Lock struct {
	fl      *flock.Flock
	pidPath string
	log     *slog.Logger
}

// Acquire locks dir and records the current pid. With wait set to zero it
// fails at once with ErrLocked when the lock is held; otherwise it retries
// until wait elapses or ctx is done.
func Acquire(ctx context.Context, dir string, wait time.Duration, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(dir, lockName))
	var (
		locked bool
		err    error
	)
	if wait <= 0 {
		locked, err = fl.TryLock()
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		locked, err = fl.TryLockContext(waitCtx, retryInterval)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire lock %s: %w", fl.Path(), ErrLocked)
	}

	l := &Lock{fl: fl, pidPath: filepath.Join(dir, pidName), log: logger}
	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := fileutil.WriteFileAtomic(l.pidPath, pid, 0o644); err != nil {
		l.Release()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return l, nil
}

// Release removes the pid file and drops the lock. The lock file itself is
// left in place; removing it could race with a new holder.
func (l *Lock) Release() {
	if l == nil || l.fl == nil {
		return
	}
	if err := os.Remove(l.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Debug("remove pid file", "path", l.pidPath, "error", err)
	}
	if err := l.fl.Close(); err != nil {
		l.log.Debug("release lock", "path", l.fl.Path(), "error", err)
	}
	l.fl = nil
}

// ReadPID returns the pid recorded in dir.
func ReadPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidName)) //nolint:gosec // G304: state directory path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parse pid file %q: invalid pid", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Signal delivers sig to the supervisor recorded in dir. A stale pid file
// whose process is gone yields ErrNotRunning.
func Signal(dir string, sig syscall.Signal) (int, error) {
	pid, err := ReadPID(dir)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return pid, fmt.Errorf("pid %d: %w", pid, ErrNotRunning)
		}
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return pid, nil
}
