package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrAlreadyStarted is returned when SetupAndStart is called on a running process.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when the command has no resolved path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyLogDir is returned when SetupAndStart is called without a log directory.
const ErrEmptyLogDir = sentinel.Error("log directory must not be empty")

// BaseProcess manages one started command.
//
// BaseProcess is not safe for concurrent use; the owning service instance
// serializes calls with its own mutex.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // cmd.Wait result, consumed once by Stop
	exited      <-chan struct{} // closed when the process exits
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // used by Close when Stop was skipped
}

// NewBaseProcess returns an unstarted BaseProcess. A nil logger falls back to
// slog.Default() and a zero stopTimeout to DefaultStopTimeout. It panics on
// an empty name.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("gasops: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// SetupAndStart opens the log files in logDir, wires them to the command's
// stdout and stderr, and starts it. cmd.Dir is left as the caller set it.
// Exactly one goroutine calls cmd.Wait for the lifetime of the process.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, logDir string) error {
	switch {
	case cmd == nil:
		return ErrNilCmd
	case cmd.Path == "":
		return ErrEmptyCmdPath
	case logDir == "":
		return ErrEmptyLogDir
	case b.cmd != nil:
		return ErrAlreadyStarted
	}

	configureSysProcAttr(cmd)

	logFiles, err := StartCmd(cmd, logDir, b.name)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	b.logFiles = logFiles

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	b.log.Debug("process started", "process", b.name, "pid", cmd.Process.Pid, "dir", cmd.Dir)
	return nil
}

// Stop terminates the process, waiting at most timeout plus the kill drain.
// IsStarted reports false afterwards even when Stop fails. Stopping an
// unstarted process is a no-op.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.reset()
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.reset()
	return err
}

func (b *BaseProcess) reset() {
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
}

// Close releases the log files. A process that is still running is stopped
// first with the configured stop timeout.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process closed without Stop; stopping now", "process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("stop during close failed", "process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Logger returns the process logger.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel closed when the process exits, or nil when the
// process is not running.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// HasExited reports whether a started process has already exited.
func (b *BaseProcess) HasExited() bool {
	if b.exited == nil {
		return false
	}
	select {
	case <-b.exited:
		return true
	default:
		return false
	}
}

// IsStarted reports whether the process has been started and not stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// PID returns the operating system pid, or 0 when not started.
func (b *BaseProcess) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// LogPaths returns the stdout and stderr log file paths.
func (b *BaseProcess) LogPaths() (stdout, stderr string) {
	return b.logFiles.StdoutPath(), b.logFiles.StderrPath()
}
