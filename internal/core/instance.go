package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jiujiugas/gasops/internal/fileutil"
	"github.com/jiujiugas/gasops/internal/process"
	"github.com/jiujiugas/gasops/internal/sentinel"
	"github.com/jiujiugas/gasops/internal/sysmetrics"
)

// ErrInstanceStarted is returned when Start is called on a live instance.
const ErrInstanceStarted = sentinel.Error("instance already started")

// readinessInterval is the pause between readiness checks while an
// instance starts.
const readinessInterval = 200 * time.Millisecond

// InstanceState is the lifecycle state of an Instance.
type InstanceState uint32

const (
	StateStarting InstanceState = iota
	StateRunning
	StateUnhealthy
	StateRestarting
	StateStopped
	StateFailed
)

// String returns the lower-case state name stored in the journal.
func (s InstanceState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateUnhealthy:
		return "unhealthy"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Live reports whether the state counts toward a service's instance total.
func (s InstanceState) Live() bool {
	return s == StateStarting || s == StateRunning || s == StateUnhealthy || s == StateRestarting
}

// InstanceStats are the figures the health pass maintains.
type InstanceStats struct {
	MemoryMB            float64
	CPUPercent          float64
	ResponseTime        time.Duration
	Requests            int64
	Errors              int64
	LastCheck           time.Time
	ConsecutiveFailures int
	RecoveryAttempts    int
	HealthScore         float64
}

// InstanceInfo is a point-in-time copy of an instance.
type InstanceInfo struct {
	ID        string
	Service   string
	Slot      int
	Port      int
	PID       int
	State     InstanceState
	StartedAt time.Time
	Uptime    time.Duration
	InstanceStats
}

// Instance is one child process of a service.
//
// lifeMu serializes Start, Stop and Restart. mu guards the fields the health
// pass and Status read, so snapshots never wait on a slow start.
type Instance struct {
	id      string
	cfg     ServiceConfig
	slot    int
	port    int
	logDir  string
	log     *slog.Logger
	state   atomic.Uint32
	lifeMu  sync.Mutex
	proc    *process.BaseProcess // guarded by lifeMu
	mu      sync.Mutex
	pid     int
	exited  <-chan struct{}
	started time.Time
	stats   InstanceStats
}

func newInstance(cfg ServiceConfig, slot int, logDir string) *Instance {
	id := uuid.NewString()
	inst := &Instance{
		id:     id,
		cfg:    cfg,
		slot:   slot,
		port:   cfg.PortFor(slot),
		logDir: logDir,
		log:    Logger().With("service", cfg.Name, "instance", id[:8], "slot", slot),
	}
	inst.state.Store(uint32(StateStopped))
	return inst
}

// ID returns the instance uuid.
func (i *Instance) ID() string { return i.id }

// Port returns the port this instance listens on.
func (i *Instance) Port() int { return i.port }

// State returns the current state.
func (i *Instance) State() InstanceState { return InstanceState(i.state.Load()) }

func (i *Instance) setState(s InstanceState) {
	if old := InstanceState(i.state.Swap(uint32(s))); old != s {
		i.log.Debug("instance state changed", "from", old, "to", s)
	}
}

// Start launches the process and waits until its port accepts connections.
func (i *Instance) Start(ctx context.Context, startTimeout, stopTimeout time.Duration) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()
	return i.startLocked(ctx, startTimeout, stopTimeout)
}

func (i *Instance) startLocked(ctx context.Context, startTimeout, stopTimeout time.Duration) error {
	if i.proc != nil {
		return ErrInstanceStarted
	}
	i.setState(StateStarting)

	if i.cfg.DataDir != "" {
		if err := fileutil.EnsureDir(i.cfg.DataDir); err != nil {
			i.setState(StateFailed)
			return err
		}
	}

	cmd, err := process.BuildCmd(ctx, process.CommandSpec{
		Argv: i.cfg.Command,
		Dir:  i.cfg.Dir,
		Env:  i.env(),
	})
	if err != nil {
		i.setState(StateFailed)
		return fmt.Errorf("build command: %w", err)
	}

	proc := process.NewBaseProcess(fmt.Sprintf("%s-%d", i.cfg.Name, i.slot), i.log, stopTimeout)
	if err := proc.SetupAndStart(cmd, i.logDir); err != nil {
		i.setState(StateFailed)
		return err
	}
	i.proc = &proc

	err = process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      readinessInterval,
		Timeout:       startTimeout,
		Name:          i.cfg.Name,
		Port:          i.port,
		Logger:        i.log,
		ProcessExited: proc.Exited(),
	}, process.TCPCheck(i.port, time.Second))
	if err != nil {
		if stopErr := process.StopCloseAndNil(&i.proc, stopTimeout); stopErr != nil {
			i.log.Warn("stop after failed start", "error", stopErr)
		}
		i.setState(StateFailed)
		return err
	}

	now := time.Now()
	i.mu.Lock()
	i.pid = proc.PID()
	i.exited = proc.Exited()
	i.started = now
	i.stats.ConsecutiveFailures = 0
	i.stats.HealthScore = maxHealthScore
	i.mu.Unlock()

	i.setState(StateRunning)
	i.log.Info("instance started", "pid", proc.PID(), "port", i.port)
	return nil
}

// env is the environment every instance receives on top of the service's.
func (i *Instance) env() map[string]string {
	env := make(map[string]string, len(i.cfg.Env)+4)
	for k, v := range i.cfg.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(i.port)
	env["SERVICE_NAME"] = i.cfg.Name
	env["INSTANCE_ID"] = i.id
	if i.cfg.DataDir != "" {
		env["PERSISTENT_PATH"] = i.cfg.DataDir
	}
	return env
}

// Stop terminates the process. Stopping a stopped instance is a no-op.
func (i *Instance) Stop(timeout time.Duration) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()
	return i.stopLocked(timeout, StateStopped)
}

func (i *Instance) stopLocked(timeout time.Duration, final InstanceState) error {
	err := process.StopCloseAndNil(&i.proc, timeout)
	i.mu.Lock()
	i.pid = 0
	i.exited = nil
	i.mu.Unlock()
	i.setState(final)
	return err
}

// Restart stops the process, waits delay and starts it again on the same
// port. A failed start leaves the instance in StateFailed.
func (i *Instance) Restart(ctx context.Context, delay, startTimeout, stopTimeout time.Duration) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if err := i.stopLocked(stopTimeout, StateRestarting); err != nil {
		i.log.Warn("stop before restart", "error", err)
	}

	i.mu.Lock()
	i.stats.RecoveryAttempts++
	i.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			i.setState(StateStopped)
			return ctx.Err()
		case <-t.C:
		}
	}
	return i.startLocked(ctx, startTimeout, stopTimeout)
}

// hasExited reports whether a started process has died on its own.
func (i *Instance) hasExited() bool {
	i.mu.Lock()
	ch := i.exited
	i.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// PID returns the process id, 0 when not running.
func (i *Instance) PID() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pid
}

// RecordRequest counts one request served by the instance.
func (i *Instance) RecordRequest(failed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.Requests++
	if failed {
		i.stats.Errors++
	}
}

// Info returns a snapshot.
func (i *Instance) Info() InstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	info := InstanceInfo{
		ID:            i.id,
		Service:       i.cfg.Name,
		Slot:          i.slot,
		Port:          i.port,
		PID:           i.pid,
		State:         i.State(),
		StartedAt:     i.started,
		InstanceStats: i.stats,
	}
	if !i.started.IsZero() && info.State.Live() {
		info.Uptime = time.Since(i.started)
	}
	return info
}

// applyCheck stores one health check result. A failed check increments the
// consecutive failure count and marks the instance unhealthy; a passing one
// resets the count. The ping is counted as a request.
func (i *Instance) applyCheck(ps sysmetrics.ProcessStats, latency time.Duration, failed bool, now time.Time) InstanceStats {
	i.mu.Lock()
	i.stats.MemoryMB = ps.MemoryMB
	i.stats.CPUPercent = ps.CPUPercent
	i.stats.ResponseTime = latency
	i.stats.LastCheck = now
	i.stats.Requests++
	if failed {
		i.stats.Errors++
		i.stats.ConsecutiveFailures++
	} else {
		i.stats.ConsecutiveFailures = 0
	}
	i.stats.HealthScore = healthScore(i.cfg, i.stats)
	st := i.stats
	i.mu.Unlock()

	if failed {
		i.setState(StateUnhealthy)
	} else {
		i.setState(StateRunning)
	}
	return st
}
