package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jiujiugas/gasops/internal/journal"
	"github.com/jiujiugas/gasops/internal/sysmetrics"
)

// CheckHealth runs one health pass over every service.
func (s *Supervisor) CheckHealth(ctx context.Context) {
	for _, svc := range s.all() {
		s.checkService(ctx, svc)
	}
}

func (s *Supervisor) checkService(ctx context.Context, svc *service) {
	if s.loadState() == supervisorShuttingDown {
		return
	}
	svc.opMu.Lock()
	defer svc.opMu.Unlock()

	for _, inst := range svc.instances() {
		if ctx.Err() != nil {
			return
		}
		switch inst.State() {
		case StateRunning, StateUnhealthy:
			s.checkInstance(ctx, svc, inst)
		case StateStarting, StateRestarting, StateStopped, StateFailed:
		}
	}
}

// checkInstance samples one instance, updates its score and restarts it
// when it died or has failed MaxConsecutiveFailures checks in a row.
func (s *Supervisor) checkInstance(ctx context.Context, svc *service, inst *Instance) {
	if inst.hasExited() {
		s.recordError(ctx, inst, "process_exited", errors.New("process exited unexpectedly"))
		s.restartInstance(ctx, svc, inst, "process exited")
		return
	}

	ps, err := s.sampler.Process(ctx, inst.PID())
	if errors.Is(err, sysmetrics.ErrNoProcess) {
		s.recordError(ctx, inst, "process_missing", err)
		s.restartInstance(ctx, svc, inst, "process missing")
		return
	}
	if err != nil {
		Logger().Debug("sample process", "service", svc.cfg.Name, "error", err)
	}

	latency, pingErr := s.ping(ctx, inst.Port(), s.cfg.PingTimeout)

	var problems []string
	if ps.MemoryMB > svc.cfg.MemoryLimitMB {
		problems = append(problems, fmt.Sprintf("memory %.1fMB over limit %.0fMB", ps.MemoryMB, svc.cfg.MemoryLimitMB))
	}
	if ps.CPUPercent > svc.cfg.CPUThreshold {
		problems = append(problems, fmt.Sprintf("cpu %.1f%% over threshold %.0f%%", ps.CPUPercent, svc.cfg.CPUThreshold))
	}
	if pingErr != nil {
		problems = append(problems, "port unreachable: "+pingErr.Error())
	} else if latency > svc.cfg.ResponseTimeLimit {
		problems = append(problems, fmt.Sprintf("response time %s over limit %s", latency, svc.cfg.ResponseTimeLimit))
	}

	failed := len(problems) > 0
	st := inst.applyCheck(ps, latency, failed, time.Now())
	s.recordStatus(ctx, inst.Info())

	if !failed {
		return
	}
	s.recordError(ctx, inst, "health_check", errors.New(strings.Join(problems, "; ")))
	if st.ConsecutiveFailures >= s.cfg.MaxConsecutiveFailures {
		s.restartInstance(ctx, svc, inst,
			fmt.Sprintf("%d consecutive failed checks", st.ConsecutiveFailures))
	}
}

// restartInstance restarts inst in place and journals the attempt. The
// caller holds svc.opMu.
func (s *Supervisor) restartInstance(ctx context.Context, svc *service, inst *Instance, reason string) {
	if s.loadState() == supervisorShuttingDown {
		return
	}
	begin := time.Now()
	err := inst.Restart(ctx, svc.cfg.RestartDelay, s.cfg.StartTimeout, s.cfg.StopTimeout)
	rec := journal.RecoveryRecord{
		Service:    svc.cfg.Name,
		InstanceID: inst.ID(),
		Type:       "restart_instance",
		Success:    err == nil,
		Duration:   time.Since(begin),
		Details:    reason,
	}
	if err != nil {
		rec.Details = reason + ": " + err.Error()
	}
	s.recordRecovery(ctx, rec)
	s.recordStatus(ctx, inst.Info())
}
