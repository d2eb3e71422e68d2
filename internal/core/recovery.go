package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jiujiugas/gasops/internal/journal"
)

// Recover runs one recovery pass over every service.
func (s *Supervisor) Recover(ctx context.Context) {
	for _, svc := range s.all() {
		if ctx.Err() != nil || s.loadState() == supervisorShuttingDown {
			return
		}
		s.recoverService(ctx, svc)
	}
}

// recoverService tops svc up to MinInstances and then applies the recovery
// strategy when fewer than half of its live instances are running.
func (s *Supervisor) recoverService(ctx context.Context, svc *service) {
	svc.opMu.Lock()
	defer svc.opMu.Unlock()

	if live, _ := svc.counts(); live < svc.cfg.MinInstances {
		begin := time.Now()
		want := svc.cfg.MinInstances - live
		n, err := s.startLocked(ctx, svc, want)
		rec := journal.RecoveryRecord{
			Service:  svc.cfg.Name,
			Type:     "scale_up",
			Success:  err == nil,
			Duration: time.Since(begin),
			Details:  fmt.Sprintf("started %d of %d instances", n, want),
		}
		if err != nil {
			rec.Details += ": " + err.Error()
		}
		s.recordRecovery(ctx, rec)
	}

	live, running := svc.counts()
	if live == 0 || running*2 >= live {
		return
	}

	Logger().Warn("service degraded", "service", svc.cfg.Name,
		"live", live, "running", running, "strategy", s.cfg.RecoveryStrategy)

	switch s.cfg.RecoveryStrategy {
	case RecoverService:
		begin := time.Now()
		n, err := s.restartLocked(ctx, svc, svc.cfg.MaxInstances)
		rec := journal.RecoveryRecord{
			Service:  svc.cfg.Name,
			Type:     "restart_service",
			Success:  err == nil && n > 0,
			Duration: time.Since(begin),
			Details:  fmt.Sprintf("%d of %d running before restart; %d started", running, live, n),
		}
		if err != nil {
			rec.Details += ": " + err.Error()
		}
		s.recordRecovery(ctx, rec)
		if rec.Success {
			s.resolveErrors(ctx, svc.cfg.Name)
		}

	case RecoverInstance:
		for _, inst := range svc.instances() {
			if st := inst.State(); st.Live() && st != StateRunning {
				s.restartInstance(ctx, svc, inst, "service degraded")
			}
		}

	case RecoverNone:
		s.recordRecovery(ctx, journal.RecoveryRecord{
			Service: svc.cfg.Name,
			Type:    "degraded",
			Details: fmt.Sprintf("%d of %d instances running", running, live),
		})
	}
}

func (s *Supervisor) resolveErrors(ctx context.Context, service string) {
	j := s.journal.Load()
	if j == nil {
		return
	}
	if _, err := j.ResolveErrors(ctx, service); err != nil {
		Logger().Warn("resolve journal errors", "service", service, "error", err)
	}
}
