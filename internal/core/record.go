package core

import (
	"context"
	"time"

	"github.com/jiujiugas/gasops/internal/journal"
)

// Journal writes never fail a supervisor operation; problems are logged.

func (s *Supervisor) recordStatus(ctx context.Context, in InstanceInfo) {
	j := s.journal.Load()
	if j == nil {
		return
	}
	err := j.LogStatus(ctx, journal.StatusRecord{
		Service:     in.Service,
		InstanceID:  in.ID,
		PID:         in.PID,
		Port:        in.Port,
		Status:      in.State.String(),
		MemoryMB:    in.MemoryMB,
		CPUPercent:  in.CPUPercent,
		Requests:    in.Requests,
		Errors:      in.Errors,
		HealthScore: in.HealthScore,
		StartedAt:   in.StartedAt,
		LastCheck:   in.LastCheck,
		Uptime:      in.Uptime,
	})
	if err != nil {
		Logger().Warn("journal status", "service", in.Service, "error", err)
	}
}

func (s *Supervisor) recordError(ctx context.Context, inst *Instance, kind string, cause error) {
	Logger().Warn("service error", "service", inst.cfg.Name, "instance", inst.id,
		"type", kind, "error", cause)
	j := s.journal.Load()
	if j == nil {
		return
	}
	err := j.LogError(ctx, journal.ErrorRecord{
		Time:       time.Now(),
		Service:    inst.cfg.Name,
		InstanceID: inst.id,
		Type:       kind,
		Message:    cause.Error(),
	})
	if err != nil {
		Logger().Warn("journal error", "service", inst.cfg.Name, "error", err)
	}
}

func (s *Supervisor) recordRecovery(ctx context.Context, r journal.RecoveryRecord) {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	Logger().Info("recovery", "service", r.Service, "type", r.Type,
		"success", r.Success, "duration", r.Duration)
	j := s.journal.Load()
	if j == nil {
		return
	}
	if err := j.LogRecovery(ctx, r); err != nil {
		Logger().Warn("journal recovery", "service", r.Service, "error", err)
	}
}
