package core

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jiujiugas/gasops/internal/journal"
)

// Host usage above these percentages triggers cleanup or a warning.
const (
	diskHighPercent   = 90
	memoryHighPercent = 90
)

// CollectMetrics samples the host, journals it together with request
// totals and prunes old logs and journal rows. Log files older than
// LogRetention are removed when the disk is over diskHighPercent.
func (s *Supervisor) CollectMetrics(ctx context.Context) {
	host, err := s.sampler.Host(ctx)
	if err != nil {
		Logger().Warn("sample host", "error", err)
	}

	m := journal.SystemMetrics{
		Time:          time.Now(),
		CPUPercent:    host.CPUPercent,
		MemoryPercent: host.MemoryPercent,
		DiskPercent:   host.DiskPercent,
		NetworkIO:     host.NetworkIO(),
	}
	var errs int64
	for _, svc := range s.all() {
		for _, in := range svc.infos() {
			if in.State.Live() {
				m.ActiveInstances++
			}
			m.TotalRequests += in.Requests
			errs += in.Errors
		}
	}
	if m.TotalRequests > 0 {
		m.ErrorRate = float64(errs) / float64(m.TotalRequests) * 100
	}

	if j := s.journal.Load(); j != nil {
		if err := j.LogMetrics(ctx, m); err != nil {
			Logger().Warn("journal metrics", "error", err)
		}
		if s.cfg.LogRetention > 0 {
			if n, err := j.Prune(ctx, s.cfg.LogRetention); err != nil {
				Logger().Warn("prune journal", "error", err)
			} else if n > 0 {
				Logger().Debug("pruned journal", "rows", n)
			}
		}
	}

	if host.MemoryPercent > memoryHighPercent {
		Logger().Warn("host memory high", "percent", host.MemoryPercent)
	}
	if host.DiskPercent > diskHighPercent {
		Logger().Warn("host disk high", "percent", host.DiskPercent)
		if s.cfg.LogRetention > 0 {
			removed := cleanupLogs(s.cfg.logDir(), s.cfg.LogRetention, time.Now())
			Logger().Info("removed old service logs", "files", removed)
		}
	}
}

// cleanupLogs deletes *.log files in dir last modified more than age
// before now and returns how many were removed.
func cleanupLogs(dir string, age time.Duration, now time.Time) int {
	paths, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || now.Sub(fi.ModTime()) <= age {
			continue
		}
		if err := os.Remove(p); err != nil {
			Logger().Warn("remove old log", "path", p, "error", err)
			continue
		}
		removed++
	}
	return removed
}
