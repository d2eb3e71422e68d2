// Package sysmetrics samples process and host resource usage for the
// supervisor's health checks.
package sysmetrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrNoProcess is returned when the sampled pid does not exist.
const ErrNoProcess = sentinel.Error("process not found")

// ProcessStats is a single sample of one process.
type ProcessStats struct {
	MemoryMB   float64
	CPUPercent float64
	Running    bool
}

// HostStats is a single sample of the whole machine.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	BytesSent     uint64
	BytesRecv     uint64
}

// NetworkIO formats the counters the way the journal stores them.
func (h HostStats) NetworkIO() string {
	return strconv.FormatUint(h.BytesSent, 10) + ":" + strconv.FormatUint(h.BytesRecv, 10)
}

// Sampler reads resource usage.
type Sampler interface {
	Process(ctx context.Context, pid int) (ProcessStats, error)
	Host(ctx context.Context) (HostStats, error)
}

// System samples the local machine through gopsutil.
type System struct {
	// DiskPath is the mount point whose usage is reported; "/" when empty.
	DiskPath string
}

var _ Sampler = System{}

// Process samples pid. CPU is measured since the process started, which
// is what gopsutil reports without a second sample.
func (s System) Process(ctx context.Context, pid int) (ProcessStats, error) {
	if pid <= 0 || pid > int(^uint32(0)>>1) {
		return ProcessStats{}, fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
	}
	p, err := psprocess.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // G115: range checked above
	if err != nil {
		if errors.Is(err, psprocess.ErrorProcessNotRunning) {
			return ProcessStats{}, fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
		}
		return ProcessStats{}, fmt.Errorf("open pid %d: %w", pid, err)
	}

	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return ProcessStats{}, fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
	}

	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("memory of pid %d: %w", pid, err)
	}
	cpuPct, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("cpu of pid %d: %w", pid, err)
	}

	return ProcessStats{
		MemoryMB:   float64(memInfo.RSS) / (1 << 20),
		CPUPercent: cpuPct,
		Running:    true,
	}, nil
}

// Host samples the machine. CPU is measured since the previous call.
func (s System) Host(ctx context.Context) (HostStats, error) {
	var h HostStats

	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostStats{}, fmt.Errorf("host cpu: %w", err)
	}
	if len(pcts) > 0 {
		h.CPUPercent = pcts[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostStats{}, fmt.Errorf("host memory: %w", err)
	}
	h.MemoryPercent = vm.UsedPercent

	path := s.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return HostStats{}, fmt.Errorf("disk usage of %s: %w", path, err)
	}
	h.DiskPercent = du.UsedPercent

	counters, err := net.IOCountersWithContext(ctx, false)
	if err == nil && len(counters) > 0 {
		h.BytesSent = counters[0].BytesSent
		h.BytesRecv = counters[0].BytesRecv
	}
	return h, nil
}
