package gasops

import (
	"context"

	"github.com/jiujiugas/gasops/internal/core"
	"github.com/jiujiugas/gasops/internal/sysmetrics"
)

// Supervisor starts, health-checks and recovers the registered services.
//
// Callers follow this lifecycle:
//
//	NewSupervisor → Initialize → Run (or StartService/StopService) → Shutdown
//
// Shutdown is safe to call at any point, including before Initialize.
type Supervisor interface {
	// Initialize locks the state directory, opens the journal, loads the
	// services file and registers every service. Returns ErrLocked when
	// another supervisor owns the state directory. Safe to call again after
	// success; a failed call can be retried.
	Initialize(ctx context.Context) error

	// Run brings every service up to its minimum instance count and keeps
	// the health, recovery and metrics loops going until ctx is cancelled.
	// All instances are stopped before it returns.
	Run(ctx context.Context) error

	// Register adds a service after Initialize.
	Register(cfg ServiceConfig) error

	// StartService starts n more instances of name and reports how many
	// came up. Returns ErrMaxInstances, ErrPortInUse or ErrUnknownService.
	StartService(ctx context.Context, name string, n int) (int, error)

	// StopService stops every instance of name.
	StopService(ctx context.Context, name string) error

	// RestartService stops every instance of name and starts them again.
	RestartService(ctx context.Context, name string) error

	// Status returns a snapshot of every service and instance.
	Status() Status

	// BestInstance returns the instance new work for name should go to:
	// the healthiest running instance, ties broken by fewer requests.
	BestInstance(name string) (InstanceInfo, bool, error)

	// Shutdown stops every instance, closes the journal and releases the
	// state directory. It is idempotent.
	Shutdown() error
}

// ServiceConfig describes one supervised service. Zero fields take the
// defaults of the services file format.
type ServiceConfig = core.ServiceConfig

// Status is a snapshot of the whole supervisor.
type Status = core.Status

// ServiceStatus is a snapshot of one service.
type ServiceStatus = core.ServiceStatus

// InstanceInfo is a snapshot of one instance.
type InstanceInfo = core.InstanceInfo

// InstanceState is the lifecycle state of an instance.
type InstanceState = core.InstanceState

// Instance states.
const (
	StateStarting   = core.StateStarting
	StateRunning    = core.StateRunning
	StateUnhealthy  = core.StateUnhealthy
	StateRestarting = core.StateRestarting
	StateStopped    = core.StateStopped
	StateFailed     = core.StateFailed
)

// Sampler reads process and host resource usage. The default samples the
// local machine through gopsutil.
type Sampler = sysmetrics.Sampler

// ProcessStats is one sample of a service process.
type ProcessStats = sysmetrics.ProcessStats

// HostStats is one sample of the machine.
type HostStats = sysmetrics.HostStats
