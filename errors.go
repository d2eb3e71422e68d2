package gasops

import "github.com/jiujiugas/gasops/internal/core"

// Sentinel errors for error inspection with errors.Is.
const (
	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Run before Initialize succeeded.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = core.ErrAlreadyRunning

	// ErrUnknownService is returned for a service name that was never registered.
	ErrUnknownService = core.ErrUnknownService

	// ErrDuplicateService is returned when a service name is registered twice.
	ErrDuplicateService = core.ErrDuplicateService

	// ErrMaxInstances is returned when a start would exceed a service's
	// maximum instance count.
	ErrMaxInstances = core.ErrMaxInstances

	// ErrPortInUse is returned when a foreign process already listens on an
	// instance port.
	ErrPortInUse = core.ErrPortInUse

	// ErrPortClaimed is returned when two services' port ranges overlap.
	ErrPortClaimed = core.ErrPortClaimed

	// ErrLocked is returned by Initialize when another supervisor owns the
	// state directory.
	ErrLocked = core.ErrLocked
)
