package gasops

import "time"

// Default configuration values for NewSupervisor.
const (
	// DefaultStateDirName is the directory under the system temp directory
	// used when WithStateDir is not given.
	DefaultStateDirName = "gasops"

	// DefaultServicesFile is the services file name the CLI looks for in
	// the working directory.
	DefaultServicesFile = "gasops-services.yaml"

	// DefaultRecoveryInterval is how often the recovery pass runs.
	DefaultRecoveryInterval = 30 * time.Second

	// DefaultMetricsInterval is how often host metrics are journaled and
	// old logs are cleaned up.
	DefaultMetricsInterval = 60 * time.Second

	// DefaultHealthInterval is the health check period of services that
	// do not set their own.
	DefaultHealthInterval = 10 * time.Second

	// DefaultStartTimeout bounds how long an instance may take to accept
	// connections. npm dev servers routinely need tens of seconds.
	DefaultStartTimeout = 60 * time.Second

	// DefaultStopTimeout bounds a graceful stop before SIGKILL.
	DefaultStopTimeout = 10 * time.Second

	// DefaultPingTimeout bounds a single health ping connection.
	DefaultPingTimeout = 5 * time.Second

	// DefaultMaxConsecutiveFailures is how many failed health checks in a
	// row restart an instance.
	DefaultMaxConsecutiveFailures = 3

	// DefaultLogRetention is how long service logs and journal rows are kept.
	DefaultLogRetention = 7 * 24 * time.Hour

	// DefaultRecoveryStrategy restarts a degraded service as a whole.
	DefaultRecoveryStrategy = RecoverService
)
