package gasops

import (
	"context"
	"fmt"
	"time"

	"github.com/jiujiugas/gasops/internal/core"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("gasops: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("gasops: %s must not be empty", name))
	}
}

// SupervisorOption configures a Supervisor during NewSupervisor.
//
// With* functions panic on invalid input. Option values are normally
// constants or flags validated elsewhere, so an invalid value is a
// programmer error, in the manner of regexp.MustCompile.
type SupervisorOption func(*supervisorConfig)

// WithStateDir sets the directory holding the lock, pid file, journal and
// service logs.
//
// Default: filepath.Join(os.TempDir(), DefaultStateDirName).
//
// Panics if dir is empty.
func WithStateDir(dir string) SupervisorOption {
	requireNonEmpty("state directory", dir)
	return func(c *supervisorConfig) {
		c.StateDir = dir
	}
}

// WithServicesFile loads services from a YAML file during Initialize. A
// missing file is created with the stock services.
// Panics if path is empty.
func WithServicesFile(path string) SupervisorOption {
	requireNonEmpty("services file path", path)
	return func(c *supervisorConfig) {
		c.ServicesFile = path
	}
}

// WithService registers cfg during Initialize. It may be given more than
// once. The config is validated by NewSupervisor.
func WithService(cfg ServiceConfig) SupervisorOption {
	return func(c *supervisorConfig) {
		c.Services = append(c.Services, cfg)
	}
}

// WithHealthInterval sets the health check period for services that do not
// set their own.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithHealthInterval(d time.Duration) SupervisorOption {
	requirePositive("health interval", d)
	return func(c *supervisorConfig) {
		c.HealthInterval = d
	}
}

// WithRecoveryInterval sets how often the recovery pass runs.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithRecoveryInterval(d time.Duration) SupervisorOption {
	requirePositive("recovery interval", d)
	return func(c *supervisorConfig) {
		c.RecoveryInterval = d
	}
}

// WithMetricsInterval sets how often host metrics are journaled.
//
// Default: 60 seconds.
//
// Panics if d <= 0.
func WithMetricsInterval(d time.Duration) SupervisorOption {
	requirePositive("metrics interval", d)
	return func(c *supervisorConfig) {
		c.MetricsInterval = d
	}
}

// WithStartTimeout sets how long an instance may take to accept
// connections on its port.
//
// Default: 60 seconds.
//
// Panics if d <= 0.
func WithStartTimeout(d time.Duration) SupervisorOption {
	requirePositive("start timeout", d)
	return func(c *supervisorConfig) {
		c.StartTimeout = d
	}
}

// WithStopTimeout sets how long a stop waits before the process is killed.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) SupervisorOption {
	requirePositive("stop timeout", d)
	return func(c *supervisorConfig) {
		c.StopTimeout = d
	}
}

// WithPingTimeout bounds a single health ping connection.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithPingTimeout(d time.Duration) SupervisorOption {
	requirePositive("ping timeout", d)
	return func(c *supervisorConfig) {
		c.PingTimeout = d
	}
}

// WithMaxConsecutiveFailures sets how many failed health checks in a row
// restart an instance.
//
// Default: 3.
//
// Panics if n <= 0.
func WithMaxConsecutiveFailures(n int) SupervisorOption {
	requirePositive("max consecutive failures", n)
	return func(c *supervisorConfig) {
		c.MaxConsecutiveFailures = n
	}
}

// WithRecoveryStrategy sets how degraded services are recovered.
//
// Default: RecoverService.
//
// Panics if s is not a known strategy.
func WithRecoveryStrategy(s RecoveryStrategy) SupervisorOption {
	if !s.IsValid() {
		panic(fmt.Sprintf("gasops: invalid recovery strategy: %v", s))
	}
	return func(c *supervisorConfig) {
		c.RecoveryStrategy = s
	}
}

// WithLogRetention sets how long service logs and journal rows are kept.
// Zero keeps them forever.
//
// Default: 7 days.
//
// Panics if d < 0.
func WithLogRetention(d time.Duration) SupervisorOption {
	if d < 0 {
		panic(fmt.Sprintf("gasops: log retention must not be negative, got %v", d))
	}
	return func(c *supervisorConfig) {
		c.LogRetention = d
	}
}

// WithLockWait makes Initialize wait up to d for another supervisor to
// release the state directory instead of failing at once with ErrLocked.
//
// Panics if d <= 0.
func WithLockWait(d time.Duration) SupervisorOption {
	requirePositive("lock wait", d)
	return func(c *supervisorConfig) {
		c.LockWait = d
	}
}

// WithSampler replaces the gopsutil resource sampler.
// Panics if s is nil.
func WithSampler(s Sampler) SupervisorOption {
	if s == nil {
		panic("gasops: sampler must not be nil")
	}
	return func(c *supervisorConfig) {
		c.Sampler = s
	}
}

// WithPing replaces the TCP connect ping used for response times.
// Panics if ping is nil.
func WithPing(ping func(ctx context.Context, port int, timeout time.Duration) (time.Duration, error)) SupervisorOption {
	if ping == nil {
		panic("gasops: ping must not be nil")
	}
	return func(c *supervisorConfig) {
		c.Ping = core.PingFunc(ping)
	}
}
