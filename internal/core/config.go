package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jiujiugas/gasops/internal/journal"
	"github.com/jiujiugas/gasops/internal/servicefile"
	"github.com/jiujiugas/gasops/internal/sysmetrics"
)

// RecoveryStrategy controls what the recovery pass does with a service that
// has fewer than half of its instances running.
type RecoveryStrategy int

const (
	// RecoverService stops every instance of the service, waits RestartDelay
	// and starts MaxInstances fresh ones. This is the default.
	RecoverService RecoveryStrategy = iota

	// RecoverInstance restarts only the instances that are not running and
	// leaves healthy ones alone.
	RecoverInstance

	// RecoverNone only journals the condition. Instance-level restarts by the
	// health pass still happen.
	RecoverNone
)

// IsValid reports whether s is a known strategy.
func (s RecoveryStrategy) IsValid() bool {
	switch s {
	case RecoverService, RecoverInstance, RecoverNone:
		return true
	default:
		return false
	}
}

// String returns the strategy name.
func (s RecoveryStrategy) String() string {
	switch s {
	case RecoverService:
		return "RecoverService"
	case RecoverInstance:
		return "RecoverInstance"
	case RecoverNone:
		return "RecoverNone"
	default:
		return fmt.Sprintf("RecoveryStrategy(%d)", int(s))
	}
}

// ParseRecoveryStrategy maps "service", "instance" or "none" to a strategy.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, error) {
	switch s {
	case "service", "":
		return RecoverService, nil
	case "instance":
		return RecoverInstance, nil
	case "none":
		return RecoverNone, nil
	default:
		return 0, fmt.Errorf("unknown recovery strategy %q", s)
	}
}

// Service defaults, matching the values the shell-era supervisors used.
const (
	DefaultMaxInstances      = 2
	DefaultMinInstances      = 1
	DefaultHealthInterval    = 10 * time.Second
	DefaultRestartDelay      = 5 * time.Second
	DefaultMemoryLimitMB     = 512
	DefaultCPUThreshold      = 80
	DefaultResponseTimeLimit = 5 * time.Second
)

var serviceNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ServiceConfig describes one supervised service. Instance n listens on
// Port+n and receives PORT, SERVICE_NAME, INSTANCE_ID and PERSISTENT_PATH in
// its environment.
type ServiceConfig struct {
	Name              string
	Command           []string
	Port              int
	Dir               string
	Env               map[string]string
	MaxInstances      int
	MinInstances      int
	HealthInterval    time.Duration
	RestartDelay      time.Duration
	MemoryLimitMB     float64
	CPUThreshold      float64
	ResponseTimeLimit time.Duration
	DataDir           string
}

// WithDefaults fills zero fields with the package defaults.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	if c.MaxInstances == 0 {
		c.MaxInstances = DefaultMaxInstances
	}
	if c.MinInstances == 0 {
		c.MinInstances = min(DefaultMinInstances, c.MaxInstances)
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.MemoryLimitMB == 0 {
		c.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if c.CPUThreshold == 0 {
		c.CPUThreshold = DefaultCPUThreshold
	}
	if c.ResponseTimeLimit == 0 {
		c.ResponseTimeLimit = DefaultResponseTimeLimit
	}
	return c
}

// Validate reports every problem with c at once.
func (c ServiceConfig) Validate() error {
	var errs []error

	if !serviceNameRE.MatchString(c.Name) {
		errs = append(errs, fmt.Errorf("service name %q must match %s", c.Name, serviceNameRE))
	}
	if len(c.Command) == 0 || c.Command[0] == "" {
		errs = append(errs, errors.New("command must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", c.Port))
	} else if c.Port+c.MaxInstances-1 > 65535 {
		errs = append(errs, fmt.Errorf("port range %d+%d exceeds 65535", c.Port, c.MaxInstances))
	}
	if c.MaxInstances <= 0 {
		errs = append(errs, fmt.Errorf("max instances must be greater than 0, got %d", c.MaxInstances))
	}
	if c.MinInstances < 0 || c.MinInstances > c.MaxInstances {
		errs = append(errs, fmt.Errorf("min instances must be in 0-%d, got %d", c.MaxInstances, c.MinInstances))
	}
	if c.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("health interval must be greater than 0, got %s", c.HealthInterval))
	}
	if c.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("restart delay must not be negative, got %s", c.RestartDelay))
	}
	if c.MemoryLimitMB <= 0 {
		errs = append(errs, fmt.Errorf("memory limit must be greater than 0, got %v", c.MemoryLimitMB))
	}
	if c.CPUThreshold <= 0 {
		errs = append(errs, fmt.Errorf("cpu threshold must be greater than 0, got %v", c.CPUThreshold))
	}
	if c.ResponseTimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("response time limit must be greater than 0, got %s", c.ResponseTimeLimit))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("service %q: %w", c.Name, errors.Join(errs...))
}

// PortFor returns the port of instance slot n.
func (c ServiceConfig) PortFor(slot int) int {
	return c.Port + slot
}

// ServicesFromFile converts a services file into configs in name order.
// Unset fields stay zero; Register fills them in.
func ServicesFromFile(f servicefile.File) []ServiceConfig {
	out := make([]ServiceConfig, 0, len(f.Services))
	for _, name := range f.Names() {
		s := f.Services[name]
		out = append(out, ServiceConfig{
			Name:              name,
			Command:           s.Command,
			Port:              s.Port,
			Dir:               s.Cwd,
			Env:               s.Env,
			MaxInstances:      s.MaxInstances,
			MinInstances:      s.MinInstances,
			HealthInterval:    time.Duration(s.HealthInterval),
			RestartDelay:      time.Duration(s.RestartDelay),
			MemoryLimitMB:     s.MemoryLimitMB,
			CPUThreshold:      s.CPUThreshold,
			ResponseTimeLimit: time.Duration(s.ResponseTimeLimit),
			DataDir:           s.PersistentDataPath,
		})
	}
	return out
}

// SupervisorConfig holds supervisor-wide settings. It is immutable after
// NewSupervisor.
type SupervisorConfig struct {
	// StateDir holds the lock, pid file, journal and service logs.
	StateDir string

	// ServicesFile is loaded during Initialize when set; a missing file is
	// created with the stock services.
	ServicesFile string

	// Services are registered during Initialize in addition to ServicesFile.
	Services []ServiceConfig

	// HealthInterval is used for services that do not set their own.
	// Zero means DefaultHealthInterval.
	HealthInterval time.Duration

	RecoveryInterval       time.Duration
	MetricsInterval        time.Duration
	StartTimeout           time.Duration
	StopTimeout            time.Duration
	PingTimeout            time.Duration
	MaxConsecutiveFailures int
	RecoveryStrategy       RecoveryStrategy

	// LogRetention is how long service log files and journal rows are kept.
	LogRetention time.Duration

	// LockWait is how long Initialize waits for another supervisor to
	// release the state directory. Zero fails immediately.
	LockWait time.Duration

	// Sampler reads process and host usage; sysmetrics.System when nil.
	Sampler sysmetrics.Sampler

	// Ping measures an instance's response time; netutil.Ping when nil.
	Ping PingFunc
}

// PingFunc connects to a local port and reports the latency.
type PingFunc func(ctx context.Context, port int, timeout time.Duration) (time.Duration, error)

// Validate reports every problem with c at once.
func (c SupervisorConfig) Validate() error {
	var errs []error

	if c.StateDir == "" {
		errs = append(errs, errors.New("state directory must not be empty"))
	}
	if c.RecoveryInterval <= 0 {
		errs = append(errs, fmt.Errorf("recovery interval must be greater than 0, got %s", c.RecoveryInterval))
	}
	if c.MetricsInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics interval must be greater than 0, got %s", c.MetricsInterval))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.PingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ping timeout must be greater than 0, got %s", c.PingTimeout))
	}
	if c.MaxConsecutiveFailures <= 0 {
		errs = append(errs, fmt.Errorf("max consecutive failures must be greater than 0, got %d", c.MaxConsecutiveFailures))
	}
	if !c.RecoveryStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid recovery strategy: %v", c.RecoveryStrategy))
	}
	if c.HealthInterval < 0 {
		errs = append(errs, fmt.Errorf("health interval must not be negative, got %s", c.HealthInterval))
	}
	if c.LogRetention < 0 {
		errs = append(errs, fmt.Errorf("log retention must not be negative, got %s", c.LogRetention))
	}
	for _, s := range c.Services {
		if err := s.WithDefaults().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c SupervisorConfig) logDir() string      { return filepath.Join(c.StateDir, "logs") }
func (c SupervisorConfig) journalPath() string { return filepath.Join(c.StateDir, journal.FileName) }
