package gasops

import "time"

// ConfigSnapshot holds a copy of supervisorConfig fields for test
// assertions in package gasops_test.
type ConfigSnapshot struct {
	StateDir               string
	ServicesFile           string
	ServiceNames           []string
	HealthInterval         time.Duration
	RecoveryInterval       time.Duration
	MetricsInterval        time.Duration
	StartTimeout           time.Duration
	StopTimeout            time.Duration
	PingTimeout            time.Duration
	MaxConsecutiveFailures int
	RecoveryStrategy       RecoveryStrategy
	LogRetention           time.Duration
	LockWait               time.Duration
	HasSampler             bool
	HasPing                bool
}

// ApplyOptionsForTesting applies opts to the default config and returns a
// snapshot of the result.
func ApplyOptionsForTesting(opts ...SupervisorOption) ConfigSnapshot {
	cfg := defaultSupervisorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	snap := ConfigSnapshot{
		StateDir:               cfg.StateDir,
		ServicesFile:           cfg.ServicesFile,
		HealthInterval:         cfg.HealthInterval,
		RecoveryInterval:       cfg.RecoveryInterval,
		MetricsInterval:        cfg.MetricsInterval,
		StartTimeout:           cfg.StartTimeout,
		StopTimeout:            cfg.StopTimeout,
		PingTimeout:            cfg.PingTimeout,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		RecoveryStrategy:       cfg.RecoveryStrategy,
		LogRetention:           cfg.LogRetention,
		LockWait:               cfg.LockWait,
		HasSampler:             cfg.Sampler != nil,
		HasPing:                cfg.Ping != nil,
	}
	for _, s := range cfg.Services {
		snap.ServiceNames = append(snap.ServiceNames, s.Name)
	}
	return snap
}
