package gasops

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jiujiugas/gasops/internal/core"
)

// Compile-time interface satisfaction check.
var _ Supervisor = (*supervisorWrapper)(nil)

// supervisorWrapper keeps core.Supervisor in a named field so callers
// cannot type-assert their way to internal methods.
type supervisorWrapper struct {
	sup *core.Supervisor
}

func (w *supervisorWrapper) Initialize(ctx context.Context) error { return w.sup.Initialize(ctx) }
func (w *supervisorWrapper) Run(ctx context.Context) error        { return w.sup.Run(ctx) }
func (w *supervisorWrapper) Register(cfg ServiceConfig) error     { return w.sup.Register(cfg) }
func (w *supervisorWrapper) Status() Status                       { return w.sup.Status() }
func (w *supervisorWrapper) Shutdown() error                      { return w.sup.Shutdown() }

func (w *supervisorWrapper) StartService(ctx context.Context, name string, n int) (int, error) {
	return w.sup.StartService(ctx, name, n)
}

func (w *supervisorWrapper) StopService(ctx context.Context, name string) error {
	return w.sup.StopService(ctx, name)
}

func (w *supervisorWrapper) RestartService(ctx context.Context, name string) error {
	return w.sup.RestartService(ctx, name)
}

func (w *supervisorWrapper) BestInstance(name string) (InstanceInfo, bool, error) {
	return w.sup.BestInstance(name)
}

// defaultSupervisorConfig returns a supervisorConfig populated with the
// package defaults.
func defaultSupervisorConfig() supervisorConfig {
	return supervisorConfig{core.SupervisorConfig{
		StateDir:               filepath.Join(os.TempDir(), DefaultStateDirName),
		HealthInterval:         DefaultHealthInterval,
		RecoveryInterval:       DefaultRecoveryInterval,
		MetricsInterval:        DefaultMetricsInterval,
		StartTimeout:           DefaultStartTimeout,
		StopTimeout:            DefaultStopTimeout,
		PingTimeout:            DefaultPingTimeout,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		RecoveryStrategy:       DefaultRecoveryStrategy,
		LogRetention:           DefaultLogRetention,
	}}
}

// NewSupervisor returns a Supervisor configured by opts. It performs no
// I/O; call Initialize before Run.
//
// Panics if any option receives an invalid value or the resulting
// configuration is invalid.
//
//nolint:ireturn // Returns Supervisor interface by design for testability.
func NewSupervisor(opts ...SupervisorOption) Supervisor {
	cfg := defaultSupervisorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &supervisorWrapper{sup: core.NewSupervisor(cfg.toCoreConfig())}
}
