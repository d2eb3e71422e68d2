package gasops_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jiujiugas/gasops"
)

// panicTestCase defines a test case for option validation panic tests.
type panicTestCase struct {
	name     string
	panics   bool
	panicMsg string
	fn       func()
}

// requirePanics calls fn and verifies it panics (or not) with the expected message.
func requirePanics(t *testing.T, shouldPanic bool, wantMsg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if shouldPanic && r == nil {
			t.Fatal("expected panic but didn't get one")
		}
		if !shouldPanic && r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
		if shouldPanic && r != nil {
			msg := fmt.Sprint(r)
			if msg != wantMsg {
				t.Fatalf("expected panic message %q, got %q", wantMsg, msg)
			}
		}
	}()
	fn()
}

func runPanicTests(t *testing.T, tests []panicTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requirePanics(t, tt.panics, tt.panicMsg, tt.fn)
		})
	}
}

func TestDurationOptionsPanicOnInvalid(t *testing.T) {
	t.Parallel()

	options := map[string]func(time.Duration) gasops.SupervisorOption{
		"health interval":   gasops.WithHealthInterval,
		"recovery interval": gasops.WithRecoveryInterval,
		"metrics interval":  gasops.WithMetricsInterval,
		"start timeout":     gasops.WithStartTimeout,
		"stop timeout":      gasops.WithStopTimeout,
		"ping timeout":      gasops.WithPingTimeout,
		"lock wait":         gasops.WithLockWait,
	}

	for name, opt := range options {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runPanicTests(t, []panicTestCase{
				{
					name:     "zero",
					panics:   true,
					panicMsg: "gasops: " + name + " must be greater than 0, got 0s",
					fn:       func() { opt(0) },
				},
				{
					name:     "negative",
					panics:   true,
					panicMsg: "gasops: " + name + " must be greater than 0, got -1s",
					fn:       func() { opt(-time.Second) },
				},
				{name: "valid", fn: func() { opt(time.Second) }},
			})
		})
	}
}

func TestOtherOptionsPanicOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "empty state dir",
			panics:   true,
			panicMsg: "gasops: state directory must not be empty",
			fn:       func() { gasops.WithStateDir("") },
		},
		{
			name:     "empty services file",
			panics:   true,
			panicMsg: "gasops: services file path must not be empty",
			fn:       func() { gasops.WithServicesFile("") },
		},
		{
			name:     "zero max failures",
			panics:   true,
			panicMsg: "gasops: max consecutive failures must be greater than 0, got 0",
			fn:       func() { gasops.WithMaxConsecutiveFailures(0) },
		},
		{
			name:     "unknown strategy",
			panics:   true,
			panicMsg: "gasops: invalid recovery strategy: RecoveryStrategy(7)",
			fn:       func() { gasops.WithRecoveryStrategy(gasops.RecoveryStrategy(7)) },
		},
		{
			name:     "negative retention",
			panics:   true,
			panicMsg: "gasops: log retention must not be negative, got -1h0m0s",
			fn:       func() { gasops.WithLogRetention(-time.Hour) },
		},
		{name: "zero retention", fn: func() { gasops.WithLogRetention(0) }},
		{
			name:     "nil sampler",
			panics:   true,
			panicMsg: "gasops: sampler must not be nil",
			fn:       func() { gasops.WithSampler(nil) },
		},
		{
			name:     "nil ping",
			panics:   true,
			panicMsg: "gasops: ping must not be nil",
			fn:       func() { gasops.WithPing(nil) },
		},
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	got := gasops.ApplyOptionsForTesting()
	want := gasops.ConfigSnapshot{
		StateDir:               filepath.Join(os.TempDir(), gasops.DefaultStateDirName),
		HealthInterval:         gasops.DefaultHealthInterval,
		RecoveryInterval:       gasops.DefaultRecoveryInterval,
		MetricsInterval:        gasops.DefaultMetricsInterval,
		StartTimeout:           gasops.DefaultStartTimeout,
		StopTimeout:            gasops.DefaultStopTimeout,
		PingTimeout:            gasops.DefaultPingTimeout,
		MaxConsecutiveFailures: gasops.DefaultMaxConsecutiveFailures,
		RecoveryStrategy:       gasops.DefaultRecoveryStrategy,
		LogRetention:           gasops.DefaultLogRetention,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("default config mismatch (-want +got):\n%s", diff)
	}
}

type nopSampler struct{}

func (nopSampler) Process(context.Context, int) (gasops.ProcessStats, error) {
	return gasops.ProcessStats{}, nil
}

func (nopSampler) Host(context.Context) (gasops.HostStats, error) {
	return gasops.HostStats{}, nil
}

func TestOptionsApply(t *testing.T) {
	t.Parallel()

	got := gasops.ApplyOptionsForTesting(
		gasops.WithStateDir("/var/lib/gasops"),
		gasops.WithServicesFile("services.yaml"),
		gasops.WithService(gasops.ServiceConfig{Name: "linebot"}),
		gasops.WithService(gasops.ServiceConfig{Name: "voice"}),
		gasops.WithHealthInterval(2*time.Second),
		gasops.WithRecoveryInterval(3*time.Second),
		gasops.WithMetricsInterval(4*time.Second),
		gasops.WithStartTimeout(5*time.Second),
		gasops.WithStopTimeout(6*time.Second),
		gasops.WithPingTimeout(7*time.Second),
		gasops.WithMaxConsecutiveFailures(5),
		gasops.WithRecoveryStrategy(gasops.RecoverInstance),
		gasops.WithLogRetention(time.Hour),
		gasops.WithLockWait(time.Minute),
		gasops.WithSampler(nopSampler{}),
		gasops.WithPing(func(context.Context, int, time.Duration) (time.Duration, error) { return 0, nil }),
	)
	want := gasops.ConfigSnapshot{
		StateDir:               "/var/lib/gasops",
		ServicesFile:           "services.yaml",
		ServiceNames:           []string{"linebot", "voice"},
		HealthInterval:         2 * time.Second,
		RecoveryInterval:       3 * time.Second,
		MetricsInterval:        4 * time.Second,
		StartTimeout:           5 * time.Second,
		StopTimeout:            6 * time.Second,
		PingTimeout:            7 * time.Second,
		MaxConsecutiveFailures: 5,
		RecoveryStrategy:       gasops.RecoverInstance,
		LogRetention:           time.Hour,
		LockWait:               time.Minute,
		HasSampler:             true,
		HasPing:                true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}
