package core

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jiujiugas/gasops/internal/servicefile"
)

func validService() ServiceConfig {
	return ServiceConfig{
		Name:    "linebot",
		Command: []string{"python", "main.py"},
		Port:    8888,
	}.WithDefaults()
}

func validSupervisorConfig(t *testing.T) SupervisorConfig {
	t.Helper()
	return SupervisorConfig{
		StateDir:               t.TempDir(),
		RecoveryInterval:       30 * time.Second,
		MetricsInterval:        time.Minute,
		StartTimeout:           10 * time.Second,
		StopTimeout:            5 * time.Second,
		PingTimeout:            time.Second,
		MaxConsecutiveFailures: 3,
		LogRetention:           7 * 24 * time.Hour,
	}
}

func TestServiceConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	got := ServiceConfig{Name: "voice", Command: []string{"python"}, Port: 8889}.WithDefaults()
	want := ServiceConfig{
		Name:              "voice",
		Command:           []string{"python"},
		Port:              8889,
		MaxInstances:      DefaultMaxInstances,
		MinInstances:      DefaultMinInstances,
		HealthInterval:    DefaultHealthInterval,
		RestartDelay:      DefaultRestartDelay,
		MemoryLimitMB:     DefaultMemoryLimitMB,
		CPUThreshold:      DefaultCPUThreshold,
		ResponseTimeLimit: DefaultResponseTimeLimit,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("WithDefaults() mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceConfig_WithDefaultsKeepsValues(t *testing.T) {
	t.Parallel()

	in := validService()
	in.MaxInstances = 3
	in.MinInstances = 2
	in.RestartDelay = time.Second
	if diff := cmp.Diff(in, in.WithDefaults()); diff != "" {
		t.Fatalf("WithDefaults() changed set fields (-want +got):\n%s", diff)
	}
}

func TestServiceConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := validService().Validate(); err != nil {
		t.Fatalf("valid service: unexpected error: %v", err)
	}

	tests := map[string]struct {
		modify       func(c *ServiceConfig)
		wantContains string
	}{
		"upper case name": {
			modify:       func(c *ServiceConfig) { c.Name = "LineBot" },
			wantContains: "service name",
		},
		"empty name": {
			modify:       func(c *ServiceConfig) { c.Name = "" },
			wantContains: "service name",
		},
		"empty command": {
			modify:       func(c *ServiceConfig) { c.Command = nil },
			wantContains: "command must not be empty",
		},
		"zero port": {
			modify:       func(c *ServiceConfig) { c.Port = 0 },
			wantContains: "port must be in 1-65535",
		},
		"port range overflow": {
			modify:       func(c *ServiceConfig) { c.Port = 65535; c.MaxInstances = 3 },
			wantContains: "exceeds 65535",
		},
		"zero max instances": {
			modify:       func(c *ServiceConfig) { c.MaxInstances = 0 },
			wantContains: "max instances",
		},
		"min above max": {
			modify:       func(c *ServiceConfig) { c.MinInstances = 5 },
			wantContains: "min instances",
		},
		"zero health interval": {
			modify:       func(c *ServiceConfig) { c.HealthInterval = 0 },
			wantContains: "health interval",
		},
		"negative restart delay": {
			modify:       func(c *ServiceConfig) { c.RestartDelay = -time.Second },
			wantContains: "restart delay",
		},
		"zero memory limit": {
			modify:       func(c *ServiceConfig) { c.MemoryLimitMB = 0 },
			wantContains: "memory limit",
		},
		"zero cpu threshold": {
			modify:       func(c *ServiceConfig) { c.CPUThreshold = 0 },
			wantContains: "cpu threshold",
		},
		"zero response time limit": {
			modify:       func(c *ServiceConfig) { c.ResponseTimeLimit = 0 },
			wantContains: "response time limit",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validService()
			tc.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tc.wantContains)
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Fatalf("Validate() = %q, want it to contain %q", err, tc.wantContains)
			}
		})
	}
}

func TestServiceConfig_ValidateReportsAll(t *testing.T) {
	t.Parallel()

	err := ServiceConfig{Name: "x"}.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"command", "port", "max instances", "health interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, want it to mention %q", err, want)
		}
	}
}

func TestServiceConfig_PortFor(t *testing.T) {
	t.Parallel()

	cfg := validService()
	for slot, want := range []int{8888, 8889, 8890} {
		if got := cfg.PortFor(slot); got != want {
			t.Errorf("PortFor(%d) = %d, want %d", slot, got, want)
		}
	}
}

func TestParseRecoveryStrategy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		want    RecoveryStrategy
		wantErr bool
	}{
		"empty":    {in: "", want: RecoverService},
		"service":  {in: "service", want: RecoverService},
		"instance": {in: "instance", want: RecoverInstance},
		"none":     {in: "none", want: RecoverNone},
		"unknown":  {in: "reboot", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRecoveryStrategy(tc.in)
			if tc.wantErr != (err != nil) {
				t.Fatalf("ParseRecoveryStrategy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("ParseRecoveryStrategy(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestRecoveryStrategy_String(t *testing.T) {
	t.Parallel()

	tests := map[RecoveryStrategy]string{
		RecoverService:       "RecoverService",
		RecoverInstance:      "RecoverInstance",
		RecoverNone:          "RecoverNone",
		RecoveryStrategy(42): "RecoveryStrategy(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
		if got, wantValid := s.IsValid(), s != 42; got != wantValid {
			t.Errorf("%v.IsValid() = %v, want %v", s, got, wantValid)
		}
	}
}

func TestSupervisorConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := validSupervisorConfig(t).Validate(); err != nil {
		t.Fatalf("valid config: unexpected error: %v", err)
	}

	tests := map[string]struct {
		modify       func(c *SupervisorConfig)
		wantContains string
	}{
		"empty state dir": {
			modify:       func(c *SupervisorConfig) { c.StateDir = "" },
			wantContains: "state directory",
		},
		"zero recovery interval": {
			modify:       func(c *SupervisorConfig) { c.RecoveryInterval = 0 },
			wantContains: "recovery interval",
		},
		"zero metrics interval": {
			modify:       func(c *SupervisorConfig) { c.MetricsInterval = 0 },
			wantContains: "metrics interval",
		},
		"zero start timeout": {
			modify:       func(c *SupervisorConfig) { c.StartTimeout = 0 },
			wantContains: "start timeout",
		},
		"zero stop timeout": {
			modify:       func(c *SupervisorConfig) { c.StopTimeout = 0 },
			wantContains: "stop timeout",
		},
		"zero ping timeout": {
			modify:       func(c *SupervisorConfig) { c.PingTimeout = 0 },
			wantContains: "ping timeout",
		},
		"zero max failures": {
			modify:       func(c *SupervisorConfig) { c.MaxConsecutiveFailures = 0 },
			wantContains: "max consecutive failures",
		},
		"bad strategy": {
			modify:       func(c *SupervisorConfig) { c.RecoveryStrategy = 9 },
			wantContains: "recovery strategy",
		},
		"negative health interval": {
			modify:       func(c *SupervisorConfig) { c.HealthInterval = -time.Second },
			wantContains: "health interval",
		},
		"negative retention": {
			modify:       func(c *SupervisorConfig) { c.LogRetention = -time.Hour },
			wantContains: "log retention",
		},
		"invalid service": {
			modify:       func(c *SupervisorConfig) { c.Services = []ServiceConfig{{Name: "bad", Port: 80}} },
			wantContains: `service "bad"`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validSupervisorConfig(t)
			tc.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tc.wantContains)
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Fatalf("Validate() = %q, want it to contain %q", err, tc.wantContains)
			}
		})
	}
}

func TestServicesFromFile(t *testing.T) {
	t.Parallel()

	got := ServicesFromFile(servicefile.Default())
	if len(got) != 3 {
		t.Fatalf("len(ServicesFromFile(Default())) = %d, want 3", len(got))
	}
	names := make([]string, len(got))
	for i, c := range got {
		names[i] = c.Name
		if err := c.WithDefaults().Validate(); err != nil {
			t.Errorf("service %q: Validate() = %v", c.Name, err)
		}
	}
	if diff := cmp.Diff([]string{"linebot", "nextjs", "voice"}, names); diff != "" {
		t.Fatalf("service order mismatch (-want +got):\n%s", diff)
	}
	if got[0].Port != 8888 || got[0].MaxInstances != 1 {
		t.Errorf("linebot = port %d max %d, want port 8888 max 1", got[0].Port, got[0].MaxInstances)
	}
}

func TestServicesFromFile_Durations(t *testing.T) {
	t.Parallel()

	f, err := servicefile.Parse([]byte(`
services:
  voice:
    command: [python, voice.py]
    port: 8889
    health_check_interval: 10
    restart_delay: 5
    response_time_limit: 5000
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	got := ServicesFromFile(f)[0]
	if got.HealthInterval != 10*time.Second {
		t.Errorf("HealthInterval = %v, want 10s", got.HealthInterval)
	}
	if got.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want 5s", got.RestartDelay)
	}
	if got.ResponseTimeLimit != 5*time.Second {
		t.Errorf("ResponseTimeLimit = %v, want 5s", got.ResponseTimeLimit)
	}
}

func TestNewSupervisor_PanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("NewSupervisor did not panic")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "invalid supervisor config") {
			t.Fatalf("panic = %v, want invalid supervisor config", r)
		}
	}()
	NewSupervisor(SupervisorConfig{})
}
