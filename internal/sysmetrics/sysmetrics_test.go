package sysmetrics

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestSystem_ProcessSelf(t *testing.T) {
	t.Parallel()

	got, err := System{}.Process(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("Process(self) error: %v", err)
	}
	if !got.Running {
		t.Error("Running = false for own pid")
	}
	if got.MemoryMB <= 0 {
		t.Errorf("MemoryMB = %v, want > 0", got.MemoryMB)
	}
}

func TestSystem_ProcessMissing(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"zero":     0,
		"negative": -5,
		"unused":   1 << 30,
	}
	for name, pid := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := (System{}).Process(context.Background(), pid); !errors.Is(err, ErrNoProcess) {
				t.Fatalf("Process(%d) = %v, want %v", pid, err, ErrNoProcess)
			}
		})
	}
}

func TestSystem_Host(t *testing.T) {
	t.Parallel()

	h, err := System{DiskPath: os.TempDir()}.Host(context.Background())
	if err != nil {
		t.Fatalf("Host() error: %v", err)
	}
	if h.MemoryPercent <= 0 || h.MemoryPercent > 100 {
		t.Errorf("MemoryPercent = %v, want (0, 100]", h.MemoryPercent)
	}
	if h.DiskPercent < 0 || h.DiskPercent > 100 {
		t.Errorf("DiskPercent = %v, want [0, 100]", h.DiskPercent)
	}
}

func TestHostStats_NetworkIO(t *testing.T) {
	t.Parallel()

	if got := (HostStats{BytesSent: 12, BytesRecv: 34}).NetworkIO(); got != "12:34" {
		t.Errorf("NetworkIO() = %q, want %q", got, "12:34")
	}
}
