package process

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestWaitReady_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg  WaitReadyConfig
		want error
	}{
		"empty name":        {cfg: WaitReadyConfig{Interval: time.Millisecond, Timeout: time.Second}, want: ErrEmptyName},
		"zero interval":     {cfg: WaitReadyConfig{Name: "svc", Timeout: time.Second}, want: ErrIntervalNotPositive},
		"negative interval": {cfg: WaitReadyConfig{Name: "svc", Interval: -time.Second, Timeout: time.Second}, want: ErrIntervalNotPositive},
		"zero timeout":      {cfg: WaitReadyConfig{Name: "svc", Interval: time.Millisecond}, want: ErrTimeoutNotPositive},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := WaitReady(context.Background(), tc.cfg, func(context.Context, int) (bool, error) {
				t.Error("check called for invalid config")
				return false, nil
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("WaitReady() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWaitReady_ReadyOnThirdAttempt(t *testing.T) {
	t.Parallel()

	var attempts int
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		Name:     "linebot",
		Port:     8888,
	}, func(_ context.Context, attempt int) (bool, error) {
		attempts = attempt
		return attempt == 3, nil
	})
	if err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWaitReady_ProcessExited(t *testing.T) {
	t.Parallel()

	exited := make(chan struct{})
	close(exited)
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval:      time.Millisecond,
		Timeout:       time.Second,
		Name:          "voice",
		ProcessExited: exited,
	}, func(context.Context, int) (bool, error) {
		t.Error("check called after exit")
		return false, nil
	})
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("WaitReady() = %v, want %v", err, ErrProcessExited)
	}
}

func TestWaitReady_FatalCheckError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		Name:     "nextjs",
	}, func(context.Context, int) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WaitReady() = %v, want %v", err, boom)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  30 * time.Millisecond,
		Name:     "nextjs",
	}, func(context.Context, int) (bool, error) {
		return false, nil
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestTCPCheck(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	check := TCPCheck(port, time.Second)
	ready, err := check(context.Background(), 1)
	if err != nil || !ready {
		t.Fatalf("check with listener = (%v, %v), want (true, nil)", ready, err)
	}

	_ = ln.Close()
	ready, err = check(context.Background(), 2)
	if err != nil || ready {
		t.Fatalf("check after close = (%v, %v), want (false, nil)", ready, err)
	}
}
