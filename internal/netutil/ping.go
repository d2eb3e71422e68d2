package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPingTimeout bounds a single ping connection.
const DefaultPingTimeout = time.Second

func loopback(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// Ping connects to 127.0.0.1:port and returns how long the connect took.
// A zero timeout uses DefaultPingTimeout.
func Ping(ctx context.Context, port int, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", loopback(port))
	if err != nil {
		return 0, fmt.Errorf("ping port %d: %w", port, err)
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}

// InUse reports whether something is accepting connections on port.
func InUse(ctx context.Context, port int) bool {
	_, err := Ping(ctx, port, DefaultPingTimeout)
	return err == nil
}
