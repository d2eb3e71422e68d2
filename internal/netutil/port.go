package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrPortClaimed is returned when a port already belongs to another owner.
const ErrPortClaimed = sentinel.Error("port already claimed")

// ErrInvalidPort is returned for ports outside 1-65535.
const ErrInvalidPort = sentinel.Error("port out of range")

// PortRegistry records which service owns each port so that two service
// definitions cannot be configured onto the same port.
type PortRegistry struct {
	mu     sync.Mutex
	owners map[int]string
	log    *slog.Logger
}

// NewPortRegistry returns an empty registry. A nil logger falls back to
// slog.Default().
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		owners: make(map[int]string),
		log:    logger,
	}
}

// Claim assigns port to owner. Claiming a port the owner already holds is a
// no-op.
func (r *PortRegistry) Claim(port int, owner string) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("claim %d for %s: %w", port, owner, ErrInvalidPort)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.owners[port]; ok && cur != owner {
		return fmt.Errorf("claim %d for %s (owned by %s): %w", port, owner, cur, ErrPortClaimed)
	}
	r.owners[port] = owner
	return nil
}

// Release frees port regardless of its owner.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[port]; ok {
		r.log.Debug("port released", "port", port, "owner", owner)
	}
	delete(r.owners, port)
}

// Owner returns the owner of port.
func (r *PortRegistry) Owner(port int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[port]
	return owner, ok
}

// Ports returns the claimed ports in ascending order.
func (r *PortRegistry) Ports() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]int, 0, len(r.owners))
	for p := range r.owners {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// FreePort asks the kernel for an unused loopback port. The port is free at
// return time only; callers racing other processes must tolerate a bind error.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("listen on ephemeral port: %w", err)
	}
	defer func() { _ = l.Close() }()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
	}
	return addr.Port, nil
}
