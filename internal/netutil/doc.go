// Package netutil tracks which supervised service owns which TCP port and
// pings local ports for liveness and response latency.
package netutil
