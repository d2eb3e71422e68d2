// Package journal persists the supervisor's history in a local SQLite file:
// instance status snapshots, host metrics, service errors and recovery
// attempts. "gasops supervise status" reads it back without talking to the
// running supervisor.
package journal
