// Package lockfile keeps a single supervisor per state directory. The lock
// is an flock on supervisor.lock; the holder's pid is written to
// supervisor.pid so that "gasops supervise stop" can signal it.
package lockfile
