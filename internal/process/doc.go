// Package process runs and stops the child processes behind supervised
// services.
//
// BaseProcess owns one started command: it redirects output to append-only
// log files, runs the single cmd.Wait goroutine and exposes an Exited channel.
// Stop sends SIGTERM and escalates to SIGKILL after a grace period. WaitReady
// polls a readiness check until it passes, the process dies, or a timeout hits.
package process
