// Package core implements the service supervisor behind the public gasops API.
//
// A Supervisor owns a set of registered services. Each service runs between
// MinInstances and MaxInstances child processes (Instances); instance n of a
// service listens on the service's base port plus n. Three loops drive the
// supervisor while Run is active: a health pass that samples every instance
// and restarts the ones that died or keep failing, a recovery pass that
// tops services back up to their minimum and applies the configured
// RecoveryStrategy to services with too few running instances, and a
// metrics pass that journals host usage. Every state change is written to
// the journal.
package core
