package gasops

import "github.com/jiujiugas/gasops/internal/core"

// RecoveryStrategy controls what the recovery pass does with a service that
// has fewer than half of its instances running.
//
// It is a type alias so the IsValid and String methods of
// core.RecoveryStrategy are part of the public API.
type RecoveryStrategy = core.RecoveryStrategy

const (
	// RecoverService stops every instance of the degraded service, waits the
	// service's restart delay and starts its maximum instance count again.
	RecoverService = core.RecoverService

	// RecoverInstance restarts only the instances that are not running.
	RecoverInstance = core.RecoverInstance

	// RecoverNone journals the condition and leaves the service alone.
	RecoverNone = core.RecoverNone
)

// ParseRecoveryStrategy maps "service", "instance" or "none" to a strategy.
// The empty string means DefaultRecoveryStrategy.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, error) {
	return core.ParseRecoveryStrategy(s)
}
