package gasops

import "github.com/jiujiugas/gasops/internal/core"

// supervisorConfig wraps core.SupervisorConfig so internal types stay out of
// the option signatures.
type supervisorConfig struct {
	core.SupervisorConfig
}

func (c supervisorConfig) toCoreConfig() core.SupervisorConfig {
	return c.SupervisorConfig
}
